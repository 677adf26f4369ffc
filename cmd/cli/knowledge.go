package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/dvloznov/finance-assistant/internal/inbox"
	"github.com/spf13/cobra"
)

func newIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <path|gs://bucket/object>...",
		Short: "Add .txt or .pdf documents to the knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			for _, location := range args {
				fmt.Fprintln(cmd.OutOrStdout(), a.Ingestor.AddDocumentFromFile(cmd.Context(), location))
			}
			return nil
		},
	}
}

func newAddTextCmd() *cobra.Command {
	var (
		source string
		topic  string
	)
	cmd := &cobra.Command{
		Use:   "add-text <text>",
		Short: "Add raw text to the knowledge base",
		Long: `Add raw text to the knowledge base.

With "-" as the only argument the text is read from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("add-text: read stdin: %w", err)
				}
				text = string(data)
			}

			metadata := map[string]string{}
			if source != "" {
				metadata["source"] = source
			}
			if topic != "" {
				metadata["topic"] = topic
			}

			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), a.Ingestor.AddText(cmd.Context(), text, metadata))
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source recorded with the text (default user_input)")
	cmd.Flags().StringVar(&topic, "topic", "", "optional topic metadata")
	return cmd
}

func newDefaultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "defaults",
		Short: "Add the built-in financial knowledge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Fprintln(cmd.OutOrStdout(), a.Ingestor.AddDefaultKnowledge(cmd.Context()))
			return nil
		},
	}
}

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List knowledge base sources and their chunk counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			sources, err := a.Knowledge.Store().Sources(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, s := range sources {
				fmt.Fprintf(out, "%6d  %s\n", s.Chunks, s.Source)
			}
			fmt.Fprintf(out, "%6d  total\n", a.Knowledge.Store().Count())
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <dir>",
		Short: "Ingest every document dropped into a directory",
		Long: `Watch a directory and ingest every .txt or .pdf file that appears
in it. Files already present are ingested on start. Stop with Ctrl-C.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			w, err := inbox.NewWatcher(args[0], a.Queue, a.Log)
			if err != nil {
				return err
			}
			if err := a.Queue.Start(ctx, a.IngestJobHandler()); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Watching %s\n", w.Dir())
			return w.Run(ctx)
		},
	}
}
