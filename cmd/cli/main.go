package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dvloznov/finance-assistant/internal/app"
	"github.com/dvloznov/finance-assistant/internal/config"
	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	logLevel string

	// overrides replaces external services; tests set it.
	overrides app.Overrides
)

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "cli",
		Short: "Personal finance assistant",
		Long: `Personal finance assistant.

Chat with the assistant, manage the financial knowledge base and
inspect the structured finance data. Configuration comes from the
environment (and .env / CONFIG_FILE), the same as the API server.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")

	root.AddCommand(
		newChatCmd(),
		newIngestCmd(),
		newAddTextCmd(),
		newDefaultsCmd(),
		newSourcesCmd(),
		newWatchCmd(),
		newSeedCmd(),
		newQueryCmd(),
		newTraceCmd(),
	)
	return root
}

func cliLogger() zerolog.Logger {
	return logger.NewWithOptions(logger.Options{Level: logLevel, Out: os.Stderr})
}

// loadConfig reads the configuration and returns the CLI logger.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, cliLogger(), nil
}

// openApp wires the full application.
func openApp(ctx context.Context) (*app.App, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, log, overrides)
}
