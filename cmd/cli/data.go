package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dvloznov/finance-assistant/internal/config"
	"github.com/dvloznov/finance-assistant/internal/identity"
	bq "github.com/dvloznov/finance-assistant/internal/infra/bigquery"
	"github.com/dvloznov/finance-assistant/internal/infra/sqlite"
	"github.com/dvloznov/finance-assistant/internal/seed"
	"github.com/dvloznov/finance-assistant/internal/trace"
	"github.com/spf13/cobra"
)

func openFinance(ctx context.Context) (*sqlite.FinanceStore, *config.Config, error) {
	cfg, log, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.OpenFinanceStore(ctx, cfg.FinanceDBPath(), log)
	if err != nil {
		return nil, nil, err
	}
	return store, cfg, nil
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Fill empty finance tables with sample data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, cfg, err := openFinance(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			report, err := store.Seed(cmd.Context(), seed.New(cfg.Seed, time.Now().UTC()))
			if err != nil {
				return err
			}
			counts, err := store.Counts(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Inserted: %d users, %d transactions, %d holdings\n",
				report.Users, report.Transactions, report.Holdings)
			fmt.Fprintf(out, "Totals:   %d users, %d transactions, %d holdings\n",
				counts.Users, counts.Transactions, counts.Portfolio)
			return nil
		},
	}
}

func newQueryCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only SQL query on the finance data",
		Long: `Run a read-only SQL query on the finance data.

With --email the query sees only that user's rows, exactly as the
assistant's SQL tool does. Without it the query sees every row.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openFinance(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			query := strings.Join(args, " ")
			var table *sqlite.Table
			if email != "" {
				tenant, perr := identity.Parse(email)
				if perr != nil {
					return perr
				}
				table, err = store.QueryScoped(cmd.Context(), tenant, query)
			} else {
				table, err = store.Query(cmd.Context(), query)
			}
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), table.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "restrict the query to this user's rows")
	return cmd
}

func newTraceCmd() *cobra.Command {
	var (
		email string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show a user's recent tool invocations",
		Long: `Show a user's recent tool invocations.

Invocations are only kept across processes when BIGQUERY_PROJECT is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tenant, err := identity.Parse(email)
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}

			recorder := overrides.Recorder
			if recorder == nil {
				if cfg.BigQueryProject == "" {
					return fmt.Errorf("trace: BIGQUERY_PROJECT is not set")
				}
				repo, err := bq.NewTraceRepository(cmd.Context(), cfg.BigQueryProject, cfg.BigQueryDataset)
				if err != nil {
					return err
				}
				defer repo.Close()
				recorder = trace.NewBigQuery(repo)
			}

			records, err := recorder.Recent(cmd.Context(), tenant, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No tool invocations recorded.")
				return nil
			}
			for _, r := range records {
				status := "ok"
				if r.Failed {
					status = "failed"
				}
				fmt.Fprintf(out, "%s  %-30s %-7s %6dms  %s\n",
					r.CreatedAt.Format(time.RFC3339), r.Tool, status, r.Duration.Milliseconds(), r.Input)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "user whose invocations to show")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of invocations")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
