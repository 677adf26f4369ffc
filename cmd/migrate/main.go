package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/finance-assistant/internal/config"
	"github.com/dvloznov/finance-assistant/internal/infra/sqlite"
	"github.com/dvloznov/finance-assistant/internal/logger"
	"github.com/dvloznov/finance-assistant/internal/seed"
	"github.com/spf13/cobra"
)

// target is one database file and the migration set that owns it.
type target struct {
	Set  sqlite.MigrationSet
	Path string
}

func main() {
	if err := newRootCmd(os.Stdout).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var (
		dataDir   string
		set       string
		appliedBy string
		withSeed  bool
	)

	resolve := func() (*config.Config, []target, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		targets, err := targetsFor(cfg, set)
		return cfg, targets, err
	}

	root := &cobra.Command{
		Use:   "migrate",
		Short: "Apply SQLite schema migrations",
		Long: `Apply the embedded SQLite schema migrations to the finance store,
the knowledge index and the conversation history.

Each database keeps its own schema_migrations table. Migrations that
were already applied are skipped; one whose file changed afterwards
is reported as an error.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, targets, err := resolve()
			if err != nil {
				return err
			}
			for _, t := range targets {
				if err := up(cmd.Context(), out, t, appliedBy); err != nil {
					return err
				}
			}
			if withSeed {
				return seedFinance(cmd.Context(), out, cfg)
			}
			return nil
		},
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default DATA_DIR or ./data)")
	root.PersistentFlags().StringVar(&set, "set", "all", "migration set: all, finance, knowledge or history")
	root.Flags().StringVar(&appliedBy, "applied-by", "migrate-cli", "name recorded with applied migrations")
	root.Flags().BoolVar(&withSeed, "seed", false, "seed empty finance tables after migrating")

	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, targets, err := resolve()
			if err != nil {
				return err
			}
			for _, t := range targets {
				if err := status(cmd.Context(), out, t); err != nil {
					return err
				}
			}
			return nil
		},
	})
	return root
}

func targetsFor(cfg *config.Config, set string) ([]target, error) {
	all := []target{
		{Set: sqlite.SetFinance, Path: cfg.FinanceDBPath()},
		{Set: sqlite.SetKnowledge, Path: filepath.Join(cfg.KnowledgeDir(), "index.db")},
		{Set: sqlite.SetHistory, Path: cfg.HistoryDBPath()},
	}
	if set == "all" {
		return all, nil
	}
	for _, t := range all {
		if string(t.Set) == set {
			return []target{t}, nil
		}
	}
	return nil, fmt.Errorf("unknown migration set %q", set)
}

func open(ctx context.Context, t target) (*sql.DB, error) {
	// An empty set opens the file without migrating it.
	return sqlite.Open(ctx, t.Path, "")
}

func up(ctx context.Context, out io.Writer, t target, appliedBy string) error {
	db, err := open(ctx, t)
	if err != nil {
		return err
	}
	defer db.Close()

	fmt.Fprintf(out, "%s (%s)\n", t.Set, t.Path)

	before, err := sqlite.Status(ctx, db, t.Set)
	if err != nil {
		return err
	}
	for _, s := range before {
		if s.Applied != nil {
			fmt.Fprintf(out, "  [SKIP] %04d_%s (already applied)\n", s.Version, s.Name)
		}
	}

	ran, err := sqlite.Migrate(ctx, db, t.Set, appliedBy)
	for _, name := range ran {
		fmt.Fprintf(out, "  [OK]   %s\n", name)
	}
	if err != nil {
		return err
	}

	if len(ran) == 0 {
		fmt.Fprintln(out, "  No new migrations to apply. Database is up to date.")
	} else {
		fmt.Fprintf(out, "  Successfully applied %d migration(s)\n", len(ran))
	}
	return nil
}

func status(ctx context.Context, out io.Writer, t target) error {
	db, err := open(ctx, t)
	if err != nil {
		return err
	}
	defer db.Close()

	statuses, err := sqlite.Status(ctx, db, t.Set)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s (%s)\n", t.Set, t.Path)
	for _, s := range statuses {
		fmt.Fprintln(out, "  "+formatStatus(s))
	}
	return nil
}

func formatStatus(s sqlite.MigrationStatus) string {
	if s.Applied == nil {
		return fmt.Sprintf("[PENDING] %04d_%s", s.Version, s.Name)
	}
	line := fmt.Sprintf("[APPLIED] %04d_%s at %s by %s", s.Version, s.Name, s.Applied.AppliedAt, s.Applied.AppliedBy)
	if s.Applied.Checksum != "" && s.Applied.Checksum != s.Checksum {
		line += " (MODIFIED since applied)"
	}
	return line
}

func seedFinance(ctx context.Context, out io.Writer, cfg *config.Config) error {
	store, err := sqlite.OpenFinanceStore(ctx, cfg.FinanceDBPath(), logger.Nop())
	if err != nil {
		return err
	}
	defer store.Close()

	report, err := store.Seed(ctx, seed.New(cfg.Seed, time.Now().UTC()))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Seeded %d users, %d transactions, %d holdings\n",
		report.Users, report.Transactions, report.Holdings)
	return nil
}
