package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"
)

//go:embed migrations
var migrationFS embed.FS

// MigrationSet names a directory under migrations/.
type MigrationSet string

const (
	SetFinance   MigrationSet = "finance"
	SetKnowledge MigrationSet = "knowledge"
	SetHistory   MigrationSet = "history"
)

// Pattern to match migration files: 0001_name.sql
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// Migration represents a single migration file
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt string
	Checksum  string
	AppliedBy string
}

// ReadMigrations returns the embedded migrations of a set, ordered by version.
func ReadMigrations(set MigrationSet) ([]Migration, error) {
	return readMigrations(migrationFS, path.Join("migrations", string(set)))
}

func readMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory %s: %w", dir, err)
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if matches == nil {
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: entry.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// Migrate applies pending migrations of the set, each in its own
// transaction, and returns the filenames it applied. A previously applied
// migration whose file content changed is reported as an error.
func Migrate(ctx context.Context, db *sql.DB, set MigrationSet, appliedBy string) ([]string, error) {
	if err := ensureSchemaMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("Migrate: ensure schema_migrations: %w", err)
	}

	migrations, err := ReadMigrations(set)
	if err != nil {
		return nil, fmt.Errorf("Migrate: %w", err)
	}

	applied, err := AppliedMigrations(ctx, db, set)
	if err != nil {
		return nil, fmt.Errorf("Migrate: %w", err)
	}
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	var ran []string
	for _, m := range migrations {
		if am, ok := byVersion[m.Version]; ok {
			if am.Checksum != "" && am.Checksum != m.Checksum {
				return ran, fmt.Errorf("Migrate: %s/%s was modified after being applied", set, m.Filename)
			}
			continue
		}

		if err := executeMigration(ctx, db, set, m, appliedBy); err != nil {
			return ran, fmt.Errorf("Migrate: %s/%s: %w", set, m.Filename, err)
		}
		ran = append(ran, m.Filename)
	}

	return ran, nil
}

func ensureSchemaMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			migration_set TEXT NOT NULL,
			version       INTEGER NOT NULL,
			name          TEXT NOT NULL,
			applied_at    TEXT NOT NULL,
			checksum      TEXT,
			applied_by    TEXT,
			PRIMARY KEY (migration_set, version)
		)
	`)
	return err
}

// AppliedMigrations lists recorded migrations of a set in version order.
func AppliedMigrations(ctx context.Context, db *sql.DB, set MigrationSet) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT version, name, applied_at, COALESCE(checksum, ''), COALESCE(applied_by, '')
		FROM schema_migrations
		WHERE migration_set = ?
		ORDER BY version ASC
	`, string(set))
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var am AppliedMigration
		if err := rows.Scan(&am.Version, &am.Name, &am.AppliedAt, &am.Checksum, &am.AppliedBy); err != nil {
			return nil, fmt.Errorf("iterating results: %w", err)
		}
		applied = append(applied, am)
	}
	return applied, rows.Err()
}

func executeMigration(ctx context.Context, db *sql.DB, set MigrationSet, m Migration, appliedBy string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("exec: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (migration_set, version, name, applied_at, checksum, applied_by)
		VALUES (?, ?, ?, ?, ?, ?)
	`, string(set), m.Version, m.Name, time.Now().UTC().Format(time.RFC3339), m.Checksum, appliedBy); err != nil {
		return fmt.Errorf("record: %w", err)
	}

	return tx.Commit()
}

// MigrationStatus pairs an embedded migration with its applied record, if any.
type MigrationStatus struct {
	Migration
	Applied *AppliedMigration
}

// Status reports every embedded migration of the set and whether it has
// been applied to db.
func Status(ctx context.Context, db *sql.DB, set MigrationSet) ([]MigrationStatus, error) {
	if err := ensureSchemaMigrationsTable(ctx, db); err != nil {
		return nil, fmt.Errorf("Status: ensure schema_migrations: %w", err)
	}

	migrations, err := ReadMigrations(set)
	if err != nil {
		return nil, fmt.Errorf("Status: %w", err)
	}
	applied, err := AppliedMigrations(ctx, db, set)
	if err != nil {
		return nil, fmt.Errorf("Status: %w", err)
	}

	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		byVersion[am.Version] = am
	}

	out := make([]MigrationStatus, len(migrations))
	for i, m := range migrations {
		out[i] = MigrationStatus{Migration: m}
		if am, ok := byVersion[m.Version]; ok {
			out[i].Applied = &am
		}
	}
	return out, nil
}
