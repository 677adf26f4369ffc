// Package sqlite holds the SQLite-backed stores: the structured finance data,
// the knowledge index and durable conversation history. All of them share the
// same open/migrate path.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const busyTimeout = 5 * time.Second

// dataSourceName builds a file: URI for path. The path is made absolute and
// escaped so that '?', '#' and '%' in file names survive URI parsing.
func dataSourceName(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", path, err)
	}
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(abs),
		RawQuery: fmt.Sprintf("_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
			busyTimeout.Milliseconds()),
	}
	return u.String(), nil
}

// Open opens (creating if needed) the database file at path with WAL
// journaling and a busy timeout, then applies the named migration set.
func Open(ctx context.Context, path string, set MigrationSet) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite.Open: create directory: %w", err)
		}
	}

	dsn, err := dataSourceName(path)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite.Open: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite.Open: ping %s: %w", path, err)
	}

	if set != "" {
		if _, err := Migrate(ctx, db, set, "sqlite.Open"); err != nil {
			db.Close()
			return nil, err
		}
	}

	return db, nil
}
