package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_PathWithURIMetacharacters(t *testing.T) {
	ctx := context.Background()

	for _, name := range []string{"plain.db", "what?.db", "v#2.db", "50%.db", "with space.db"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)

			db, err := Open(ctx, path, SetFinance)
			require.NoError(t, err)
			defer db.Close()

			var mode string
			require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
			assert.Equal(t, "wal", mode)

			_, err = os.Stat(path)
			assert.NoError(t, err, "database file is created at the literal path")
		})
	}
}

func TestDataSourceName(t *testing.T) {
	dsn, err := dataSourceName("/data/what?#.db")
	require.NoError(t, err)
	assert.Equal(t, "file:///data/what%3F%23.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)", dsn)
}
