package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/dvloznov/finance-assistant/internal/infra/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrate_UpThenSkip(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "--data-dir", dir, "--set", "finance")
	require.NoError(t, err)
	assert.Contains(t, out, "[OK]   0001_finance_schema.sql")
	assert.Contains(t, out, "Successfully applied 2 migration(s)")

	out, err = run(t, "--data-dir", dir, "--set", "finance")
	require.NoError(t, err)
	assert.Contains(t, out, "[SKIP] 0001_finance_schema (already applied)")
	assert.Contains(t, out, "No new migrations to apply. Database is up to date.")
}

func TestMigrate_StatusAndSeed(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "status", "--data-dir", dir, "--set", "history")
	require.NoError(t, err)
	assert.Contains(t, out, "[PENDING] 0001_conversations")

	out, err = run(t, "--data-dir", dir, "--seed")
	require.NoError(t, err)
	assert.Contains(t, out, "finance (")
	assert.Contains(t, out, "knowledge (")
	assert.Contains(t, out, "history (")
	assert.Contains(t, out, "Seeded 5 users")

	out, err = run(t, "status", "--data-dir", dir)
	require.NoError(t, err)
	assert.NotContains(t, out, "[PENDING]")
	assert.Contains(t, out, "[APPLIED] 0001_conversations at ")
	assert.Contains(t, out, "by migrate-cli")
}

func TestMigrate_UnknownSet(t *testing.T) {
	_, err := run(t, "--data-dir", t.TempDir(), "--set", "ledger")
	assert.EqualError(t, err, `unknown migration set "ledger"`)
}

func TestFormatStatus(t *testing.T) {
	m := sqlite.Migration{Version: 2, Name: "tenant_indexes", Checksum: "abc"}

	tests := []struct {
		name    string
		applied *sqlite.AppliedMigration
		want    string
	}{
		{
			name: "pending",
			want: "[PENDING] 0002_tenant_indexes",
		},
		{
			name:    "applied",
			applied: &sqlite.AppliedMigration{AppliedAt: "2026-01-02T03:04:05Z", AppliedBy: "migrate-cli", Checksum: "abc"},
			want:    "[APPLIED] 0002_tenant_indexes at 2026-01-02T03:04:05Z by migrate-cli",
		},
		{
			name:    "modified",
			applied: &sqlite.AppliedMigration{AppliedAt: "2026-01-02T03:04:05Z", AppliedBy: "sqlite.Open", Checksum: "old"},
			want:    "[APPLIED] 0002_tenant_indexes at 2026-01-02T03:04:05Z by sqlite.Open (MODIFIED since applied)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatStatus(sqlite.MigrationStatus{Migration: m, Applied: tt.applied}))
		})
	}
}
