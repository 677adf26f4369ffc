package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash", cfg.ChatModel)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 100, cfg.ChunkOverlap)
	assert.Equal(t, 5, cfg.RetrievalK)
	assert.True(t, cfg.EnforceTenantScope)
	assert.Equal(t, filepath.Join("data", "finance_data.db"), cfg.FinanceDBPath())
	assert.Equal(t, filepath.Join("data", "inbox"), cfg.InboxPath())
}

func TestLoad_FileThenEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "assistant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("data_dir: /srv/finance\nhistory_backend: sqlite\nretrieval_k: 3\n"), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("RETRIEVAL_K", "7")
	t.Setenv("TOOL_TIMEOUT", "5s")
	t.Setenv("INBOX_DIR", "/srv/drop")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/srv/finance", cfg.DataDir)
	assert.Equal(t, HistorySQLite, cfg.HistoryBackend)
	assert.Equal(t, 7, cfg.RetrievalK)
	assert.Equal(t, 5*time.Second, cfg.ToolTimeout)
	assert.Equal(t, "/srv/drop", cfg.InboxPath())
	assert.Equal(t, filepath.Join("/srv/finance", "uploads"), cfg.UploadPath())
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("AGENT_MAX_ITERATIONS", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENT_MAX_ITERATIONS")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown backend", mutate: func(c *Config) { c.HistoryBackend = "etcd" }, wantErr: true},
		{name: "overlap not below size", mutate: func(c *Config) { c.ChunkOverlap = c.ChunkSize }, wantErr: true},
		{name: "zero iterations", mutate: func(c *Config) { c.AgentMaxIterations = 0 }, wantErr: true},
		{name: "redis backend", mutate: func(c *Config) { c.HistoryBackend = HistoryRedis }},
		{name: "no upload size", mutate: func(c *Config) { c.MaxUploadMB = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
