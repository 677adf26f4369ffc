package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// History backends.
const (
	HistoryMemory = "memory"
	HistorySQLite = "sqlite"
	HistoryRedis  = "redis"
)

// Config holds the application configuration. Values are resolved in order:
// built-in defaults, optional YAML file (CONFIG_FILE), then environment.
type Config struct {
	Port      string `yaml:"port"`
	DataDir   string `yaml:"data_dir"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	GeminiAPIKey   string  `yaml:"-"`
	ChatModel      string  `yaml:"chat_model"`
	EmbeddingModel string  `yaml:"embedding_model"`
	Temperature    float32 `yaml:"temperature"`

	HistoryBackend string `yaml:"history_backend"`
	RedisAddr      string `yaml:"redis_addr"`
	RedisPassword  string `yaml:"-"`
	RedisDB        int    `yaml:"redis_db"`

	GCSBucket       string `yaml:"gcs_bucket"`
	UploadDir       string `yaml:"upload_dir"`
	InboxDir        string `yaml:"inbox_dir"`
	BigQueryProject string `yaml:"bigquery_project"`
	BigQueryDataset string `yaml:"bigquery_dataset"`

	AgentMaxIterations int           `yaml:"agent_max_iterations"`
	ToolTimeout        time.Duration `yaml:"tool_timeout"`
	LLMTimeout         time.Duration `yaml:"llm_timeout"`
	RetrievalK         int           `yaml:"retrieval_k"`
	MinScore           float64       `yaml:"min_score"`
	ChunkSize          int           `yaml:"chunk_size"`
	ChunkOverlap       int           `yaml:"chunk_overlap"`
	EnforceTenantScope bool          `yaml:"enforce_tenant_scope"`
	Seed               uint64        `yaml:"seed"`
	JobWorkers         int           `yaml:"job_workers"`

	// AdminToken, when set, is required as a bearer token on admin routes.
	AdminToken  string `yaml:"-"`
	MaxUploadMB int    `yaml:"max_upload_mb"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Port:               "8080",
		DataDir:            "data",
		LogLevel:           "info",
		LogFormat:          "console",
		ChatModel:          "gemini-2.5-flash",
		EmbeddingModel:     "gemini-embedding-001",
		HistoryBackend:     HistoryMemory,
		RedisAddr:          "localhost:6379",
		AgentMaxIterations: 8,
		ToolTimeout:        30 * time.Second,
		LLMTimeout:         60 * time.Second,
		RetrievalK:         5,
		ChunkSize:          1000,
		ChunkOverlap:       100,
		EnforceTenantScope: true,
		Seed:               42,
		JobWorkers:         5,
		MaxUploadMB:        20,
	}
}

// Load reads .env (if present), the optional YAML file and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config.Load: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config.Load: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) mergeEnv() error {
	setString(&c.Port, "PORT")
	setString(&c.DataDir, "DATA_DIR")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, "LOG_FORMAT")
	setString(&c.GeminiAPIKey, "GOOGLE_API_KEY")
	setString(&c.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.ChatModel, "CHAT_MODEL")
	setString(&c.EmbeddingModel, "EMBEDDING_MODEL")
	setString(&c.HistoryBackend, "HISTORY_BACKEND")
	setString(&c.RedisAddr, "REDIS_ADDR")
	setString(&c.RedisPassword, "REDIS_PASSWORD")
	setString(&c.GCSBucket, "GCS_BUCKET")
	setString(&c.UploadDir, "UPLOAD_DIR")
	setString(&c.InboxDir, "INBOX_DIR")
	setString(&c.BigQueryProject, "BIGQUERY_PROJECT")
	setString(&c.BigQueryDataset, "BIGQUERY_DATASET")
	setString(&c.AdminToken, "ADMIN_TOKEN")

	var errs []string
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	collect(setInt(&c.RedisDB, "REDIS_DB"))
	collect(setInt(&c.AgentMaxIterations, "AGENT_MAX_ITERATIONS"))
	collect(setInt(&c.RetrievalK, "RETRIEVAL_K"))
	collect(setInt(&c.ChunkSize, "CHUNK_SIZE"))
	collect(setInt(&c.ChunkOverlap, "CHUNK_OVERLAP"))
	collect(setInt(&c.JobWorkers, "JOB_WORKERS"))
	collect(setInt(&c.MaxUploadMB, "MAX_UPLOAD_MB"))
	collect(setDuration(&c.ToolTimeout, "TOOL_TIMEOUT"))
	collect(setDuration(&c.LLMTimeout, "LLM_TIMEOUT"))
	collect(setBool(&c.EnforceTenantScope, "ENFORCE_TENANT_SCOPE"))
	collect(setFloat(&c.MinScore, "MIN_SCORE"))

	if v := os.Getenv("TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			errs = append(errs, fmt.Sprintf("TEMPERATURE: %v", err))
		} else {
			c.Temperature = float32(f)
		}
	}
	if v := os.Getenv("SEED"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("SEED: %v", err))
		} else {
			c.Seed = n
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config.Load: invalid environment: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch c.HistoryBackend {
	case HistoryMemory, HistorySQLite, HistoryRedis:
	default:
		return fmt.Errorf("config: unknown history backend %q", c.HistoryBackend)
	}
	if c.AgentMaxIterations <= 0 {
		return fmt.Errorf("config: agent max iterations must be positive")
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("config: chunk overlap %d must be below chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	if c.RetrievalK <= 0 {
		return fmt.Errorf("config: retrieval k must be positive")
	}
	if c.MaxUploadMB <= 0 {
		return fmt.Errorf("config: max upload size must be positive")
	}
	if c.ToolTimeout <= 0 || c.LLMTimeout <= 0 {
		return fmt.Errorf("config: timeouts must be positive")
	}
	return nil
}

// FinanceDBPath is the structured store file.
func (c *Config) FinanceDBPath() string {
	return filepath.Join(c.DataDir, "finance_data.db")
}

// KnowledgeDir is the persistent knowledge index directory.
func (c *Config) KnowledgeDir() string {
	return filepath.Join(c.DataDir, "knowledge")
}

// HistoryDBPath is used when HistoryBackend is sqlite.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "conversations.db")
}

// UploadPath is where admin uploads land when no bucket is configured.
func (c *Config) UploadPath() string {
	if c.UploadDir != "" {
		return c.UploadDir
	}
	return filepath.Join(c.DataDir, "uploads")
}

// InboxPath is the directory the ingestion worker watches.
func (c *Config) InboxPath() string {
	if c.InboxDir != "" {
		return c.InboxDir
	}
	return filepath.Join(c.DataDir, "inbox")
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}
