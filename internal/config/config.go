package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the dockeep service configuration.
type Config struct {
	Ops      OpsConfig      `yaml:"ops"`
	Database DatabaseConfig `yaml:"database"`
	AI       AIConfig       `yaml:"ai"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Search   SearchConfig   `yaml:"search"`
	Vector   VectorConfig   `yaml:"vector"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// OpsConfig holds the operational HTTP listener settings (health, metrics).
type OpsConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
}

// AIConfig holds settings for the external AI provider. An empty APIKey
// disables metadata extraction, embeddings and answer generation.
type AIConfig struct {
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	ChatModel           string `yaml:"chat_model"`
	EmbeddingModel      string `yaml:"embedding_model"`
	EmbeddingDimensions int    `yaml:"embedding_dimensions"`
	MaxConcurrent       int    `yaml:"max_concurrent"`
	MinCallIntervalMS   int    `yaml:"min_call_interval_ms"`
	CallTimeoutSec      int    `yaml:"call_timeout_sec"`
	MaxRetries          int    `yaml:"max_retries"`
	RetryBaseDelaySec   int    `yaml:"retry_base_delay_sec"`
	RetryMaxDelaySec    int    `yaml:"retry_max_delay_sec"`
}

// Enabled reports whether an AI provider is configured.
func (c AIConfig) Enabled() bool { return c.APIKey != "" }

// IngestConfig holds ingestion pipeline settings.
type IngestConfig struct {
	InboxDir          string   `yaml:"inbox_dir"`
	ArchiveDir        string   `yaml:"archive_dir"`
	DuplicatesDir     string   `yaml:"duplicates_dir"`
	MaxFileSizeMB     int      `yaml:"max_file_size_mb"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
	WatchDebounceSec  int      `yaml:"watch_debounce_sec"`
	Workers           int      `yaml:"workers"`
}

// SearchConfig holds retrieval engine settings.
type SearchConfig struct {
	DefaultPageSize     int `yaml:"default_page_size"`
	MaxPageSize         int `yaml:"max_page_size"`
	VectorLimit         int `yaml:"vector_limit"`
	MaxQueryVariants    int `yaml:"max_query_variants"`
	MaxFullTextVariants int `yaml:"max_fulltext_variants"`
	BudgetSec           int `yaml:"budget_sec"`
	BreakerThreshold    int `yaml:"breaker_threshold"`
	BreakerCooldownSec  int `yaml:"breaker_cooldown_sec"`
	MaxRAGDocuments     int `yaml:"max_rag_documents"`
}

// VectorConfig holds HNSW index settings.
type VectorConfig struct {
	IndexName       string `yaml:"index_name"`
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.Ops.ReadTimeoutSec <= 0 {
		c.Ops.ReadTimeoutSec = 10
	}
	if c.Ops.WriteTimeoutSec <= 0 {
		c.Ops.WriteTimeoutSec = 10
	}
	if c.Ops.ShutdownSec <= 0 {
		c.Ops.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "dk:"
	}
	if c.AI.ChatModel == "" {
		c.AI.ChatModel = "gpt-4o-mini"
	}
	if c.AI.EmbeddingModel == "" {
		c.AI.EmbeddingModel = "text-embedding-3-small"
	}
	if c.AI.EmbeddingDimensions <= 0 {
		c.AI.EmbeddingDimensions = 1536
	}
	if c.AI.MaxConcurrent <= 0 {
		c.AI.MaxConcurrent = 2
	}
	if c.AI.MinCallIntervalMS <= 0 {
		c.AI.MinCallIntervalMS = 100
	}
	if c.AI.CallTimeoutSec <= 0 {
		c.AI.CallTimeoutSec = 60
	}
	if c.AI.MaxRetries <= 0 {
		c.AI.MaxRetries = 3
	}
	if c.AI.RetryBaseDelaySec <= 0 {
		c.AI.RetryBaseDelaySec = 1
	}
	if c.AI.RetryMaxDelaySec <= 0 {
		c.AI.RetryMaxDelaySec = 8
	}
	if c.Ingest.InboxDir == "" {
		c.Ingest.InboxDir = "data/inbox"
	}
	if c.Ingest.ArchiveDir == "" {
		c.Ingest.ArchiveDir = "data/archive"
	}
	if c.Ingest.DuplicatesDir == "" {
		c.Ingest.DuplicatesDir = "data/duplicates"
	}
	if c.Ingest.MaxFileSizeMB <= 0 {
		c.Ingest.MaxFileSizeMB = 100
	}
	if len(c.Ingest.AllowedExtensions) == 0 {
		c.Ingest.AllowedExtensions = []string{"pdf", "png", "jpg", "jpeg", "tiff", "bmp", "txt", "text"}
	}
	if c.Ingest.WatchDebounceSec <= 0 {
		c.Ingest.WatchDebounceSec = 5
	}
	if c.Ingest.Workers <= 0 {
		c.Ingest.Workers = 2
	}
	if c.Search.DefaultPageSize <= 0 {
		c.Search.DefaultPageSize = 20
	}
	if c.Search.MaxPageSize <= 0 {
		c.Search.MaxPageSize = 100
	}
	if c.Search.VectorLimit <= 0 {
		c.Search.VectorLimit = 100
	}
	if c.Search.MaxQueryVariants <= 0 {
		c.Search.MaxQueryVariants = 5
	}
	if c.Search.MaxFullTextVariants <= 0 {
		c.Search.MaxFullTextVariants = 20
	}
	if c.Search.BudgetSec <= 0 {
		c.Search.BudgetSec = 45
	}
	if c.Search.BreakerThreshold <= 0 {
		c.Search.BreakerThreshold = 3
	}
	if c.Search.BreakerCooldownSec <= 0 {
		c.Search.BreakerCooldownSec = 300
	}
	if c.Search.MaxRAGDocuments <= 0 {
		c.Search.MaxRAGDocuments = 5
	}
	if c.Vector.IndexName == "" {
		c.Vector.IndexName = "dockeep-documents"
	}
	if c.Vector.HNSWM <= 0 {
		c.Vector.HNSWM = 32
	}
	if c.Vector.HNSWEFConstruct <= 0 {
		c.Vector.HNSWEFConstruct = 400
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.Ops.Port <= 0 || c.Ops.Port > 65535 {
		return fmt.Errorf("ops.port must be between 1 and 65535, got %d", c.Ops.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return fmt.Errorf(
			"search.default_page_size %d exceeds search.max_page_size %d",
			c.Search.DefaultPageSize, c.Search.MaxPageSize,
		)
	}
	for _, ext := range c.Ingest.AllowedExtensions {
		if strings.HasPrefix(ext, ".") {
			return fmt.Errorf("ingest.allowed_extensions must not contain dots, got %q", ext)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
