package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/persona-rag/persona"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Harness   HarnessConfig   `mapstructure:"harness"`
	Memory    MemoryConfig    `mapstructure:"memory"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Persona   PersonaConfig   `mapstructure:"persona"`
	Tools     ToolsConfig     `mapstructure:"tools"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig stores HTTP transport settings.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig stores database connection details.
type DatabaseConfig struct {
	DSN  string `mapstructure:"dsn"`  // path to the embedded .db file
	Type string `mapstructure:"type"` // only "libsql" is supported
	// Embedded-only configuration
	JournalMode    string `mapstructure:"journal_mode"`
	SyncMode       string `mapstructure:"sync_mode"`
	MaxOpenConns   int    `mapstructure:"max_open_conns"`
	MaxIdleConns   int    `mapstructure:"max_idle_conns"`
	ConnMaxIdleSec int    `mapstructure:"conn_max_idle_sec"`
}

// LLMConfig stores chat model service settings.
type LLMConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Model        string        `mapstructure:"model"`
	Temperature  float32       `mapstructure:"temperature"`
	MaxNewTokens int           `mapstructure:"max_new_tokens"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryCount   int           `mapstructure:"retry_count"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

// EmbeddingConfig stores embedding service settings.
type EmbeddingConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Dims            int           `mapstructure:"dims"`
	BatchSize       int           `mapstructure:"batch_size"`
	Timeout         time.Duration `mapstructure:"timeout"`
	CacheEnabled    bool          `mapstructure:"cache_enabled"`
	CacheCapacity   int           `mapstructure:"cache_capacity"`
	CacheTTLSeconds int           `mapstructure:"cache_ttl_seconds"`
}

// HarnessConfig stores conversation loop settings.
type HarnessConfig struct {
	// Rate limiting
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"`
	RateLimitMaxKeys    int           `mapstructure:"rate_limit_max_keys"`

	// Policies
	MaxIterations   int           `mapstructure:"max_iterations"` // model rounds per chat turn
	HistoryWindow   int           `mapstructure:"history_window"` // stored messages replayed per turn
	ToolTimeout     time.Duration `mapstructure:"tool_timeout"`
	ToolConcurrency int           `mapstructure:"tool_concurrency"`

	// Safety and validation
	ValidateToolArgs bool `mapstructure:"validate_tool_args"`
	RepairToolCalls  bool `mapstructure:"repair_tool_calls"`

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`

	// Token cap on replayed history; 0 leaves only the history_window cap
	MaxContextTokens int `mapstructure:"max_context_tokens"`
}

// MemoryConfig stores retrieval settings.
type MemoryConfig struct {
	Distance      string `mapstructure:"distance"` // "cosine" or "l2"
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

// IngestConfig stores document ingestion settings.
type IngestConfig struct {
	DataDir       string        `mapstructure:"data_dir"`
	IgnoreFile    string        `mapstructure:"ignore_file"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	ChunkOverlap  int           `mapstructure:"chunk_overlap"`
	BatchSize     int           `mapstructure:"batch_size"`
	Workers       int           `mapstructure:"workers"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// PersonaConfig describes who the agent speaks as.
type PersonaConfig struct {
	Name             string `mapstructure:"name"`
	ContactPhone     string `mapstructure:"contact_phone"`
	ContactURL       string `mapstructure:"contact_url"`
	PrimaryLanguage  string `mapstructure:"primary_language"`
	FallbackLanguage string `mapstructure:"fallback_language"`
	Timezone         string `mapstructure:"timezone"`
}

// ToolsConfig maps each retrieval tool to its document partition.
type ToolsConfig struct {
	ThesisSource         string   `mapstructure:"thesis_source"`
	ResearchReportSource string   `mapstructure:"research_report_source"`
	ResumeSource         string   `mapstructure:"resume_source"`
	ResumeKeywords       []string `mapstructure:"resume_keywords"`
	PricingSource        string   `mapstructure:"pricing_source"`
	BudgetSeed           uint64   `mapstructure:"budget_seed"` // 0 seeds from the clock
}

// LogConfig stores logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("/etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. llm.api_key becomes LLM_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	AppConfig = cfg
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("server.request_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.dsn", internal.DefaultDatabaseDSN)
	v.SetDefault("database.type", internal.DefaultDatabaseType)
	v.SetDefault("database.journal_mode", "WAL")
	v.SetDefault("database.sync_mode", "NORMAL")
	v.SetDefault("database.max_open_conns", 8)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_idle_sec", 300)

	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0)
	v.SetDefault("llm.max_new_tokens", 1024)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.retry_count", 2)
	v.SetDefault("llm.retry_backoff", "250ms")

	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dims", internal.DefaultEmbeddingDims)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.timeout", "30s")
	v.SetDefault("embedding.cache_enabled", true)
	v.SetDefault("embedding.cache_capacity", 512)
	v.SetDefault("embedding.cache_ttl_seconds", 3600)

	v.SetDefault("harness.rate_limit_enabled", true)
	v.SetDefault("harness.rate_limit_capacity", 4)
	v.SetDefault("harness.rate_limit_refill_rate", "2s")
	v.SetDefault("harness.rate_limit_max_keys", 10000)
	v.SetDefault("harness.max_iterations", internal.DefaultMaxIterations)
	v.SetDefault("harness.history_window", internal.DefaultHistoryWindow)
	v.SetDefault("harness.tool_timeout", "30s")
	v.SetDefault("harness.tool_concurrency", 4)
	v.SetDefault("harness.validate_tool_args", true)
	v.SetDefault("harness.repair_tool_calls", true)
	v.SetDefault("harness.enable_tracing", true)
	v.SetDefault("harness.max_context_tokens", 0)

	v.SetDefault("memory.distance", "cosine")
	v.SetDefault("memory.enable_metrics", true)

	v.SetDefault("ingest.data_dir", internal.DefaultDataDir)
	v.SetDefault("ingest.ignore_file", ".ingestignore")
	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.chunk_overlap", 200)
	v.SetDefault("ingest.batch_size", 32)
	v.SetDefault("ingest.workers", 2)
	v.SetDefault("ingest.watch_debounce", "2s")

	v.SetDefault("persona.name", "Gustavo Mota Macedo")
	v.SetDefault("persona.contact_phone", "+55 (73) 99806-1168")
	v.SetDefault("persona.contact_url", "https://wa.me/5573998061168")
	v.SetDefault("persona.primary_language", "Portuguese")
	v.SetDefault("persona.fallback_language", "English")
	v.SetDefault("persona.timezone", "America/Bahia")

	v.SetDefault("tools.thesis_source", "artigo_base--abtn.pdf")
	v.SetDefault("tools.research_report_source", "potencial_hidrodinamica_completo.pdf")
	v.SetDefault("tools.resume_source", "CURRICULO JAVA-1.pdf")
	v.SetDefault("tools.resume_keywords", []string{"curriculo", "resume"})
	v.SetDefault("tools.pricing_source", "calcular_orcamento_de_software.md")
	v.SetDefault("tools.budget_seed", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Validate rejects settings the rest of the application cannot work with.
func (c *Config) Validate() error {
	if c.Database.Type != internal.DefaultDatabaseType {
		return fmt.Errorf("unsupported database type %q", c.Database.Type)
	}
	if c.Embedding.Dims <= 0 || c.Embedding.Dims > 65536 {
		return fmt.Errorf("embedding.dims must be between 1 and 65536 inclusive: %d", c.Embedding.Dims)
	}
	switch c.Memory.Distance {
	case "cosine", "l2":
	default:
		return fmt.Errorf("memory.distance must be cosine or l2, got %q", c.Memory.Distance)
	}
	if c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap (%d) must be smaller than ingest.chunk_size (%d)", c.Ingest.ChunkOverlap, c.Ingest.ChunkSize)
	}
	return nil
}
