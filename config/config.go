package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Index     IndexConfig     `mapstructure:"index"`
	Feeds     FeedsConfig     `mapstructure:"feeds"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Session   SessionConfig   `mapstructure:"session"`
	Stats     StatsConfig     `mapstructure:"stats"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Debug          bool          `mapstructure:"debug"`
	DefaultTimeout time.Duration `mapstructure:"default_timeout"`
}

// ServerConfig contains HTTP server and auth settings.
type ServerConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"` // empty disables the login gate
	JWTSecret string `mapstructure:"jwt_secret"`
}

func (s ServerConfig) Validate() error {
	if s.Password != "" && s.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret is required when server.password is set")
	}
	return nil
}

// LLMConfig contains the OpenAI provider configuration.
type LLMConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

func (l LLMConfig) Validate() error {
	if strings.TrimSpace(l.APIKey) == "" {
		return fmt.Errorf("llm.api_key is required")
	}
	return nil
}

// IndexConfig contains Weaviate connection settings.
type IndexConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Class      string        `mapstructure:"class"`
	Timeout    time.Duration `mapstructure:"timeout"`
	MaxRetries int           `mapstructure:"max_retries"`
}

func (i IndexConfig) Validate() error {
	if strings.TrimSpace(i.BaseURL) == "" {
		return fmt.Errorf("index.base_url is required")
	}
	if strings.TrimSpace(i.Class) == "" {
		return fmt.Errorf("index.class is required")
	}
	return nil
}

// FeedsConfig maps source names to feed URLs. An empty map falls back to
// the built-in Premier League sources.
type FeedsConfig struct {
	Sources map[string]string `mapstructure:"sources"`
	Timeout time.Duration     `mapstructure:"timeout"`
}

// IngestConfig controls the ingestion pipeline and its scheduler.
type IngestConfig struct {
	CronSpec   string `mapstructure:"cron_spec"`
	SummaryCap int    `mapstructure:"summary_cap"`
}

// ChatConfig controls the RAG chat engine.
type ChatConfig struct {
	MaxHistoryTurns int  `mapstructure:"max_history_turns"`
	MaxContextDocs  int  `mapstructure:"max_context_docs"`
	ToolsEnabled    bool `mapstructure:"tools_enabled"`
}

// SessionConfig selects the conversation store backend.
type SessionConfig struct {
	Store string        `mapstructure:"store"` // "memory" or "redis"
	TTL   time.Duration `mapstructure:"ttl"`
}

func (s SessionConfig) Validate() error {
	switch s.Store {
	case "memory", "redis":
		return nil
	}
	return fmt.Errorf("session.store must be \"memory\" or \"redis\", got %q", s.Store)
}

// StatsConfig contains football-data.org settings. An empty API key
// disables live stats tools entirely.
type StatsConfig struct {
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// RedisConfig is only consulted when session.store is "redis".
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r RedisConfig) Validate(required bool) error {
	if required && strings.TrimSpace(r.Addr) == "" {
		return fmt.Errorf("redis.addr is required when session.store is \"redis\"")
	}
	return nil
}

// TelemetryConfig controls the prometheus metrics endpoint.
type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoadConfig reads configuration from the given file, or discovers
// config.json in ./config or the working directory when path is empty.
// Environment variables prefixed with TOUCHLINE_ override file values.
func LoadConfig(path string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.default_timeout", 15*time.Second)
	viper.SetDefault("server.address", ":8000")
	viper.SetDefault("llm.base_url", "https://api.openai.com")
	viper.SetDefault("llm.completion_model", "gpt-4o-mini")
	viper.SetDefault("llm.embedding_model", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.9)
	viper.SetDefault("llm.max_tokens", 512)
	viper.SetDefault("llm.timeout", 30*time.Second)
	viper.SetDefault("index.base_url", "http://localhost:8080")
	viper.SetDefault("index.class", "EplNews")
	viper.SetDefault("index.timeout", 10*time.Second)
	viper.SetDefault("index.max_retries", 2)
	viper.SetDefault("feeds.timeout", 15*time.Second)
	viper.SetDefault("ingest.cron_spec", "*/30 * * * *")
	viper.SetDefault("ingest.summary_cap", 1000)
	viper.SetDefault("chat.max_history_turns", 5)
	viper.SetDefault("chat.max_context_docs", 5)
	viper.SetDefault("chat.tools_enabled", true)
	viper.SetDefault("session.store", "memory")
	viper.SetDefault("session.ttl", 24*time.Hour)
	viper.SetDefault("stats.base_url", "https://api.football-data.org/v4")
	viper.SetDefault("stats.cache_ttl", 10*time.Minute)
	viper.SetDefault("stats.timeout", 10*time.Second)
	viper.SetDefault("telemetry.enabled", true)

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("TOUCHLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		// The config file is optional; env vars plus defaults may be enough.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Server.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Index.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Session.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Redis.Validate(cfg.Session.Store == "redis"); err != nil {
		return nil, err
	}
	return &cfg, nil
}
