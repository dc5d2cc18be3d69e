// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.regrag/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Storage: PostgreSQL connection (see storage.go)
//   - Source: Federal Register API access (see services.go)
//   - Embedding / LLM: external model services (see services.go)
//   - Pipeline: chunking and scheduling (see services.go)
//
// Security: sensitive values (passwords, API keys) are masked in
// MarshalJSON and String. Validation lives in validation.go and uses
// sentinel errors for errors.Is checks.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON.
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// Storage configuration (see storage.go)
	Postgres PostgresConfig `mapstructure:"postgres" json:"postgres"`

	// Federal Register source API configuration
	Source SourceConfig `mapstructure:"source" json:"source"`

	// Embedding service configuration
	Embedding EmbeddingConfig `mapstructure:"embedding" json:"embedding"`

	// Language-model service configuration
	LLM LLMConfig `mapstructure:"llm" json:"llm"`

	// Chunking configuration
	Chunker ChunkerConfig `mapstructure:"chunker" json:"chunker"`

	// Ingestion scheduler configuration
	Scheduler SchedulerConfig `mapstructure:"scheduler" json:"scheduler"`

	// Query engine configuration
	Query QueryConfig `mapstructure:"query" json:"query"`

	// HTTP API configuration
	API APIConfig `mapstructure:"api" json:"api"`
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	// Addr is the listen address for the HTTP server.
	Addr string `mapstructure:"addr" json:"addr"`

	// SessionTTLSeconds is how long an idle chat session is retained.
	SessionTTLSeconds int `mapstructure:"session_ttl_seconds" json:"session_ttl_seconds"`

	// MaxHistoryMessages bounds the per-session conversation history.
	MaxHistoryMessages int `mapstructure:"max_history_messages" json:"max_history_messages"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	// Configuration directory: ~/.regrag/ (optional)
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".regrag"))
	}
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides individual postgres settings (cloud convention).
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// PostgreSQL defaults for local development
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "regrag")
	v.SetDefault("postgres.password", "regrag_dev_password")
	v.SetDefault("postgres.db_name", "regrag")
	v.SetDefault("postgres.ssl_mode", "disable")

	// Federal Register source defaults
	v.SetDefault("source.base_url", "https://www.federalregister.gov/api/v1")
	v.SetDefault("source.per_page", 100)
	v.SetDefault("source.requests_per_second", 2.0)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.initial_days_back", 7)

	// Embedding service defaults (Ollama's OpenAI-compatible endpoint)
	v.SetDefault("embedding.base_url", "http://localhost:11434/v1")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.dimensions", 768)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.max_retries", 4)
	v.SetDefault("embedding.concurrency", 4)
	v.SetDefault("embedding.requests_per_second", 4.0)

	// LLM defaults
	v.SetDefault("llm.base_url", "http://localhost:11434/v1")
	v.SetDefault("llm.model", "llama3.1")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1500)
	v.SetDefault("llm.timeout_seconds", 120)

	// Chunker defaults
	v.SetDefault("chunker.max_tokens", 500)
	v.SetDefault("chunker.overlap_tokens", 50)

	// Scheduler defaults (daily incremental update)
	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.page_workers", 4)

	// Query engine defaults
	v.SetDefault("query.top_k", 8)
	v.SetDefault("query.context_token_budget", 3000)

	// API defaults
	v.SetDefault("api.addr", "127.0.0.1:8400")
	v.SetDefault("api.session_ttl_seconds", 3600)
	v.SetDefault("api.max_history_messages", 20)
}

// bindEnvVariables binds environment variable overrides explicitly.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a failure here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("postgres.password", "REGRAG_POSTGRES_PASSWORD")
	mustBind("embedding.api_key", "REGRAG_EMBEDDING_API_KEY")
	mustBind("llm.api_key", "REGRAG_LLM_API_KEY")

	mustBind("source.base_url", "REGRAG_SOURCE_BASE_URL")
	mustBind("embedding.base_url", "REGRAG_EMBEDDING_BASE_URL")
	mustBind("embedding.model", "REGRAG_EMBEDDING_MODEL")
	mustBind("llm.base_url", "REGRAG_LLM_BASE_URL")
	mustBind("llm.model", "REGRAG_LLM_MODEL")
	mustBind("api.addr", "REGRAG_API_ADDR")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Short secrets are
// fully masked to prevent substring matching; longer ones keep the first
// and last two characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
//
// Masked fields: Postgres.Password, Embedding.APIKey, LLM.APIKey.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.Postgres.Password = maskSecret(a.Postgres.Password)
	a.Embedding.APIKey = maskSecret(a.Embedding.APIKey)
	a.LLM.APIKey = maskSecret(a.LLM.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
