package config

import "time"

// SourceConfig configures access to the Federal Register document API.
type SourceConfig struct {
	// BaseURL is the API root, e.g. https://www.federalregister.gov/api/v1.
	BaseURL string `mapstructure:"base_url" json:"base_url"`

	// PerPage is the page size for document listings (API max is 1000).
	PerPage int `mapstructure:"per_page" json:"per_page"`

	// RequestsPerSecond throttles API calls.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second"`

	// MaxRetries bounds retry attempts per page fetch.
	MaxRetries int `mapstructure:"max_retries" json:"max_retries"`

	// InitialDaysBack is the window fetched when no checkpoint exists yet.
	InitialDaysBack int `mapstructure:"initial_days_back" json:"initial_days_back"`
}

// EmbeddingConfig configures the external embedding service.
// The service speaks the OpenAI embeddings API (Ollama exposes the same
// contract at /v1/embeddings).
type EmbeddingConfig struct {
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	APIKey  string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	Model   string `mapstructure:"model" json:"model"`

	// Dimensions is the declared vector dimensionality of the model.
	// Must match the pgvector column width in the schema.
	Dimensions int `mapstructure:"dimensions" json:"dimensions"`

	// BatchSize is the maximum number of texts per embedding request.
	BatchSize int `mapstructure:"batch_size" json:"batch_size"`

	// MaxRetries bounds retry attempts per batch.
	MaxRetries int `mapstructure:"max_retries" json:"max_retries"`

	// Concurrency bounds the number of in-flight batch requests.
	Concurrency int `mapstructure:"concurrency" json:"concurrency"`

	// RequestsPerSecond throttles embedding calls.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" json:"requests_per_second"`
}

// LLMConfig configures the external language-model service
// (OpenAI-compatible chat completions, e.g. Ollama).
type LLMConfig struct {
	BaseURL     string  `mapstructure:"base_url" json:"base_url"`
	APIKey      string  `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	Model       string  `mapstructure:"model" json:"model"`
	Temperature float32 `mapstructure:"temperature" json:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens" json:"max_tokens"`

	// TimeoutSeconds is the per-request generation deadline.
	TimeoutSeconds int `mapstructure:"timeout_seconds" json:"timeout_seconds"`
}

// Timeout returns the generation deadline as a duration.
func (l *LLMConfig) Timeout() time.Duration {
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// ChunkerConfig configures document segmentation.
type ChunkerConfig struct {
	MaxTokens     int `mapstructure:"max_tokens" json:"max_tokens"`
	OverlapTokens int `mapstructure:"overlap_tokens" json:"overlap_tokens"`
}

// SchedulerConfig configures the periodic ingestion runs.
type SchedulerConfig struct {
	// Interval between scheduled runs, e.g. "24h".
	Interval time.Duration `mapstructure:"interval" json:"interval"`

	// PageWorkers bounds parallel document processing within a run.
	PageWorkers int `mapstructure:"page_workers" json:"page_workers"`
}

// QueryConfig configures the retrieval-augmented query engine.
type QueryConfig struct {
	// TopK is the number of candidate chunks retrieved per question.
	TopK int `mapstructure:"top_k" json:"top_k"`

	// ContextTokenBudget bounds the retrieved context in the prompt.
	ContextTokenBudget int `mapstructure:"context_token_budget" json:"context_token_budget"`
}
