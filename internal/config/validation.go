package config

import (
	"errors"
	"fmt"
	"net/url"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidSourceURL indicates the document source base URL is invalid.
	ErrInvalidSourceURL = errors.New("invalid source base URL")

	// ErrInvalidServiceURL indicates an embedding/LLM base URL is invalid.
	ErrInvalidServiceURL = errors.New("invalid service base URL")

	// ErrInvalidDimensions indicates the embedding dimensionality is invalid.
	ErrInvalidDimensions = errors.New("invalid embedding dimensions")

	// ErrInvalidBatchSize indicates the embedding batch size is invalid.
	ErrInvalidBatchSize = errors.New("invalid embedding batch size")

	// ErrInvalidChunking indicates the chunker configuration is invalid.
	ErrInvalidChunking = errors.New("invalid chunker configuration")

	// ErrInvalidTemperature indicates the LLM temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidInterval indicates the scheduler interval is invalid.
	ErrInvalidInterval = errors.New("invalid scheduler interval")
)

// Validate checks the configuration for invalid values (fail-fast at load).
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.Postgres.Host == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
		return fmt.Errorf("%w: %d (must be 1-65535)", ErrInvalidPostgresPort, c.Postgres.Port)
	}
	if c.Postgres.DBName == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}

	if err := validateHTTPURL(c.Source.BaseURL); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSourceURL, err)
	}
	if err := validateHTTPURL(c.Embedding.BaseURL); err != nil {
		return fmt.Errorf("%w: embedding: %v", ErrInvalidServiceURL, err)
	}
	if err := validateHTTPURL(c.LLM.BaseURL); err != nil {
		return fmt.Errorf("%w: llm: %v", ErrInvalidServiceURL, err)
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDimensions, c.Embedding.Dimensions)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBatchSize, c.Embedding.BatchSize)
	}

	if c.Chunker.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens %d", ErrInvalidChunking, c.Chunker.MaxTokens)
	}
	if c.Chunker.OverlapTokens < 0 || c.Chunker.OverlapTokens >= c.Chunker.MaxTokens {
		return fmt.Errorf("%w: overlap_tokens %d must be in [0, max_tokens)", ErrInvalidChunking, c.Chunker.OverlapTokens)
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("%w: %v (must be 0-2)", ErrInvalidTemperature, c.LLM.Temperature)
	}

	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidInterval, c.Scheduler.Interval)
	}

	return nil
}

// validateHTTPURL checks that s is an absolute http(s) URL.
func validateHTTPURL(s string) error {
	if s == "" {
		return errors.New("URL is empty")
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
