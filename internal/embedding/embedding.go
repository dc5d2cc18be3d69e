// Package embedding turns chunk text into fixed-dimension vectors through
// an OpenAI-compatible embeddings endpoint such as Ollama's.
package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/openregs/regrag/internal/config"
)

// EmbeddingError reports a failure to produce vectors for a batch of texts.
type EmbeddingError struct {
	Model string
	Batch int // 0-based batch index within the Embed call
	Err   error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding: model %s batch %d: %v", e.Model, e.Batch, e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

// cacheKey identifies a cached vector by content hash and model. A model
// change invalidates every entry because vectors from different models are
// not comparable.
type cacheKey struct {
	sum   [sha256.Size]byte
	model string
}

// Client calls an OpenAI-compatible /embeddings endpoint. Safe for
// concurrent use.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	dims        int
	batchSize   int
	maxRetries  int
	concurrency int
	limiter     *rate.Limiter

	mu    sync.Mutex
	cache map[cacheKey][]float32
}

// NewClient builds a Client from configuration. The HTTP client may be nil,
// in which case a default with a 60s timeout is used.
func NewClient(cfg config.EmbeddingConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 32
	}
	conc := cfg.Concurrency
	if conc <= 0 {
		conc = 1
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 4
	}
	return &Client{
		httpClient:  httpClient,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		dims:        cfg.Dimensions,
		batchSize:   batch,
		maxRetries:  cfg.MaxRetries,
		concurrency: conc,
		limiter:     rate.NewLimiter(rate.Limit(rps), 1),
		cache:       make(map[cacheKey][]float32),
	}
}

// Model returns the configured model identifier, recorded alongside each
// stored vector.
func (c *Client) Model() string { return c.model }

// Dimensions returns the expected vector width.
func (c *Client) Dimensions() int { return c.dims }

// BatchSize returns the maximum number of texts sent per request.
func (c *Client) BatchSize() int { return c.batchSize }

// Embed produces one vector per input text, in input order. Inputs are
// split into batches and embedded concurrently; any batch failure fails
// the whole call with an *EmbeddingError. Results for previously seen
// (text, model) pairs are served from cache without a network call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))

	// Resolve cache hits first so only misses go over the wire.
	var missIdx []int
	c.mu.Lock()
	for i, text := range texts {
		key := cacheKey{sum: sha256.Sum256([]byte(text)), model: c.model}
		if vec, ok := c.cache[key]; ok {
			vectors[i] = vec
		} else {
			missIdx = append(missIdx, i)
		}
	}
	c.mu.Unlock()

	if len(missIdx) == 0 {
		return vectors, nil
	}

	// A plain Group (no shared cancel) so one failed batch does not abort
	// siblings already in flight; their vectors still land in the cache.
	var g errgroup.Group
	g.SetLimit(c.concurrency)

	for batch := 0; batch*c.batchSize < len(missIdx); batch++ {
		lo := batch * c.batchSize
		hi := min(lo+c.batchSize, len(missIdx))
		indices := missIdx[lo:hi]

		g.Go(func() error {
			inputs := make([]string, len(indices))
			for j, i := range indices {
				inputs[j] = texts[i]
			}

			vecs, err := c.embedBatch(ctx, inputs)
			if err != nil {
				return &EmbeddingError{Model: c.model, Batch: batch, Err: err}
			}

			c.mu.Lock()
			for j, i := range indices {
				vectors[i] = vecs[j]
				key := cacheKey{sum: sha256.Sum256([]byte(texts[i])), model: c.model}
				c.cache[key] = vecs[j]
			}
			c.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// embedBatch sends one request, retrying transient failures with
// exponential backoff.
func (c *Client) embedBatch(ctx context.Context, inputs []string) ([][]float32, error) {
	var vecs [][]float32

	operation := func() error {
		var err error
		vecs, err = c.doRequest(ctx, inputs)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxRetries)),
		ctx,
	)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, err
	}
	return vecs, nil
}

func (c *Client) doRequest(ctx context.Context, inputs []string) ([][]float32, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, backoff.Permanent(err)
	}

	body, err := json.Marshal(embedRequest{Model: c.model, Input: inputs})
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err // network errors are retryable
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decoding response: %w", err))
	}
	if len(parsed.Data) != len(inputs) {
		return nil, backoff.Permanent(fmt.Errorf("got %d embeddings for %d inputs", len(parsed.Data), len(inputs)))
	}

	sort.Slice(parsed.Data, func(i, j int) bool { return parsed.Data[i].Index < parsed.Data[j].Index })

	vecs := make([][]float32, len(inputs))
	for i, d := range parsed.Data {
		if len(d.Embedding) != c.dims {
			return nil, backoff.Permanent(fmt.Errorf("vector has %d dimensions, expected %d", len(d.Embedding), c.dims))
		}
		vecs[i] = d.Embedding
	}
	return vecs, nil
}
