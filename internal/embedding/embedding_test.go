package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/openregs/regrag/internal/config"
)

const testDims = 4

// fakeVector derives a deterministic vector from the input text so tests
// can check that outputs line up with inputs.
func fakeVector(text string) []float32 {
	vec := make([]float32, testDims)
	for i := range vec {
		vec[i] = float32(len(text) + i)
	}
	return vec
}

func newTestServer(t *testing.T, calls *atomic.Int64, failFirst int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if int(n) <= failFirst {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}

		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		resp := embedResponse{}
		for i, input := range req.Input {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: fakeVector(input)})
		}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			t.Errorf("encoding response: %v", err)
		}
	}))
}

func testConfig(baseURL string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		BaseURL:           baseURL,
		Model:             "test-embed",
		Dimensions:        testDims,
		BatchSize:         2,
		MaxRetries:        2,
		Concurrency:       2,
		RequestsPerSecond: 1000,
	}
}

func TestEmbedPreservesInputOrder(t *testing.T) {
	var calls atomic.Int64
	srv := newTestServer(t, &calls, 0)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := c.Embed(context.Background(), texts)
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	for i, text := range texts {
		want := fakeVector(text)
		for j := range want {
			if vecs[i][j] != want[j] {
				t.Fatalf("vector %d does not match input %q", i, text)
			}
		}
	}
	// 5 texts with batch size 2 means 3 requests.
	if got := calls.Load(); got != 3 {
		t.Errorf("server saw %d requests, want 3", got)
	}
}

func TestEmbedCachesByContentAndModel(t *testing.T) {
	var calls atomic.Int64
	srv := newTestServer(t, &calls, 0)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())

	if _, err := c.Embed(context.Background(), []string{"alpha", "beta"}); err != nil {
		t.Fatal(err)
	}
	first := calls.Load()

	// Second call with the same texts must not hit the server.
	if _, err := c.Embed(context.Background(), []string{"alpha", "beta"}); err != nil {
		t.Fatal(err)
	}
	if got := calls.Load(); got != first {
		t.Errorf("cached call reached the server: %d requests, want %d", got, first)
	}

	// A mixed call only sends the misses.
	vecs, err := c.Embed(context.Background(), []string{"alpha", "gamma"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vecs) != 2 {
		t.Fatalf("got %d vectors, want 2", len(vecs))
	}
}

func TestEmbedRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	srv := newTestServer(t, &calls, 1)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.BatchSize = 8
	c := NewClient(cfg, srv.Client())

	if _, err := c.Embed(context.Background(), []string{"retry me"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "unknown model", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())

	_, err := c.Embed(context.Background(), []string{"x"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected *EmbeddingError, got %T", err)
	}
	if embErr.Model != "test-embed" {
		t.Errorf("EmbeddingError.Model = %q, want test-embed", embErr.Model)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("server saw %d requests, want 1 (no retries on 400)", got)
	}
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		resp := embedResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Index     int       `json:"index"`
				Embedding []float32 `json:"embedding"`
			}{Index: i, Embedding: []float32{1, 2}}) // wrong width
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())

	_, err := c.Embed(context.Background(), []string{"x"})
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected *EmbeddingError, got %v", err)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	c := NewClient(testConfig("http://unused"), nil)
	vecs, err := c.Embed(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if vecs != nil {
		t.Errorf("expected nil vectors for empty input, got %d", len(vecs))
	}
}

func TestEmbedQuery(t *testing.T) {
	var calls atomic.Int64
	srv := newTestServer(t, &calls, 0)
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())
	vec, err := c.EmbedQuery(context.Background(), "what changed?")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != testDims {
		t.Fatalf("vector has %d dimensions, want %d", len(vec), testDims)
	}
	want := fakeVector("what changed?")
	for i := range want {
		if vec[i] != want[i] {
			t.Fatal("query vector does not match input")
		}
	}
}
