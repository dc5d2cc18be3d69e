package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/openregs/regrag/internal/config"
)

func testConfig(baseURL string) config.LLMConfig {
	return config.LLMConfig{
		BaseURL:        baseURL,
		Model:          "test-llm",
		Temperature:    0.1,
		MaxTokens:      256,
		TimeoutSeconds: 5,
	}
}

func TestCompleteReturnsAssistantReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Model != "test-llm" {
			t.Errorf("request model = %q, want test-llm", req.Model)
		}
		if req.Stream {
			t.Error("request asked for streaming")
		}
		if len(req.Messages) != 2 {
			t.Errorf("request carried %d messages, want 2", len(req.Messages))
		}

		resp := map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"role": "assistant", "content": "The rule takes effect in March."},
				"finish_reason": "stop",
			}},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())
	reply, err := c.Complete(context.Background(), []Message{
		{Role: RoleSystem, Content: "You answer questions about regulations."},
		{Role: RoleUser, Content: "When does the rule take effect?"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if reply != "The rule takes effect in March." {
		t.Errorf("reply = %q", reply)
	}
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	var llmErr *LLMError
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *LLMError, got %T", err)
	}
	if llmErr.Model != "test-llm" {
		t.Errorf("LLMError.Model = %q", llmErr.Model)
	}
}

func TestCompleteTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.TimeoutSeconds = 1
	c := NewClient(cfg, srv.Client())

	// Shorten further via a tiny client-side deadline so the test stays fast.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Complete(ctx, []Message{{Role: RoleUser, Content: "hi"}})
	var llmErr *LLMError
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *LLMError, got %T", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded in chain, got %v", err)
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	}))
	defer srv.Close()

	c := NewClient(testConfig(srv.URL), srv.Client())
	_, err := c.Complete(context.Background(), []Message{{Role: RoleUser, Content: "hi"}})
	var llmErr *LLMError
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *LLMError, got %T", err)
	}
}

func TestCompleteNoMessages(t *testing.T) {
	c := NewClient(testConfig("http://unused"), nil)
	_, err := c.Complete(context.Background(), nil)
	var llmErr *LLMError
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *LLMError, got %T", err)
	}
}
