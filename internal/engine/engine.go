// Package engine answers questions over the ingested corpus: embed the
// question, retrieve similar chunks, assemble a bounded prompt, and
// generate a cited answer.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openregs/regrag/internal/config"
	"github.com/openregs/regrag/internal/llm"
	"github.com/openregs/regrag/internal/store"
)

// RetrievalError reports a failure while finding context for a question,
// covering both query embedding and vector search.
type RetrievalError struct {
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval: %v", e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// noContextBlock replaces the excerpt block when retrieval finds nothing.
// The model is still asked, with instructions that forbid inventing
// sources, so conversational questions get a response instead of an error.
const noContextBlock = "No matching regulatory documents were found for this question. State that no relevant documents are in the corpus; do not cite or invent sources."

// Citation points at a chunk whose text was part of the prompt.
type Citation struct {
	DocNumber       string    `json:"doc_number"`
	Seq             int       `json:"seq"`
	Title           string    `json:"title"`
	AgencySlug      string    `json:"agency_slug,omitempty"`
	PublicationDate time.Time `json:"publication_date"`
	Score           float64   `json:"score"`
}

// Answer is a generated response plus the chunks it was grounded on.
// Citations only ever reference chunks that were in the prompt.
type Answer struct {
	Text      string
	Citations []Citation
}

// Searcher finds similar chunks.
type Searcher interface {
	Search(ctx context.Context, vector []float32, filter store.SearchFilter, topK int) ([]store.SearchResult, error)
}

// QueryEmbedder embeds a single question.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Generator produces the final answer text.
type Generator interface {
	Complete(ctx context.Context, messages []llm.Message) (string, error)
}

// Engine wires retrieval and generation together. Safe for concurrent use.
type Engine struct {
	searcher  Searcher
	embedder  QueryEmbedder
	generator Generator
	logger    *slog.Logger

	topK   int
	budget int
}

// New builds an Engine from configuration.
func New(searcher Searcher, embedder QueryEmbedder, generator Generator,
	cfg config.QueryConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 8
	}
	budget := cfg.ContextTokenBudget
	if budget <= 0 {
		budget = 3000
	}
	return &Engine{
		searcher:  searcher,
		embedder:  embedder,
		generator: generator,
		logger:    logger,
		topK:      topK,
		budget:    budget,
	}
}

// Answer runs the full retrieval-augmented flow for one question. history
// carries prior turns of the conversation and is placed between the system
// prompt and the current question. Zero retrieval results produce a
// fallback answer with no citations, not an error.
func (e *Engine) Answer(ctx context.Context, question string, history []llm.Message) (Answer, error) {
	filter := extractFilter(question)

	vector, err := e.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return Answer{}, &RetrievalError{Err: err}
	}

	results, err := e.searcher.Search(ctx, vector, filter, e.topK)
	if err != nil {
		return Answer{}, &RetrievalError{Err: err}
	}

	e.logger.Debug("retrieval finished",
		"results", len(results),
		"agency_filter", filter.AgencySlug)

	contextBlock, included := buildContext(results, e.budget)
	if len(included) == 0 {
		contextBlock = noContextBlock
	}

	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, llm.Message{
		Role:    llm.RoleUser,
		Content: buildUserMessage(question, contextBlock),
	})

	text, err := e.generator.Complete(ctx, messages)
	if err != nil {
		return Answer{}, err // *llm.LLMError passes through
	}

	citations := make([]Citation, len(included))
	for i, r := range included {
		citations[i] = Citation{
			DocNumber:       r.DocNumber,
			Seq:             r.Seq,
			Title:           r.Title,
			AgencySlug:      r.AgencySlug,
			PublicationDate: r.PublicationDate,
			Score:           r.Score,
		}
	}

	return Answer{Text: text, Citations: citations}, nil
}
