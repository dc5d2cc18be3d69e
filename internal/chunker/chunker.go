// Package chunker splits document text into bounded, overlapping segments
// for embedding and retrieval.
//
// Tokens are whitespace-delimited words. Chunk boundaries are
// sentence-aware: a boundary is placed after the last sentence that fits
// within the token budget, falling back to a hard split only when a single
// sentence exceeds the budget. Consecutive chunks share a configurable
// number of overlap tokens so retrieval keeps cross-boundary context.
//
// Splitting is deterministic: identical input and configuration always
// produce the identical chunk sequence. This property is what makes
// checksum-based dedup and idempotent re-ingestion possible.
package chunker

import (
	"fmt"
	"strings"
)

// ChunkingError reports an invalid segmentation configuration.
type ChunkingError struct {
	Reason string
}

func (e *ChunkingError) Error() string {
	return "chunking: " + e.Reason
}

// Config controls segmentation.
type Config struct {
	// MaxTokens is the maximum number of tokens per chunk, including the
	// leading overlap carried from the previous chunk.
	MaxTokens int

	// OverlapTokens is the number of trailing tokens each chunk shares
	// with its successor. Must be smaller than MaxTokens.
	OverlapTokens int
}

// Chunk is one bounded segment of a document.
type Chunk struct {
	Seq        int    // 0-based, gapless sequence index within the document
	Text       string // chunk text (single-space joined tokens)
	TokenCount int
}

// Chunker splits raw text according to a fixed configuration.
// Safe for concurrent use; it holds no mutable state.
type Chunker struct {
	maxTokens int
	overlap   int
}

// New creates a Chunker. Returns *ChunkingError when the configuration
// cannot produce a terminating chunk sequence.
func New(cfg Config) (*Chunker, error) {
	if cfg.MaxTokens <= 0 {
		return nil, &ChunkingError{Reason: fmt.Sprintf("max_tokens must be positive, got %d", cfg.MaxTokens)}
	}
	if cfg.OverlapTokens < 0 {
		return nil, &ChunkingError{Reason: fmt.Sprintf("overlap_tokens must not be negative, got %d", cfg.OverlapTokens)}
	}
	if cfg.OverlapTokens >= cfg.MaxTokens {
		return nil, &ChunkingError{Reason: fmt.Sprintf("overlap_tokens %d must be smaller than max_tokens %d", cfg.OverlapTokens, cfg.MaxTokens)}
	}
	return &Chunker{maxTokens: cfg.MaxTokens, overlap: cfg.OverlapTokens}, nil
}

// Split segments text into an ordered chunk sequence. Empty or
// whitespace-only text yields no chunks.
func (c *Chunker) Split(text string) []Chunk {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for start < len(tokens) {
		end := c.boundary(tokens, start)

		chunks = append(chunks, Chunk{
			Seq:        len(chunks),
			Text:       strings.Join(tokens[start:end], " "),
			TokenCount: end - start,
		})

		if end == len(tokens) {
			break
		}

		next := end - c.overlap
		if next <= start {
			// Chunk shorter than the overlap; drop the overlap to
			// guarantee forward progress.
			next = end
		}
		start = next
	}

	return chunks
}

// boundary returns the token index ending the chunk that starts at start.
// It prefers the last sentence end within the budget and hard-splits when
// the first sentence alone exceeds it.
func (c *Chunker) boundary(tokens []string, start int) int {
	limit := start + c.maxTokens
	if limit >= len(tokens) {
		return len(tokens)
	}

	for i := limit - 1; i > start; i-- {
		if endsSentence(tokens[i]) {
			return i + 1
		}
	}

	// No sentence boundary inside the budget: hard split mid-sentence.
	return limit
}

// endsSentence reports whether a token terminates a sentence. Terminal
// punctuation may be followed by closing quotes or brackets.
func endsSentence(token string) bool {
	token = strings.TrimRight(token, `"')]`)
	if token == "" {
		return false
	}
	switch token[len(token)-1] {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}
