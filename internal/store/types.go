// Package store persists documents, chunks, and their embeddings in
// PostgreSQL with pgvector, and serves similarity search over them.
package store

import (
	"fmt"
	"time"
)

// StorageError reports a database failure. Op names the store operation
// that failed.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Document is one regulatory document as fetched from the source.
type Document struct {
	DocNumber       string
	Title           string
	AgencySlug      string
	PublicationDate time.Time
	RawText         string
	Checksum        string // sha256 hex of the raw text
	FetchedAt       time.Time
	ModifiedAt      time.Time // source-side modification time; zero if unknown
}

// Chunk is one stored segment of a document. A nil Embedding means the
// chunk is pending: written during processing but not yet embedded.
type Chunk struct {
	DocNumber      string
	Seq            int
	Content        string
	TokenCount     int
	Embedding      []float32
	EmbeddingModel string
}

// PendingChunk identifies a chunk awaiting an embedding.
type PendingChunk struct {
	DocNumber string
	Seq       int
	Content   string
}

// SearchFilter narrows similarity search. Zero values mean no constraint.
type SearchFilter struct {
	AgencySlug string
	DateFrom   time.Time
	DateTo     time.Time
}

// SearchResult is one chunk returned by Search, ranked by score.
type SearchResult struct {
	DocNumber       string
	Seq             int
	Content         string
	Title           string
	AgencySlug      string
	PublicationDate time.Time
	Similarity      float64 // cosine similarity in [-1, 1]
	Score           float64 // similarity plus recency boost; ranking key
}

// Stats summarizes the corpus for the status surface.
type Stats struct {
	Documents      int64
	Chunks         int64
	EmbeddedChunks int64
	PendingChunks  int64
	LatestDocument time.Time // newest publication date; zero when empty
}
