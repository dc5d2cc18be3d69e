package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// recencyWeight scales the recency boost added to cosine similarity. The
// boost decays monotonically with document age, so it nudges ties and
// near-ties toward newer documents without letting recency dominate
// relevance.
const recencyWeight = 0.05

// Store is the PostgreSQL-backed document and vector store. Safe for
// concurrent use.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a Store over an established connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{pool: pool, logger: logger}
}

// UpsertAgency records an agency, updating the display name when the slug
// already exists.
func (s *Store) UpsertAgency(ctx context.Context, slug, name string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agencies (slug, name) VALUES ($1, $2)
		ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name`,
		slug, name)
	if err != nil {
		return &StorageError{Op: "upsert agency", Err: err}
	}
	return nil
}

// GetChecksum returns the stored checksum for a document, or "" when the
// document is unknown.
func (s *Store) GetChecksum(ctx context.Context, docNumber string) (string, error) {
	var checksum string
	err := s.pool.QueryRow(ctx,
		`SELECT checksum FROM documents WHERE doc_number = $1`, docNumber,
	).Scan(&checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &StorageError{Op: "get checksum", Err: err}
	}
	return checksum, nil
}

// UpsertDocument writes a document and replaces its chunk set atomically.
// New chunks are written with NULL embeddings, marking them pending until
// the embedding stage fills them. Stale chunks from a previous version of
// the document are removed in the same transaction, so search never sees a
// mix of old and new content.
func (s *Store) UpsertDocument(ctx context.Context, doc Document, chunks []Chunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &StorageError{Op: "upsert document", Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	_, err = tx.Exec(ctx, `
		INSERT INTO documents
			(doc_number, title, agency_slug, publication_date, raw_text, checksum, fetched_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (doc_number) DO UPDATE SET
			title            = EXCLUDED.title,
			agency_slug      = EXCLUDED.agency_slug,
			publication_date = EXCLUDED.publication_date,
			raw_text         = EXCLUDED.raw_text,
			checksum         = EXCLUDED.checksum,
			fetched_at       = EXCLUDED.fetched_at,
			modified_at      = EXCLUDED.modified_at`,
		doc.DocNumber, doc.Title, textOrNil(doc.AgencySlug), timeOrNil(doc.PublicationDate),
		doc.RawText, doc.Checksum, doc.FetchedAt, timeOrNil(doc.ModifiedAt))
	if err != nil {
		return &StorageError{Op: "upsert document", Err: err}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM chunks WHERE doc_number = $1`, doc.DocNumber); err != nil {
		return &StorageError{Op: "delete stale chunks", Err: err}
	}

	rows := make([][]any, len(chunks))
	for i, ch := range chunks {
		rows[i] = []any{doc.DocNumber, ch.Seq, ch.Content, ch.TokenCount}
	}
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"chunks"},
		[]string{"doc_number", "seq", "content", "token_count"},
		pgx.CopyFromRows(rows))
	if err != nil {
		return &StorageError{Op: "insert chunks", Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &StorageError{Op: "upsert document", Err: err}
	}

	s.logger.Debug("document stored",
		"doc_number", doc.DocNumber,
		"chunks", len(chunks))
	return nil
}

// PendingChunks returns up to limit chunks whose embeddings have not been
// written yet, in stable (doc_number, seq) order.
func (s *Store) PendingChunks(ctx context.Context, limit int) ([]PendingChunk, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT doc_number, seq, content
		FROM chunks
		WHERE embedding IS NULL
		ORDER BY doc_number, seq
		LIMIT $1`, limit)
	if err != nil {
		return nil, &StorageError{Op: "list pending chunks", Err: err}
	}
	defer rows.Close()

	var pending []PendingChunk
	for rows.Next() {
		var p PendingChunk
		if err := rows.Scan(&p.DocNumber, &p.Seq, &p.Content); err != nil {
			return nil, &StorageError{Op: "list pending chunks", Err: err}
		}
		pending = append(pending, p)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list pending chunks", Err: err}
	}
	return pending, nil
}

// FillEmbeddings writes vectors for the given pending chunks in one
// transaction. len(vectors) must equal len(chunks).
func (s *Store) FillEmbeddings(ctx context.Context, chunks []PendingChunk, vectors [][]float32, model string) error {
	if len(chunks) != len(vectors) {
		return &StorageError{
			Op:  "fill embeddings",
			Err: fmt.Errorf("%d chunks but %d vectors", len(chunks), len(vectors)),
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, ch := range chunks {
		batch.Queue(`
			UPDATE chunks SET embedding = $1, embedding_model = $2
			WHERE doc_number = $3 AND seq = $4`,
			pgvector.NewVector(vectors[i]), model, ch.DocNumber, ch.Seq)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &StorageError{Op: "fill embeddings", Err: err}
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return &StorageError{Op: "fill embeddings", Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &StorageError{Op: "fill embeddings", Err: err}
	}
	return nil
}

// Search returns the topK embedded chunks most similar to the query
// vector, optionally filtered by agency and publication date. Ranking is
// cosine similarity plus a small recency boost; ties go to the newer
// document. Pending chunks never appear in results.
func (s *Store) Search(ctx context.Context, vector []float32, filter SearchFilter, topK int) ([]SearchResult, error) {
	query, args := buildSearchQuery(vector, filter, topK)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &StorageError{Op: "search", Err: err}
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var agency *string
		var pubDate *time.Time
		if err := rows.Scan(&r.DocNumber, &r.Seq, &r.Content, &r.Title, &agency, &pubDate, &r.Similarity, &r.Score); err != nil {
			return nil, &StorageError{Op: "search", Err: err}
		}
		if agency != nil {
			r.AgencySlug = *agency
		}
		if pubDate != nil {
			r.PublicationDate = *pubDate
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "search", Err: err}
	}
	return results, nil
}

// buildSearchQuery assembles the similarity query with optional filters.
// Split out so filter plumbing is testable without a database.
func buildSearchQuery(vector []float32, filter SearchFilter, topK int) (string, []any) {
	args := []any{pgvector.NewVector(vector)}

	var b strings.Builder
	b.WriteString(`
		SELECT c.doc_number, c.seq, c.content, d.title, d.agency_slug, d.publication_date,
			1 - (c.embedding <=> $1) AS similarity,
			1 - (c.embedding <=> $1) + COALESCE(
				` + fmt.Sprintf("%g", recencyWeight) + ` / (1.0 + GREATEST(EXTRACT(EPOCH FROM (now() - d.publication_date::timestamptz)), 0) / 86400.0 / 365.0),
				0) AS score
		FROM chunks c
		JOIN documents d ON d.doc_number = c.doc_number
		WHERE c.embedding IS NOT NULL`)

	if filter.AgencySlug != "" {
		args = append(args, filter.AgencySlug)
		fmt.Fprintf(&b, " AND d.agency_slug = $%d", len(args))
	}
	if !filter.DateFrom.IsZero() {
		args = append(args, filter.DateFrom)
		fmt.Fprintf(&b, " AND d.publication_date >= $%d", len(args))
	}
	if !filter.DateTo.IsZero() {
		args = append(args, filter.DateTo)
		fmt.Fprintf(&b, " AND d.publication_date <= $%d", len(args))
	}

	args = append(args, topK)
	fmt.Fprintf(&b, " ORDER BY score DESC, d.publication_date DESC NULLS LAST LIMIT $%d", len(args))

	return b.String(), args
}

// Stats reports corpus counts for the status endpoint.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	var latest *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM documents),
			(SELECT count(*) FROM chunks),
			(SELECT count(*) FROM chunks WHERE embedding IS NOT NULL),
			(SELECT count(*) FROM chunks WHERE embedding IS NULL),
			(SELECT max(publication_date) FROM documents)`,
	).Scan(&st.Documents, &st.Chunks, &st.EmbeddedChunks, &st.PendingChunks, &latest)
	if err != nil {
		return Stats{}, &StorageError{Op: "stats", Err: err}
	}
	if latest != nil {
		st.LatestDocument = *latest
	}
	return st, nil
}

func textOrNil(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func timeOrNil(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
