// Package scheduler drives the incremental ingestion pipeline: fetch
// changed documents, chunk and store them, embed pending chunks, then
// commit the cursor. The pipeline stage is persisted before each phase so
// an interrupted run resumes where durable work left off instead of
// starting over.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openregs/regrag/internal/chunker"
	"github.com/openregs/regrag/internal/config"
	"github.com/openregs/regrag/internal/ingest"
	"github.com/openregs/regrag/internal/store"
)

// ErrRunInProgress is returned by Trigger when an update cycle is already
// running. Triggers do not queue; the running cycle covers them.
var ErrRunInProgress = errors.New("scheduler: update run already in progress")

// Source lists changed documents and fetches their text.
type Source interface {
	FetchSince(ctx context.Context, since time.Time) (<-chan ingest.DocumentRef, <-chan error)
	FetchRange(ctx context.Context, from, to time.Time) (<-chan ingest.DocumentRef, <-chan error)
	FetchFullText(ctx context.Context, ref ingest.DocumentRef) (string, error)
}

// Embedder produces vectors for chunk batches.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
	BatchSize() int
}

// Storage is the store surface the pipeline writes through.
type Storage interface {
	LoadCheckpoint(ctx context.Context) (store.Checkpoint, error)
	SaveStage(ctx context.Context, stage store.Stage) error
	CommitRun(ctx context.Context, cursor time.Time, status store.RunStatus, processed int, lastError string) error
	MarkFailed(ctx context.Context, runErr error) error
	GetChecksum(ctx context.Context, docNumber string) (string, error)
	UpsertAgency(ctx context.Context, slug, name string) error
	UpsertDocument(ctx context.Context, doc store.Document, chunks []store.Chunk) error
	PendingChunks(ctx context.Context, limit int) ([]store.PendingChunk, error)
	FillEmbeddings(ctx context.Context, chunks []store.PendingChunk, vectors [][]float32, model string) error
}

// pendingLimit caps the chunks picked up per embedding stage. Anything
// beyond it stays pending for the next cycle.
const pendingLimit = 10000

// Scheduler owns the periodic update loop. Safe for concurrent use; only
// one update cycle runs at a time.
type Scheduler struct {
	source   Source
	embedder Embedder
	storage  Storage
	chunker  *chunker.Chunker
	logger   *slog.Logger

	interval    time.Duration
	pageWorkers int
	daysBack    int
	now         func() time.Time

	running atomic.Bool
}

// New builds a Scheduler. daysBack is the initial window when no cursor
// has been committed yet.
func New(source Source, embedder Embedder, storage Storage, ch *chunker.Chunker,
	cfg config.SchedulerConfig, daysBack int, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	workers := cfg.PageWorkers
	if workers <= 0 {
		workers = 1
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if daysBack <= 0 {
		daysBack = 30
	}
	return &Scheduler{
		source:      source,
		embedder:    embedder,
		storage:     storage,
		chunker:     ch,
		logger:      logger,
		interval:    interval,
		pageWorkers: workers,
		daysBack:    daysBack,
		now:         time.Now,
	}
}

// Run executes one update cycle immediately, then one per interval until
// ctx is canceled. Cycle errors are logged, not returned; the loop only
// stops with ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Trigger(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
		s.logger.Error("update run failed", "error", err)
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Trigger(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				s.logger.Error("update run failed", "error", err)
			}
		}
	}
}

// Trigger starts one update cycle. Returns ErrRunInProgress when a cycle
// is already running; concurrent triggers coalesce into it.
func (s *Scheduler) Trigger(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.runOnce(ctx)
}

// Running reports whether an update cycle is in flight.
func (s *Scheduler) Running() bool { return s.running.Load() }

// Backfill ingests documents published inside [from, to] through the same
// pipeline as a scheduled run, but never moves the incremental cursor.
// Checksum dedup makes overlap with already ingested windows a no-op.
func (s *Scheduler) Backfill(ctx context.Context, from, to time.Time) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrRunInProgress
	}
	defer s.running.Store(false)

	s.logger.Info("backfill starting", "from", from, "to", to)

	if err := s.storage.SaveStage(ctx, store.StageFetching); err != nil {
		return err
	}
	refCh, errc := s.source.FetchRange(ctx, from, to)
	var refs []ingest.DocumentRef
	for ref := range refCh {
		refs = append(refs, ref)
	}
	if err := <-errc; err != nil {
		return s.fail(ctx, err)
	}

	if err := s.storage.SaveStage(ctx, store.StageProcessing); err != nil {
		return err
	}
	processed, docErrs, err := s.processAll(ctx, refs)
	if err != nil {
		return s.fail(ctx, err)
	}

	return s.finishRun(ctx, time.Time{}, processed, docErrs)
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	cp, err := s.storage.LoadCheckpoint(ctx)
	if err != nil {
		return err
	}

	// A stage other than idle or failed means the previous run was
	// interrupted. Fetching and processing already persisted their work
	// as documents with pending chunks, so the resume path goes straight
	// to embedding. The cursor is left alone; the next full cycle
	// re-lists from it and checksum dedup skips unchanged documents.
	switch cp.Stage {
	case store.StageProcessing, store.StageEmbedding, store.StageCommitting:
		s.logger.Info("resuming interrupted run", "stage", string(cp.Stage))
		return s.finishRun(ctx, time.Time{}, 0, nil)
	}

	started := s.now()
	since := cp.Cursor
	if since.IsZero() {
		since = started.AddDate(0, 0, -s.daysBack)
	}

	s.logger.Info("update run starting", "since", since)

	if err := s.storage.SaveStage(ctx, store.StageFetching); err != nil {
		return err
	}
	refs, fetchErr := s.fetchRefs(ctx, since)
	if fetchErr != nil && len(refs) == 0 {
		// No progress at all; retry the same window next cycle.
		return s.fail(ctx, fetchErr)
	}

	// A page failure mid-listing degrades the run to partial: the
	// documents already listed are processed, but the cursor stays put so
	// the next cycle re-lists the window and picks up what was missed.
	cursor := started
	var runErrs []error
	if fetchErr != nil {
		cursor = time.Time{}
		runErrs = append(runErrs, fetchErr)
		s.logger.Warn("listing incomplete, continuing with fetched documents",
			"documents", len(refs),
			"error", fetchErr)
	}

	if err := s.storage.SaveStage(ctx, store.StageProcessing); err != nil {
		return err
	}
	processed, docErrs, err := s.processAll(ctx, refs)
	if err != nil {
		return s.fail(ctx, err)
	}

	return s.finishRun(ctx, cursor, processed, append(runErrs, docErrs...))
}

// finishRun runs the embedding and committing stages shared by fresh and
// resumed cycles. A zero cursor leaves the committed cursor unchanged.
func (s *Scheduler) finishRun(ctx context.Context, cursor time.Time, processed int, runErrs []error) error {
	if err := s.storage.SaveStage(ctx, store.StageEmbedding); err != nil {
		return err
	}
	embedErrs, err := s.embedPending(ctx)
	if err != nil {
		return s.fail(ctx, err)
	}
	runErrs = append(runErrs, embedErrs...)

	if err := s.storage.SaveStage(ctx, store.StageCommitting); err != nil {
		return err
	}

	status := store.StatusSuccess
	lastError := ""
	if len(runErrs) > 0 {
		status = store.StatusPartial
		lastError = runErrs[len(runErrs)-1].Error()
	}
	if err := s.storage.CommitRun(ctx, cursor, status, processed, lastError); err != nil {
		return err
	}

	s.logger.Info("update run finished",
		"status", string(status),
		"documents", processed,
		"errors", len(runErrs))
	return nil
}

func (s *Scheduler) fail(ctx context.Context, runErr error) error {
	if err := s.storage.MarkFailed(ctx, runErr); err != nil {
		s.logger.Error("recording failed run", "error", err)
	}
	return runErr
}

// fetchRefs drains the source listing. On a page failure it returns the
// references gathered before the failure along with the error.
func (s *Scheduler) fetchRefs(ctx context.Context, since time.Time) ([]ingest.DocumentRef, error) {
	refCh, errc := s.source.FetchSince(ctx, since)
	var refs []ingest.DocumentRef
	for ref := range refCh {
		refs = append(refs, ref)
	}
	if err := <-errc; err != nil {
		return refs, err
	}
	s.logger.Debug("listing fetched", "documents", len(refs))
	return refs, nil
}

// processAll fetches, chunks, and stores each document with a bounded
// worker pool. Per-document fetch failures are collected and downgrade the
// run to partial; storage failures abort it.
func (s *Scheduler) processAll(ctx context.Context, refs []ingest.DocumentRef) (int, []error, error) {
	var (
		mu        sync.Mutex
		processed int
		docErrs   []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.pageWorkers)

	for _, ref := range refs {
		g.Go(func() error {
			changed, err := s.processOne(gctx, ref)
			if err != nil {
				var storErr *store.StorageError
				if errors.As(err, &storErr) {
					return err // storage failures are not per-document noise
				}
				mu.Lock()
				docErrs = append(docErrs, fmt.Errorf("document %s: %w", ref.DocNumber, err))
				mu.Unlock()
				s.logger.Warn("document skipped", "doc_number", ref.DocNumber, "error", err)
				return nil
			}
			if changed {
				mu.Lock()
				processed++
				mu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, nil, err
	}
	return processed, docErrs, nil
}

// processOne stores one document. Returns false when the stored checksum
// already matches, making re-ingestion of an unchanged document a no-op.
func (s *Scheduler) processOne(ctx context.Context, ref ingest.DocumentRef) (bool, error) {
	text, err := s.source.FetchFullText(ctx, ref)
	if err != nil {
		return false, err
	}

	checksum := ingest.Checksum(text)
	existing, err := s.storage.GetChecksum(ctx, ref.DocNumber)
	if err != nil {
		return false, err
	}
	if existing == checksum {
		return false, nil
	}

	if ref.AgencySlug != "" {
		if err := s.storage.UpsertAgency(ctx, ref.AgencySlug, ref.AgencyName); err != nil {
			return false, err
		}
	}

	pieces := s.chunker.Split(text)
	chunks := make([]store.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = store.Chunk{
			Seq:        p.Seq,
			Content:    p.Text,
			TokenCount: p.TokenCount,
		}
	}

	doc := store.Document{
		DocNumber:       ref.DocNumber,
		Title:           ref.Title,
		AgencySlug:      ref.AgencySlug,
		PublicationDate: ref.PublicationDate,
		RawText:         text,
		Checksum:        checksum,
		FetchedAt:       s.now(),
	}
	return true, s.storage.UpsertDocument(ctx, doc, chunks)
}

// embedPending fills vectors for pending chunks batch by batch. A failed
// batch leaves its chunks pending for the next cycle and downgrades the
// run to partial; sibling batches still commit.
func (s *Scheduler) embedPending(ctx context.Context) ([]error, error) {
	pending, err := s.storage.PendingChunks(ctx, pendingLimit)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return nil, nil
	}

	batchSize := s.embedder.BatchSize()
	if batchSize <= 0 {
		batchSize = 32
	}

	var batchErrs []error
	for start := 0; start < len(pending); start += batchSize {
		end := min(start+batchSize, len(pending))
		batch := pending[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.Content
		}

		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			if ctx.Err() != nil {
				return batchErrs, ctx.Err()
			}
			batchErrs = append(batchErrs, err)
			s.logger.Warn("embedding batch failed, chunks stay pending",
				"batch_start", start,
				"batch_size", len(batch),
				"error", err)
			continue
		}

		if err := s.storage.FillEmbeddings(ctx, batch, vectors, s.embedder.Model()); err != nil {
			return batchErrs, err
		}
	}

	s.logger.Debug("embedding stage finished",
		"pending", len(pending),
		"failed_batches", len(batchErrs))
	return batchErrs, nil
}
