package store

import (
	"context"
	"time"
)

// Stage is the persisted position of the ingestion pipeline. It is written
// before each stage begins so a crashed run can resume at the stage it was
// in rather than starting over.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageFetching   Stage = "fetching"
	StageProcessing Stage = "processing"
	StageEmbedding  Stage = "embedding"
	StageCommitting Stage = "committing"
	StageFailed     Stage = "failed"
)

// RunStatus is the outcome of the most recent completed run.
type RunStatus string

const (
	// StatusNone means no run has completed yet.
	StatusNone RunStatus = "none"
	// StatusSuccess means every fetched document was stored and embedded.
	StatusSuccess RunStatus = "success"
	// StatusPartial means the run committed but some chunks are still
	// pending, typically after an embedding batch failed.
	StatusPartial RunStatus = "partial"
	// StatusFailed means the run aborted before committing.
	StatusFailed RunStatus = "failed"
)

// Checkpoint is the single-row ingestion state. Cursor is the high-water
// mark of source-side modification time already ingested; a zero Cursor
// means no successful run has committed yet.
type Checkpoint struct {
	Cursor             time.Time
	Stage              Stage
	Status             RunStatus
	DocumentsProcessed int
	LastError          string
	UpdatedAt          time.Time
}

// LoadCheckpoint reads the ingestion checkpoint. The row always exists; it
// is created by the initial migration.
func (s *Store) LoadCheckpoint(ctx context.Context) (Checkpoint, error) {
	var cp Checkpoint
	var cursor *time.Time
	var lastErr *string
	err := s.pool.QueryRow(ctx, `
		SELECT cursor_ts, stage, status, documents_processed, last_error, updated_at
		FROM ingest_checkpoints WHERE id`,
	).Scan(&cursor, &cp.Stage, &cp.Status, &cp.DocumentsProcessed, &lastErr, &cp.UpdatedAt)
	if err != nil {
		return Checkpoint{}, &StorageError{Op: "load checkpoint", Err: err}
	}
	if cursor != nil {
		cp.Cursor = *cursor
	}
	if lastErr != nil {
		cp.LastError = *lastErr
	}
	return cp, nil
}

// SaveStage records the pipeline stage about to run. It must be durable
// before the stage's work starts, otherwise a crash would resume at the
// wrong point.
func (s *Store) SaveStage(ctx context.Context, stage Stage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ingest_checkpoints SET stage = $1, updated_at = now() WHERE id`,
		string(stage))
	if err != nil {
		return &StorageError{Op: "save stage", Err: err}
	}
	return nil
}

// CommitRun finalizes a run: advances the cursor (kept when cursor is
// zero), records the outcome, and returns the pipeline to idle. The cursor
// only advances on success or partial outcomes, so a failed run retries the
// same window.
func (s *Store) CommitRun(ctx context.Context, cursor time.Time, status RunStatus, processed int, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ingest_checkpoints SET
			cursor_ts           = COALESCE($1, cursor_ts),
			stage               = $2,
			status              = $3,
			documents_processed = $4,
			last_error          = NULLIF($5, ''),
			updated_at          = now()
		WHERE id`,
		timeOrNil(cursor), string(StageIdle), string(status), processed, lastError)
	if err != nil {
		return &StorageError{Op: "commit run", Err: err}
	}
	return nil
}

// MarkFailed records an aborted run without touching the cursor.
func (s *Store) MarkFailed(ctx context.Context, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	_, err := s.pool.Exec(ctx, `
		UPDATE ingest_checkpoints SET
			stage      = $1,
			status     = $2,
			last_error = NULLIF($3, ''),
			updated_at = now()
		WHERE id`,
		string(StageFailed), string(StatusFailed), msg)
	if err != nil {
		return &StorageError{Op: "mark failed", Err: err}
	}
	return nil
}
