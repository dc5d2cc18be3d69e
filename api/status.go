package api

import (
	"context"
	"net/http"
	"time"
)

type statusResponse struct {
	Stage              string     `json:"stage"`
	LastRunStatus      string     `json:"last_run_status"`
	Cursor             *time.Time `json:"cursor,omitempty"`
	DocumentsProcessed int        `json:"documents_processed"`
	LastError          string     `json:"last_error,omitempty"`
	UpdateRunning      bool       `json:"update_running"`
	Documents          int64      `json:"documents"`
	Chunks             int64      `json:"chunks"`
	EmbeddedChunks     int64      `json:"embedded_chunks"`
	PendingChunks      int64      `json:"pending_chunks"`
	LatestDocument     *time.Time `json:"latest_document,omitempty"`
	ActiveSessions     int        `json:"active_sessions"`
}

// handleStatus reports pipeline state and corpus counts.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	cp, err := s.status.LoadCheckpoint(r.Context())
	if err != nil {
		s.logger.Error("loading checkpoint", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read pipeline state")
		return
	}
	stats, err := s.status.Stats(r.Context())
	if err != nil {
		s.logger.Error("loading stats", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read corpus stats")
		return
	}

	resp := statusResponse{
		Stage:              string(cp.Stage),
		LastRunStatus:      string(cp.Status),
		DocumentsProcessed: cp.DocumentsProcessed,
		LastError:          cp.LastError,
		UpdateRunning:      s.updater.Running(),
		Documents:          stats.Documents,
		Chunks:             stats.Chunks,
		EmbeddedChunks:     stats.EmbeddedChunks,
		PendingChunks:      stats.PendingChunks,
		ActiveSessions:     s.sessions.Len(),
	}
	if !cp.Cursor.IsZero() {
		resp.Cursor = &cp.Cursor
	}
	if !stats.LatestDocument.IsZero() {
		resp.LatestDocument = &stats.LatestDocument
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleIngest starts an update cycle in the background. A cycle already
// in flight absorbs the trigger.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.updater.Running() {
		writeJSON(w, http.StatusConflict, map[string]string{"status": "already running"})
		return
	}

	go func() {
		if err := s.updater.Trigger(context.Background()); err != nil {
			s.logger.Error("triggered update failed", "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
