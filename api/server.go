// Package api exposes the HTTP surface: chat over the corpus, corpus and
// pipeline status, manual ingestion triggers, and liveness probes.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/openregs/regrag/internal/config"
	"github.com/openregs/regrag/internal/engine"
	"github.com/openregs/regrag/internal/llm"
	"github.com/openregs/regrag/internal/session"
	"github.com/openregs/regrag/internal/store"
)

// Answerer runs the retrieval-augmented answer flow.
type Answerer interface {
	Answer(ctx context.Context, question string, history []llm.Message) (engine.Answer, error)
}

// StatusSource reads pipeline and corpus state.
type StatusSource interface {
	LoadCheckpoint(ctx context.Context) (store.Checkpoint, error)
	Stats(ctx context.Context) (store.Stats, error)
}

// Updater triggers ingestion runs.
type Updater interface {
	Trigger(ctx context.Context) error
	Running() bool
}

// Pinger checks storage connectivity for the readiness probe.
// *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front end. Build with New, then Run.
type Server struct {
	addr     string
	logger   *slog.Logger
	engine   Answerer
	status   StatusSource
	updater  Updater
	pinger   Pinger
	sessions *session.Manager
}

// New wires the server. logger may be nil.
func New(cfg config.APIConfig, eng Answerer, status StatusSource, updater Updater,
	pinger Pinger, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{
		addr:     cfg.Addr,
		logger:   logger,
		engine:   eng,
		status:   status,
		updater:  updater,
		pinger:   pinger,
		sessions: session.NewManager(time.Duration(cfg.SessionTTLSeconds)*time.Second, cfg.MaxHistoryMessages),
	}
}

// Handler builds the routed, middleware-wrapped handler. Exposed for
// httptest use.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/ingest", s.handleIngest)

	return s.withRecovery(s.withLogging(mux))
}

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return ctx.Err()
	}
}
