package cmd

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/openregs/regrag/internal/chunker"
	"github.com/openregs/regrag/internal/config"
	"github.com/openregs/regrag/internal/database"
	"github.com/openregs/regrag/internal/embedding"
	"github.com/openregs/regrag/internal/engine"
	"github.com/openregs/regrag/internal/ingest"
	"github.com/openregs/regrag/internal/llm"
	"github.com/openregs/regrag/internal/log"
	"github.com/openregs/regrag/internal/scheduler"
	"github.com/openregs/regrag/internal/store"
)

// app holds the wired dependencies shared by the commands.
type app struct {
	cfg    *config.Config
	logger log.Logger
	pool   *pgxpool.Pool
	store  *store.Store
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := slog.LevelInfo
	if flagDebug {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: flagJSONLogs})
	slog.SetDefault(logger)

	pool, err := database.Connect(ctx, cfg.Postgres.ConnectionString())
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		pool:   pool,
		store:  store.New(pool, logger),
	}, nil
}

func (a *app) close() {
	a.pool.Close()
}

func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	ch, err := chunker.New(chunker.Config{
		MaxTokens:     a.cfg.Chunker.MaxTokens,
		OverlapTokens: a.cfg.Chunker.OverlapTokens,
	})
	if err != nil {
		return nil, err
	}
	source := ingest.NewClient(a.cfg.Source, nil, a.logger)
	embedder := embedding.NewClient(a.cfg.Embedding, nil)
	return scheduler.New(source, embedder, a.store, ch,
		a.cfg.Scheduler, a.cfg.Source.InitialDaysBack, a.logger), nil
}

func (a *app) newEngine() *engine.Engine {
	embedder := embedding.NewClient(a.cfg.Embedding, nil)
	generator := llm.NewClient(a.cfg.LLM, nil)
	return engine.New(a.store, embedder, generator, a.cfg.Query, a.logger)
}
