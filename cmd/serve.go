package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/openregs/regrag/api"
	"github.com/openregs/regrag/db"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic ingestion scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()

		if err := db.Migrate(a.cfg.Postgres.URL()); err != nil {
			return err
		}

		sched, err := a.newScheduler()
		if err != nil {
			return err
		}
		server := api.New(a.cfg.API, a.newEngine(), a.store, sched, a.pool, a.logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error { return sched.Run(gctx) })
		g.Go(func() error { return server.Run(gctx) })

		err = g.Wait()
		if gctx.Err() != nil {
			a.logger.Info("shutdown complete")
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
