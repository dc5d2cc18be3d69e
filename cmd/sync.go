package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openregs/regrag/db"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one incremental update cycle and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
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
		return sched.Trigger(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
