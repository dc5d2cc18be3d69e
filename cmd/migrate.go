package cmd

import (
	"github.com/spf13/cobra"

	"github.com/openregs/regrag/db"
	"github.com/openregs/regrag/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		return db.Migrate(cfg.Postgres.URL())
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
