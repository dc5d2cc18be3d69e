// Package cmd implements the regrag command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	flagDebug    bool
	flagJSONLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "regrag",
	Short: "Retrieval-augmented question answering over Federal Register documents",
	Long: `regrag ingests US federal regulatory documents, chunks and embeds them
into a PostgreSQL/pgvector store, keeps the corpus fresh with incremental
daily updates, and answers questions about the corpus with cited excerpts
through a local language model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagJSONLogs, "json-logs", false, "emit logs as JSON")
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
