package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/civicdata/budget-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "budget-cli",
	Short: "Municipal budget ETL and natural-language query tool",
	Long:  "Cleans raw municipal budget CSV exports into a quality-scored SQLite store and answers natural-language questions about the data via LLM-generated SQL.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
