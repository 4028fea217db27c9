package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/commonwealth-analytics/thriving-index/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "thriving-index",
	Short: "County-statistics pipeline for regional peer analysis",
	Long:  "Collects federal county statistics, aggregates them into multi-county regions, and ranks out-of-state peer regions for each home-state region by Mahalanobis distance.",
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
