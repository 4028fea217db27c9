package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/commonwealth-analytics/thriving-index/internal/collector"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect county measures from federal data sources",
	Long: `Download county-level statistics from the federal sources and persist
them as measure series. Each collector produces full county snapshots for the
study footprint; rerunning replaces a series wholesale.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "collect"))

		if err := cfg.Validate("collect"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		tempDir := cfg.Fetch.TempDir
		if err := os.MkdirAll(tempDir, 0o755); err != nil {
			return eris.Wrapf(err, "collect: create temp dir %s", tempDir)
		}

		opts, err := parseCollectOpts(cmd)
		if err != nil {
			return err
		}

		reg := collector.NewRegistry(cfg)
		engine := collector.NewEngine(st, newFetcher(), reg, tempDir, cfg.Collect.Concurrency)

		log.Info("starting collection",
			zap.Strings("collectors", opts.Collectors),
			zap.Int("year", opts.Year),
		)

		result, err := engine.Run(ctx, opts)
		if err != nil {
			return eris.Wrap(err, "collect")
		}

		fmt.Printf("Collected %d series (%d county records) from %d collectors",
			result.Series, result.Records, result.Collected)
		if result.Failed > 0 {
			fmt.Printf(", %d failed", result.Failed)
		}
		fmt.Println()
		return nil
	},
}

func init() {
	collectCmd.Flags().String("collectors", "", "comma-separated collector names (e.g., acs,laus)")
	collectCmd.Flags().Int("year", 0, "data year (default from config)")
	rootCmd.AddCommand(collectCmd)
}

// parseCollectOpts extracts collector.RunOpts from the cobra command flags.
func parseCollectOpts(cmd *cobra.Command) (collector.RunOpts, error) {
	collectorsStr, _ := cmd.Flags().GetString("collectors")
	year, _ := cmd.Flags().GetInt("year")

	opts := collector.RunOpts{Year: year}
	if opts.Year == 0 {
		opts.Year = cfg.Collect.Year
	}

	if collectorsStr != "" {
		opts.Collectors = strings.Split(collectorsStr, ",")
		for i := range opts.Collectors {
			opts.Collectors[i] = strings.TrimSpace(opts.Collectors[i])
		}
	}

	return opts, nil
}
