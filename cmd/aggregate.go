package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

var aggregateExport bool

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Aggregate county measures into regional series",
	Long: `Fold stored county measure series into regional statistics: extensive
measures sum, intensive measures take the weighted average. Regions with no
usable counties are absent from the output rather than reported as zero.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "aggregate"))

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		idx, _, err := loadRegionIndex(cfg.Geography)
		if err != nil {
			return err
		}

		variables, err := selectVariables(ctx, cmd, st.ListCountyVariables)
		if err != nil {
			return err
		}
		if len(variables) == 0 {
			fmt.Println("No county series stored; run collect first")
			return nil
		}

		agg := measure.NewAggregator(idx)

		for _, variable := range variables {
			kind, records, err := st.LoadCountySeries(ctx, variable)
			if err != nil {
				return eris.Wrapf(err, "aggregate: load %s", variable)
			}

			series, report, err := agg.Aggregate(records, kind)
			if err != nil {
				return eris.Wrapf(err, "aggregate: %s", variable)
			}

			if err := st.SaveRegionalSeries(ctx, variable, series, report); err != nil {
				return eris.Wrapf(err, "aggregate: save %s", variable)
			}

			if aggregateExport {
				if err := exportRegionalCSV(cfg.Collect.OutputDir, variable, series); err != nil {
					return err
				}
			}

			log.Info("aggregated variable",
				zap.String("variable", variable),
				zap.String("kind", string(kind)),
				zap.Int("regions", report.RegionsCovered),
				zap.Int("regions_total", report.RegionsTotal),
				zap.Int("dropped_unmapped", report.DroppedUnmapped),
				zap.Int("dropped_missing", report.DroppedMissing),
				zap.Int("dropped_no_weight", report.DroppedNoWeight),
			)
			fmt.Printf("%-30s %s: %d/%d regions (dropped: %d unmapped, %d missing, %d unweighted)\n",
				variable, kind, report.RegionsCovered, report.RegionsTotal,
				report.DroppedUnmapped, report.DroppedMissing, report.DroppedNoWeight)
		}

		return nil
	},
}

func init() {
	aggregateCmd.Flags().String("variables", "", "comma-separated variable names (default: all stored county series)")
	aggregateCmd.Flags().BoolVar(&aggregateExport, "export", false, "also write each regional series as CSV to collect.output_dir")
	rootCmd.AddCommand(aggregateCmd)
}

// exportRegionalCSV writes one regional series to dir/<variable>.csv.
func exportRegionalCSV(dir, variable string, series map[string]measure.RegionalMeasure) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "aggregate: create export dir %s", dir)
	}
	path := filepath.Join(dir, variable+".csv")
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "aggregate: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := measure.WriteRegionalCSV(f, series); err != nil {
		return err
	}
	return eris.Wrapf(f.Close(), "aggregate: close %s", path)
}

// selectVariables returns the variables named by the --variables flag, or
// everything list returns when the flag is empty.
func selectVariables(ctx context.Context, cmd *cobra.Command, list func(context.Context) ([]string, error)) ([]string, error) {
	variablesStr, _ := cmd.Flags().GetString("variables")
	if variablesStr == "" {
		return list(ctx)
	}
	variables := strings.Split(variablesStr, ",")
	for i := range variables {
		variables[i] = strings.TrimSpace(variables[i])
	}
	return variables, nil
}
