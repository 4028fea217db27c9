package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/commonwealth-analytics/thriving-index/internal/matching"
)

var (
	matchK        int
	matchOutPath  string
	matchXLSXPath string
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank peer regions for each home-state region",
	Long: `Build the feature matrix from stored regional series, estimate the
covariance across all regions, and rank out-of-state peers for every
home-state region by Mahalanobis distance. The run artifact is persisted and
written as JSON; --xlsx additionally writes a review workbook.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("matching"); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		idx, _, err := loadRegionIndex(cfg.Geography)
		if err != nil {
			return err
		}

		variables, err := st.ListRegionalVariables(ctx)
		if err != nil {
			return err
		}
		if len(variables) == 0 {
			return eris.New("match: no regional series stored; run aggregate first")
		}

		series := make(map[string]map[string]float64, len(variables))
		for _, variable := range variables {
			regional, err := st.LoadRegionalSeries(ctx, variable)
			if err != nil {
				return eris.Wrapf(err, "match: load %s", variable)
			}
			values := make(map[string]float64, len(regional))
			for code, rm := range regional {
				values[code] = rm.Value
			}
			series[variable] = values
		}

		fm, err := matching.BuildMatrix(series)
		if err != nil {
			if errors.Is(err, matching.ErrNoCompleteRegions) {
				return eris.Wrap(err, "match: every region is missing at least one variable")
			}
			return err
		}

		k := matchK
		if k == 0 {
			k = cfg.Matching.K
		}
		matcher := matching.NewMatcher(k, cfg.Matching.HomeState)

		result, err := matcher.Match(fm)
		if err != nil {
			return eris.Wrap(err, "match")
		}

		artifact := matching.BuildArtifact(result, fm, idx, matcher.K)
		artifact.LogCoverage()

		runID, err := st.SaveMatchRun(ctx, artifact)
		if err != nil {
			return err
		}
		zap.L().Info("match run saved", zap.String("run_id", runID))

		if err := writeArtifactJSON(artifact, matchOutPath); err != nil {
			return err
		}
		if matchXLSXPath != "" {
			if err := writeArtifactXLSX(artifact, matchXLSXPath); err != nil {
				return err
			}
		}

		fmt.Printf("Matched %d target regions against %d regions on %d variables (run %s)\n",
			artifact.Metadata.TargetsProcessed, artifact.Metadata.RegionsInMatrix,
			artifact.Metadata.NumVariables, runID)
		if artifact.Metadata.SingularCovariance {
			fmt.Println("WARNING: covariance was singular; distances use the pseudo-inverse")
		}
		return nil
	},
}

func init() {
	matchCmd.Flags().IntVar(&matchK, "k", 0, "peers per target (default from config)")
	matchCmd.Flags().StringVar(&matchOutPath, "out", "peers.json", "JSON artifact output path")
	matchCmd.Flags().StringVar(&matchXLSXPath, "xlsx", "", "optional XLSX workbook output path")
	rootCmd.AddCommand(matchCmd)
}

func writeArtifactJSON(artifact *matching.Artifact, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "match: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if err := artifact.WriteJSON(f); err != nil {
		return err
	}
	return eris.Wrapf(f.Close(), "match: close %s", path)
}

// writeArtifactXLSX writes one worksheet per target region plus a summary
// sheet, for analysts reviewing the peer lists.
func writeArtifactXLSX(artifact *matching.Artifact, path string) error {
	wb := xlsx.NewFile()

	summary, err := wb.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "match: add summary sheet")
	}
	header := summary.AddRow()
	for _, h := range []string{"Target", "Region Name", "Peers"} {
		header.AddCell().SetString(h)
	}

	for _, code := range sortedTargets(artifact) {
		entry := artifact.Targets[code]

		row := summary.AddRow()
		row.AddCell().SetString(code)
		row.AddCell().SetString(entry.RegionName)
		row.AddCell().SetString(strconv.Itoa(len(entry.Peers)))

		sheet, err := wb.AddSheet(code)
		if err != nil {
			return eris.Wrapf(err, "match: add sheet %s", code)
		}
		h := sheet.AddRow()
		for _, col := range []string{"Rank", "Region", "Name", "Distance"} {
			h.AddCell().SetString(col)
		}
		for _, p := range entry.Peers {
			r := sheet.AddRow()
			r.AddCell().SetString(strconv.Itoa(p.Rank))
			r.AddCell().SetString(p.RegionCode)
			r.AddCell().SetString(p.RegionName)
			r.AddCell().SetFloat(p.Distance)
		}
	}

	return eris.Wrapf(wb.Save(path), "match: save workbook %s", path)
}

func sortedTargets(artifact *matching.Artifact) []string {
	codes := make([]string, 0, len(artifact.Targets))
	for code := range artifact.Targets {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
