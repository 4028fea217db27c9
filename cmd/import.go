package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/commonwealth-analytics/thriving-index/internal/measure"
)

var (
	importVariable string
	importKind     string
)

var importCmd = &cobra.Command{
	Use:   "import <file.csv>",
	Short: "Import a county measure series from CSV",
	Long: `Import a hand-assembled county series (columns fips,value[,weight])
as a stored measure. Empty or non-numeric value cells are treated as missing,
never as zero.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, ok := measure.ParseKind(importKind)
		if !ok {
			return eris.Errorf("import: unknown kind %q (valid: extensive, intensive)", importKind)
		}
		if importVariable == "" {
			return eris.New("import: --variable is required")
		}

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrapf(err, "import: open %s", args[0])
		}
		defer f.Close() //nolint:errcheck

		records, err := measure.ReadCountyCSV(f)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return eris.Errorf("import: %s has no data rows", args[0])
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.SaveCountySeries(ctx, importVariable, kind, records); err != nil {
			return err
		}

		fmt.Printf("Imported %d county records as %s (%s)\n", len(records), importVariable, kind)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importVariable, "variable", "", "measure variable name (required)")
	importCmd.Flags().StringVar(&importKind, "kind", "extensive", "aggregation kind: extensive or intensive")
	rootCmd.AddCommand(importCmd)
}
