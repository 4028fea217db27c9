package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/commonwealth-analytics/thriving-index/internal/gazetteer"
	"github.com/commonwealth-analytics/thriving-index/internal/measure"
	"github.com/commonwealth-analytics/thriving-index/internal/region"
)

var loadgeoCmd = &cobra.Command{
	Use:   "loadgeo",
	Short: "Load county land areas from a TIGER shapefile",
	Long: `Read the TIGER/Line county shapefile and store footprint county land
areas as the land_area_sqkm measure series.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		shpPath := cfg.Geography.ShapefilePath
		if shpPath == "" {
			return eris.New("loadgeo: geography.shapefile_path is not configured")
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		counties, err := gazetteer.ReadCounties(shpPath, region.FootprintStateFIPS())
		if err != nil {
			return err
		}

		records := gazetteer.LandAreaSeries(counties)
		if err := st.SaveCountySeries(ctx, "land_area_sqkm", measure.Extensive, records); err != nil {
			return err
		}

		fmt.Printf("Loaded land areas for %d counties\n", len(records))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(loadgeoCmd)
}
