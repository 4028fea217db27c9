package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var regionsVerbose bool

var regionsCmd = &cobra.Command{
	Use:   "regions",
	Short: "Build the region index and report join quality",
	Long: `Build the FIPS-to-region index from the locality and membership tables
and report how cleanly they joined. Unmatched localities mean collected data
for those counties would be dropped at aggregation time.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, report, err := loadRegionIndex(cfg.Geography)
		if err != nil {
			return err
		}

		fmt.Printf("Localities: %d\n", report.Localities)
		fmt.Printf("Regions:    %d\n", report.Regions)

		if len(report.UnmatchedLocalities) > 0 {
			fmt.Printf("\nUnmatched localities (%d):\n", len(report.UnmatchedLocalities))
			for _, loc := range report.UnmatchedLocalities {
				fmt.Printf("  %s  %s, %s (%s)\n", loc.FIPS, loc.Name, loc.State, loc.Type)
			}
		}
		if len(report.UnmatchedMembers) > 0 {
			fmt.Printf("\nUnmatched member names (%d):\n", len(report.UnmatchedMembers))
			for _, name := range report.UnmatchedMembers {
				fmt.Printf("  %s\n", name)
			}
		}

		if regionsVerbose {
			fmt.Println("\nRegion rosters:")
			for _, code := range idx.Codes() {
				r, _ := idx.Region(code)
				fmt.Printf("  %s  %s (%d localities)\n", code, r.Name, len(idx.FIPSInRegion(code)))
			}
		}

		return nil
	},
}

func init() {
	regionsCmd.Flags().BoolVar(&regionsVerbose, "verbose", false, "list every region's roster")
	rootCmd.AddCommand(regionsCmd)
}
