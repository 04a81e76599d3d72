package main

import (
	"github.com/spf13/cobra"
)

var (
	granularity string
	regularOnly bool
)

func init() {
	heatmapCmd.Flags().StringVarP(&granularity, "granularity", "", "60", "'trip', 'pattern', or slot width in minutes")
	heatmapCmd.Flags().BoolVarP(&regularOnly, "regular-only", "", false, "exclude unscheduled extra trips (trip granularity)")
	rootCmd.AddCommand(heatmapCmd)
}

var heatmapCmd = &cobra.Command{
	Use:   "heatmap",
	Short: "Stop-by-time delay view",
	Long: "Renders the stop-by-time delay view of the selected line or route: " +
		"a bucketed heatmap with percentile bands, a per-trip pivot, or a " +
		"pattern pivot collapsing recurring departures across dates",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		out, err := e.HeatmapView(buildQuery(), granularity, regularOnly)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}
