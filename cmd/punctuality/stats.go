package main

import (
	"github.com/spf13/cobra"
)

var slotMinutes int

func init() {
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(timeslotsCmd)
	rootCmd.AddCommand(weekdaysCmd)
	rootCmd.AddCommand(dwellCmd)
	rootCmd.AddCommand(problematicCmd)
	rootCmd.AddCommand(worstCmd)
	rootCmd.AddCommand(cancellationsCmd)
	rootCmd.AddCommand(dayclassesCmd)
	rootCmd.AddCommand(linesCmd)
	rootCmd.AddCommand(rangeCmd)

	timeslotsCmd.Flags().IntVarP(&slotMinutes, "bucket", "", 60, "time slot width in minutes")
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Delay bucket counts for the filtered selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		counts, err := e.PunctualityStats(buildQuery())
		if err != nil {
			return err
		}
		return printJSON(counts)
	},
}

var timeslotsCmd = &cobra.Command{
	Use:   "timeslots",
	Short: "Delay buckets per time-of-day slot",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		slots, err := e.StatsByTimeSlot(buildQuery(), slotMinutes)
		if err != nil {
			return err
		}
		return printJSON(slots)
	},
}

var weekdaysCmd = &cobra.Command{
	Use:   "weekdays",
	Short: "Delay buckets per weekday",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		days, err := e.StatsByWeekday(buildQuery())
		if err != nil {
			return err
		}
		return printJSON(days)
	},
}

var dwellCmd = &cobra.Command{
	Use:   "dwell",
	Short: "Average dwell time per hour of day",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		hours, err := e.DwellTimeByHour(buildQuery())
		if err != nil {
			return err
		}
		return printJSON(hours)
	},
}

var problematicCmd = &cobra.Command{
	Use:   "problematic-stops",
	Short: "Stops ranked by severe delays",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		out, err := e.ProblematicStops(buildQuery())
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var worstCmd = &cobra.Command{
	Use:   "worst-trips",
	Short: "Trips ranked by their maximum arrival delay",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		out, err := e.WorstTrips(buildQuery())
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var cancellationsCmd = &cobra.Command{
	Use:   "cancellations",
	Short: "Cancelled trip share of the filtered selection",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		out, err := e.CancellationStats(buildQuery())
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var dayclassesCmd = &cobra.Command{
	Use:   "day-classes",
	Short: "Distinct calendar days per day class in the date range",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		out, err := e.DayClassCounts(dateFrom, dateTo)
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var linesCmd = &cobra.Command{
	Use:   "lines",
	Short: "Lines with their routes and trip counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		out, err := e.Lines()
		if err != nil {
			return err
		}
		return printJSON(out)
	},
}

var rangeCmd = &cobra.Command{
	Use:   "range",
	Short: "Earliest and latest service date in the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEngine()
		if err != nil {
			return err
		}
		min, max, err := e.DateRange()
		if err != nil {
			return err
		}
		return printJSON(map[string]string{"min_date": min, "max_date": max})
	},
}
