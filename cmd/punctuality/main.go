package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vbl-data/punctuality"
	"github.com/vbl-data/punctuality/calendar"
	"github.com/vbl-data/punctuality/config"
	"github.com/vbl-data/punctuality/filter"
	"github.com/vbl-data/punctuality/model"
	"github.com/vbl-data/punctuality/storage"
)

var rootCmd = &cobra.Command{
	Use:          "punctuality",
	Short:        "Transit punctuality analytics",
	Long:         "Computes delay statistics, heatmaps and pivots over scheduled-vs-actual stop events",
	SilenceUsage: true,
}

var (
	dbPath       string
	calendarPath string
	configPath   string

	dateFrom string
	dateTo   string
	line     string
	routes   []string
	stops    []string
	dayClass string
	timeFrom string
	timeTo   string
	metric   string
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "", "punctuality.db", "SQLite database path (ignored when PUNCTUALITY_POSTGRES is set)")
	rootCmd.PersistentFlags().StringVarP(&calendarPath, "calendar", "", "", "holiday calendar CSV")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "", "", "threshold config JSON")

	rootCmd.PersistentFlags().StringVarP(&dateFrom, "from", "", "", "first service date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVarP(&dateTo, "to", "", "", "last service date (YYYY-MM-DD)")
	rootCmd.PersistentFlags().StringVarP(&line, "line", "", "", "line name")
	rootCmd.PersistentFlags().StringSliceVarP(&routes, "route", "", []string{}, "route, e.g. 'Hubelmatt » Obernau Dorf'")
	rootCmd.PersistentFlags().StringSliceVarP(&stops, "stop", "", []string{}, "stop name or 'stop » destination'")
	rootCmd.PersistentFlags().StringVarP(&dayClass, "day-class", "", "", "day class, e.g. 'Mo-Fr (Schule)'")
	rootCmd.PersistentFlags().StringVarP(&timeFrom, "time-from", "", "", "start of time-of-day window (HH:MM)")
	rootCmd.PersistentFlags().StringVarP(&timeTo, "time-to", "", "", "end of time-of-day window (HH:MM)")
	rootCmd.PersistentFlags().StringVarP(&metric, "metric", "", "arrival", "delay side: arrival or departure")
}

func main() {
	godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newStorage() (storage.Storage, error) {
	if connStr := os.Getenv("PUNCTUALITY_POSTGRES"); connStr != "" {
		return storage.NewPSQLStorage(connStr, false)
	}
	return storage.NewSQLiteStorage(storage.SQLiteConfig{Path: dbPath})
}

func newEngine() (*punctuality.Engine, error) {
	store, err := newStorage()
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	var cal *calendar.Calendar
	if calendarPath != "" {
		cal = calendar.Load(calendarPath, log.Logger)
	}

	cfg := config.NewStore(store, configPath, log.Logger)
	if err := cfg.Load(); err != nil {
		log.Warn().Err(err).Msg("loading config")
	}

	return punctuality.New(store, cal, cfg, log.Logger), nil
}

func buildQuery() filter.Query {
	return filter.Query{
		DateFrom: dateFrom,
		DateTo:   dateTo,
		Routes:   routes,
		Stops:    stops,
		DayClass: model.DayClass(dayClass),
		Line:     line,
		TimeFrom: timeFrom,
		TimeTo:   timeTo,
		Metric:   model.Metric(metric),
	}
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
