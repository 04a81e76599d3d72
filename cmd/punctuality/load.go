package main

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vbl-data/punctuality/ingest"
)

func init() {
	rootCmd.AddCommand(loadCmd)
}

var loadCmd = &cobra.Command{
	Use:   "load <events.csv> ...",
	Short: "Import actual-data CSV exports into the store",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := newStorage()
		if err != nil {
			return err
		}
		defer store.Close()

		for _, path := range args {
			events, err := ingest.LoadFile(path)
			if err != nil {
				return err
			}
			if err := store.WriteStopEvents(events); err != nil {
				return err
			}
			log.Info().Str("path", path).Int("events", len(events)).Msg("imported")
		}

		return nil
	},
}
