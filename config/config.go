// Package config holds the threshold and outlier parameters consulted
// by the delay classifier and the aggregations. Values live in the
// storage backend merged over hard defaults, and every update is also
// persisted to a JSON file so they survive a rebuilt store.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/rs/zerolog"
)

// Recognized configuration keys. Values are stored as strings.
const (
	KeyThresholdEarly    = "threshold_early"
	KeyThresholdLate     = "threshold_late"
	KeyThresholdCritical = "threshold_critical"
	KeyIgnoreOutliers    = "ignore_outliers"
	KeyOutlierMin        = "outlier_min"
	KeyOutlierMax        = "outlier_max"
)

// Defaults applied under any persisted values. Thresholds and outlier
// bounds are in seconds.
var Defaults = map[string]string{
	KeyThresholdEarly:    "-60",
	KeyThresholdLate:     "180",
	KeyThresholdCritical: "300",
	KeyIgnoreOutliers:    "false",
	KeyOutlierMin:        "-1200",
	KeyOutlierMax:        "3600",
}

// Storage is the subset of the storage backend the config store needs.
type Storage interface {
	GetConfig() (map[string]string, error)
	SetConfig(values map[string]string) error
}

// Thresholds is the typed view of the classification parameters.
type Thresholds struct {
	Early    int // below: early
	Late     int // upper bound of on_time (inclusive)
	Critical int // upper bound of late_slight (inclusive)

	IgnoreOutliers bool
	OutlierMin     int
	OutlierMax     int
}

// Store mediates between defaults, the storage backend and the
// persistence file. Reads go to the backend on every call; there is
// no caching across updates.
type Store struct {
	storage Storage
	path    string // JSON persistence file, empty disables it
	logger  zerolog.Logger
}

func NewStore(storage Storage, path string, logger zerolog.Logger) *Store {
	return &Store{
		storage: storage,
		path:    path,
		logger:  logger,
	}
}

// Load seeds the storage backend from the persistence file. A missing
// or malformed file is not an error; the defaults then apply.
func (s *Store) Load() error {
	if s.path == "" {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	values := map[string]string{}
	if err := json.Unmarshal(data, &values); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("config file malformed, using defaults")
		return nil
	}

	if err := s.storage.SetConfig(values); err != nil {
		return fmt.Errorf("seeding config: %w", err)
	}

	return nil
}

// All returns the merged view: persisted values over defaults. When
// the backend is unreachable the defaults are returned, logged; the
// read path is the one place a store failure degrades instead of
// propagating.
func (s *Store) All() map[string]string {
	merged := map[string]string{}
	for key, value := range Defaults {
		merged[key] = value
	}

	stored, err := s.storage.GetConfig()
	if err != nil {
		s.logger.Warn().Err(err).Msg("config store unavailable, falling back to defaults")
		return merged
	}
	for key, value := range stored {
		merged[key] = value
	}

	return merged
}

// Update upserts the given keys in the backend and rewrites the
// persistence file with the full resulting state.
func (s *Store) Update(values map[string]string) error {
	if err := s.storage.SetConfig(values); err != nil {
		return fmt.Errorf("updating config: %w", err)
	}

	if s.path == "" {
		return nil
	}

	state, err := s.storage.GetConfig()
	if err != nil {
		return fmt.Errorf("reading back config: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// Thresholds parses the merged configuration. Unparseable values fall
// back to their defaults.
func (s *Store) Thresholds() Thresholds {
	cfg := s.All()
	return Thresholds{
		Early:          intValue(cfg, KeyThresholdEarly),
		Late:           intValue(cfg, KeyThresholdLate),
		Critical:       intValue(cfg, KeyThresholdCritical),
		IgnoreOutliers: cfg[KeyIgnoreOutliers] == "true",
		OutlierMin:     intValue(cfg, KeyOutlierMin),
		OutlierMax:     intValue(cfg, KeyOutlierMax),
	}
}

func intValue(cfg map[string]string, key string) int {
	if v, err := strconv.Atoi(cfg[key]); err == nil {
		return v
	}
	v, _ := strconv.Atoi(Defaults[key])
	return v
}
