package storage

import (
	"github.com/vbl-data/punctuality/model"
)

// Storage is read access to the stop-event relation plus the persisted
// configuration keys. The relation is refreshed out-of-band by an
// external ingestion process; the engine only reads it.
type Storage interface {
	// Retrieves all stop events matching the given filter, the
	// cheap pushdown bounds. Composite route/stop identities, day
	// classes and time-of-day windows are evaluated on the
	// returned rows by the filter package.
	StopEvents(filter EventFilter) ([]*model.StopEvent, error)

	// Writes a batch of stop events in a single transaction. Used
	// by fixtures and out-of-band loaders.
	WriteStopEvents(events []*model.StopEvent) error

	// Earliest and latest service date present in the relation.
	// Both are empty when the relation is empty.
	DateRange() (string, string, error)

	// All persisted configuration keys.
	GetConfig() (map[string]string, error)

	// Upserts the given configuration keys in one transaction.
	// Concurrent readers never observe a partially written set.
	SetConfig(values map[string]string) error

	Close() error
}

// Filter for StopEvents(). Zero values mean no restriction.
type EventFilter struct {
	// Inclusive service date bounds, YYYY-MM-DD.
	DateFrom string
	DateTo   string

	// If set, only include events with the given line name.
	Line string
}
