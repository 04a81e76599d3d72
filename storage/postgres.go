package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/lib/pq"

	"github.com/vbl-data/punctuality/model"
)

const psqlEventBatchSize = 5000

// PSQLStorage backs the engine with a Postgres warehouse table. Same
// contract as the SQLite backend; selected via connection string.
type PSQLStorage struct {
	db *sql.DB
}

// Creates a new Postgres storage using the provided connection string.
//
// If clearDB is true, the tables are dropped on startup. You probably
// only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if clearDB {
		_, err = db.Exec(`
DROP TABLE IF EXISTS stop_events;
DROP TABLE IF EXISTS app_config;`)
		if err != nil {
			return nil, fmt.Errorf("clearing db: %w", err)
		}
	}

	_, err = db.Exec(`
CREATE TABLE IF NOT EXISTS stop_events (
    trip_id TEXT NOT NULL,
    date TEXT NOT NULL,
    line_name TEXT,
    stop_name TEXT,
    block_id TEXT,
    arrival_planned TIMESTAMP,
    arrival_actual TIMESTAMP,
    arrival_status TEXT,
    departure_planned TIMESTAMP,
    departure_actual TIMESTAMP,
    departure_status TEXT,
    is_cancelled TEXT,
    is_additional TEXT
);
CREATE INDEX IF NOT EXISTS stop_events_date ON stop_events (date);
CREATE INDEX IF NOT EXISTS stop_events_date_line ON stop_events (date, line_name);

CREATE TABLE IF NOT EXISTS app_config (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);`)
	if err != nil {
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &PSQLStorage{db: db}, nil
}

func (s *PSQLStorage) StopEvents(filter EventFilter) ([]*model.StopEvent, error) {
	query := `
SELECT
    trip_id,
    date,
    line_name,
    stop_name,
    block_id,
    arrival_planned,
    arrival_actual,
    arrival_status,
    departure_planned,
    departure_actual,
    departure_status,
    is_cancelled,
    is_additional
FROM stop_events`

	conditions := []string{}
	params := []interface{}{}
	if filter.DateFrom != "" {
		params = append(params, filter.DateFrom)
		conditions = append(conditions, fmt.Sprintf("date >= $%d", len(params)))
	}
	if filter.DateTo != "" {
		params = append(params, filter.DateTo)
		conditions = append(conditions, fmt.Sprintf("date <= $%d", len(params)))
	}
	if filter.Line != "" {
		params = append(params, filter.Line)
		conditions = append(conditions, fmt.Sprintf("line_name = $%d", len(params)))
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	rows, err := s.db.Query(query, params...)
	if err != nil {
		return nil, fmt.Errorf("querying stop events: %w", err)
	}
	defer rows.Close()

	return scanStopEvents(rows)
}

func (s *PSQLStorage) WriteStopEvents(events []*model.StopEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	for start := 0; start < len(events); start += psqlEventBatchSize {
		end := start + psqlEventBatchSize
		if end > len(events) {
			end = len(events)
		}
		if err := writeEventBatch(tx, events[start:end]); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func writeEventBatch(tx *sql.Tx, events []*model.StopEvent) error {
	values := []string{}
	params := []interface{}{}
	for _, e := range events {
		placeholders := make([]string, 13)
		for i := range placeholders {
			placeholders[i] = fmt.Sprintf("$%d", len(params)+i+1)
		}
		values = append(values, "("+strings.Join(placeholders, ", ")+")")
		params = append(params,
			e.TripID,
			e.Date,
			e.LineName,
			e.StopName,
			e.BlockID,
			nullTime(e.ArrivalPlanned),
			nullTime(e.ArrivalActual),
			e.ArrivalStatus,
			nullTime(e.DeparturePlanned),
			nullTime(e.DepartureActual),
			e.DepartureStatus,
			e.Cancelled,
			e.Additional,
		)
	}

	_, err := tx.Exec(`
INSERT INTO stop_events (
    trip_id,
    date,
    line_name,
    stop_name,
    block_id,
    arrival_planned,
    arrival_actual,
    arrival_status,
    departure_planned,
    departure_actual,
    departure_status,
    is_cancelled,
    is_additional
)
VALUES `+strings.Join(values, ", "), params...)
	if err != nil {
		return fmt.Errorf("inserting stop events: %w", err)
	}

	return nil
}

func (s *PSQLStorage) DateRange() (string, string, error) {
	var min, max sql.NullString
	err := s.db.QueryRow(`SELECT MIN(date), MAX(date) FROM stop_events`).Scan(&min, &max)
	if err != nil {
		return "", "", fmt.Errorf("querying date range: %w", err)
	}
	return min.String, max.String, nil
}

func (s *PSQLStorage) GetConfig() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM app_config`)
	if err != nil {
		return nil, fmt.Errorf("querying config: %w", err)
	}
	defer rows.Close()

	return scanConfig(rows)
}

func (s *PSQLStorage) SetConfig(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	for key, value := range values {
		_, err := tx.Exec(`
INSERT INTO app_config (key, value)
VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`, key, value)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting config key %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *PSQLStorage) Close() error {
	return s.db.Close()
}
