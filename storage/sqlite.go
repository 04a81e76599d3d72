package storage

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/vbl-data/punctuality/model"
)

type SQLiteConfig struct {
	// Path to the database file. Empty means in-memory.
	Path string
}

type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLiteStorage, error) {
	sourceName := ":memory:"
	if len(cfg) > 0 && cfg[0].Path != "" {
		sourceName = cfg[0].Path
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
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
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) StopEvents(filter EventFilter) ([]*model.StopEvent, error) {
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
		conditions = append(conditions, "date >= ?")
		params = append(params, filter.DateFrom)
	}
	if filter.DateTo != "" {
		conditions = append(conditions, "date <= ?")
		params = append(params, filter.DateTo)
	}
	if filter.Line != "" {
		conditions = append(conditions, "line_name = ?")
		params = append(params, filter.Line)
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

func (s *SQLiteStorage) WriteStopEvents(events []*model.StopEvent) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
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
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert: %w", err)
	}

	for _, e := range events {
		_, err := stmt.Exec(
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
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting stop event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) DateRange() (string, string, error) {
	var min, max sql.NullString
	err := s.db.QueryRow(`SELECT MIN(date), MAX(date) FROM stop_events`).Scan(&min, &max)
	if err != nil {
		return "", "", fmt.Errorf("querying date range: %w", err)
	}
	return min.String, max.String, nil
}

func (s *SQLiteStorage) GetConfig() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM app_config`)
	if err != nil {
		return nil, fmt.Errorf("querying config: %w", err)
	}
	defer rows.Close()

	return scanConfig(rows)
}

func (s *SQLiteStorage) SetConfig(values map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	for key, value := range values {
		_, err := tx.Exec(`
INSERT INTO app_config (key, value)
VALUES (?, ?)
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

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
