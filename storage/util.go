package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/vbl-data/punctuality/model"
)

// nullTime maps the zero time to SQL NULL so absent planned/actual
// timestamps round-trip as NULL rather than year-1 values.
func nullTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func scanStopEvents(rows *sql.Rows) ([]*model.StopEvent, error) {
	var events []*model.StopEvent
	for rows.Next() {
		var e model.StopEvent
		var line, stop, block sql.NullString
		var arrStatus, depStatus sql.NullString
		var cancelled, additional sql.NullString
		var arrPlanned, arrActual, depPlanned, depActual sql.NullTime
		err := rows.Scan(
			&e.TripID,
			&e.Date,
			&line,
			&stop,
			&block,
			&arrPlanned,
			&arrActual,
			&arrStatus,
			&depPlanned,
			&depActual,
			&depStatus,
			&cancelled,
			&additional,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning stop event: %w", err)
		}

		e.LineName = line.String
		e.StopName = stop.String
		e.BlockID = block.String
		e.ArrivalStatus = arrStatus.String
		e.DepartureStatus = depStatus.String
		e.Cancelled = cancelled.String
		e.Additional = additional.String
		e.ArrivalPlanned = arrPlanned.Time
		e.ArrivalActual = arrActual.Time
		e.DeparturePlanned = depPlanned.Time
		e.DepartureActual = depActual.Time

		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading stop events: %w", err)
	}

	return events, nil
}

func scanConfig(rows *sql.Rows) (map[string]string, error) {
	config := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning config: %w", err)
		}
		config[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return config, nil
}
