// Package ingest reads raw actual-data CSV exports into stop events.
// The exports use the Swiss open-transport-data column names and come
// UTF-8 or Latin-1 encoded, sometimes with a BOM.
package ingest

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"github.com/vbl-data/punctuality/model"
)

type stopEventCSV struct {
	Date             string `csv:"betriebstag"`
	TripID           string `csv:"fahrt_id"`
	LineName         string `csv:"linienname"`
	StopName         string `csv:"haltestellenname"`
	BlockID          string `csv:"umlauf_id"`
	ArrivalPlanned   string `csv:"ankunft_plan"`
	ArrivalActual    string `csv:"an_prognose"`
	ArrivalStatus    string `csv:"an_prognose_status"`
	DeparturePlanned string `csv:"abfahrt_plan"`
	DepartureActual  string `csv:"ab_prognose"`
	DepartureStatus  string `csv:"ab_prognose_status"`
	Cancelled        string `csv:"faellt_aus_tf"`
	Additional       string `csv:"zusatzfahrt_tf"`
}

// LoadFile reads stop events from the CSV file at path.
func LoadFile(path string) ([]*model.StopEvent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening events file")
	}
	defer f.Close()

	events, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	return events, nil
}

// Parse reads stop events from CSV. Rows without a trip id or service
// date are skipped; malformed timestamps are an error.
func Parse(r io.Reader) ([]*model.StopEvent, error) {
	records := []*stopEventCSV{}
	if err := gocsv.Unmarshal(bom.NewReader(r), &records); err != nil {
		return nil, errors.Wrap(err, "unmarshaling events csv")
	}

	events := make([]*model.StopEvent, 0, len(records))
	for i, rec := range records {
		if rec.TripID == "" || rec.Date == "" {
			continue
		}

		date, err := parseDate(rec.Date)
		if err != nil {
			return nil, errors.Wrapf(err, "row %d", i+2)
		}

		e := &model.StopEvent{
			TripID:          rec.TripID,
			Date:            date,
			LineName:        rec.LineName,
			StopName:        rec.StopName,
			BlockID:         rec.BlockID,
			ArrivalStatus:   strings.TrimSpace(rec.ArrivalStatus),
			DepartureStatus: strings.TrimSpace(rec.DepartureStatus),
			Cancelled:       rec.Cancelled,
			Additional:      rec.Additional,
		}

		for _, field := range []struct {
			raw string
			dst *time.Time
		}{
			{rec.ArrivalPlanned, &e.ArrivalPlanned},
			{rec.ArrivalActual, &e.ArrivalActual},
			{rec.DeparturePlanned, &e.DeparturePlanned},
			{rec.DepartureActual, &e.DepartureActual},
		} {
			if field.raw == "" {
				continue
			}
			t, err := parseTimestamp(field.raw)
			if err != nil {
				return nil, errors.Wrapf(err, "row %d", i+2)
			}
			*field.dst = t
		}

		events = append(events, e)
	}

	return events, nil
}

// The export renders the service date as dd.mm.yyyy; ISO is accepted
// for re-ingesting our own output.
func parseDate(s string) (string, error) {
	for _, layout := range []string{"02.01.2006", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", errors.Errorf("unrecognized date '%s'", s)
}

// Planned times carry minute precision, actuals second precision.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{
		"02.01.2006 15:04:05",
		"02.01.2006 15:04",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized timestamp '%s'", s)
}
