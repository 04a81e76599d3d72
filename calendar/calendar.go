// Package calendar classifies service dates into day classes using a
// holiday/vacation calendar file layered over ISO weekday rules.
package calendar

import (
	"io"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spkg/bom"
	"golang.org/x/text/encoding/charmap"

	"github.com/vbl-data/punctuality/model"
)

// Day type markers as they appear in the calendar file.
const (
	dayTypeHoliday  = "Feiertag"
	dayTypeVacation = "Ferien"
)

type specialDateCSV struct {
	Date        string `csv:"date"`
	DayType     string `csv:"day_type"`
	Description string `csv:"description"`
}

type entry struct {
	holiday  bool
	vacation bool
}

// Calendar holds the special-date table. The zero entry set is a
// valid state; classification then always falls back to weekday
// rules.
type Calendar struct {
	entries map[string]entry
}

func New() *Calendar {
	return &Calendar{entries: map[string]entry{}}
}

// Load reads the calendar file at path. A missing or malformed file
// yields an empty calendar, logged but never fatal.
func Load(path string, logger zerolog.Logger) *Calendar {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("calendar file not loaded, using weekday rules only")
		return New()
	}
	defer f.Close()

	cal, err := Parse(f)
	if err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("calendar file malformed, using weekday rules only")
		return New()
	}

	return cal
}

// Parse reads special dates from CSV. The file is Latin-1 encoded
// with dates as dd.mm.yy, the format the vendor exports; ISO dates
// are accepted too. Multiple rows per date merge, so a date can be
// both holiday and vacation.
func Parse(r io.Reader) (*Calendar, error) {
	decoded := charmap.ISO8859_1.NewDecoder().Reader(bom.NewReader(r))

	records := []*specialDateCSV{}
	if err := gocsv.Unmarshal(decoded, &records); err != nil {
		return nil, errors.Wrap(err, "unmarshaling calendar csv")
	}

	cal := New()
	for i, rec := range records {
		date, err := parseDate(rec.Date)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing date (row %d)", i+1)
		}

		key := date.Format("2006-01-02")
		e := cal.entries[key]
		switch rec.DayType {
		case dayTypeHoliday:
			e.holiday = true
		case dayTypeVacation:
			e.vacation = true
		default:
			return nil, errors.Errorf("unknown day_type '%s' (row %d)", rec.DayType, i+1)
		}
		cal.entries[key] = e
	}

	return cal, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"02.01.06", "02.01.2006", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Errorf("unrecognized date '%s'", s)
}

// Classify maps a date to its day class. An explicit holiday entry
// always wins over a vacation entry; without a calendar entry the
// ISO weekday decides.
func (c *Calendar) Classify(date time.Time) model.DayClass {
	e := c.entries[date.Format("2006-01-02")]
	weekday := ISOWeekday(date)

	if e.holiday {
		return model.DayClassHoliday
	}
	if e.vacation && weekday <= 5 {
		return model.DayClassVacationWeekday
	}

	switch {
	case weekday <= 5:
		return model.DayClassSchoolWeekday
	case weekday == 6:
		return model.DayClassSaturday
	default:
		return model.DayClassHoliday
	}
}

// Len reports the number of dates with a calendar entry.
func (c *Calendar) Len() int {
	return len(c.entries)
}

// ISOWeekday returns the ISO 8601 weekday number, 1=Monday through
// 7=Sunday.
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
