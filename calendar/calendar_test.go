package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbl-data/punctuality/model"
)

func date(t *testing.T, s string) time.Time {
	t.Helper()
	parsed, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return parsed
}

func TestClassifyWeekdayRulesOnly(t *testing.T) {
	cal := New()

	// 2025-11-03 is a Monday.
	assert.Equal(t, model.DayClassSchoolWeekday, cal.Classify(date(t, "2025-11-03")))
	assert.Equal(t, model.DayClassSchoolWeekday, cal.Classify(date(t, "2025-11-07")))
	assert.Equal(t, model.DayClassSaturday, cal.Classify(date(t, "2025-11-01")))
	assert.Equal(t, model.DayClassHoliday, cal.Classify(date(t, "2025-11-02")))
}

func TestParse(t *testing.T) {
	csv := strings.Join([]string{
		"date,day_type,description",
		"25.12.25,Feiertag,Weihnachten",
		"22.12.25,Ferien,Weihnachtsferien",
		"27.12.25,Ferien,Weihnachtsferien",
		"2026-01-01,Feiertag,Neujahr",
	}, "\n")

	cal, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, 4, cal.Len())

	// Holiday on a Thursday.
	assert.Equal(t, model.DayClassHoliday, cal.Classify(date(t, "2025-12-25")))
	// Vacation on a Monday.
	assert.Equal(t, model.DayClassVacationWeekday, cal.Classify(date(t, "2025-12-22")))
	// Vacation entries never touch weekends.
	assert.Equal(t, model.DayClassSaturday, cal.Classify(date(t, "2025-12-27")))
	// ISO dates are accepted too.
	assert.Equal(t, model.DayClassHoliday, cal.Classify(date(t, "2026-01-01")))
}

func TestParseHolidayWinsOverVacation(t *testing.T) {
	csv := strings.Join([]string{
		"date,day_type,description",
		"25.12.25,Ferien,Weihnachtsferien",
		"25.12.25,Feiertag,Weihnachten",
	}, "\n")

	cal, err := Parse(strings.NewReader(csv))
	require.NoError(t, err)
	assert.Equal(t, model.DayClassHoliday, cal.Classify(date(t, "2025-12-25")))
}

func TestParseUnknownDayType(t *testing.T) {
	csv := "date,day_type,description\n25.12.25,Brückentag,\n"
	_, err := Parse(strings.NewReader(csv))
	assert.ErrorContains(t, err, "day_type")
}

func TestParseBadDate(t *testing.T) {
	csv := "date,day_type,description\nyesterday,Feiertag,\n"
	_, err := Parse(strings.NewReader(csv))
	assert.ErrorContains(t, err, "row 1")
}

func TestLoadMissingFile(t *testing.T) {
	cal := Load("/does/not/exist.csv", zerolog.Nop())
	require.NotNil(t, cal)
	assert.Equal(t, 0, cal.Len())

	// Still classifies via weekday rules.
	assert.Equal(t, model.DayClassSaturday, cal.Classify(date(t, "2025-11-01")))
}

func TestISOWeekday(t *testing.T) {
	assert.Equal(t, 1, ISOWeekday(date(t, "2025-11-03")))
	assert.Equal(t, 6, ISOWeekday(date(t, "2025-11-01")))
	assert.Equal(t, 7, ISOWeekday(date(t, "2025-11-02")))
}
