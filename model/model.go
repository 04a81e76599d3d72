package model

import (
	"strings"
	"time"
)

// Holds all external facing types and constants.

// Separator used to render composite route and stop identities
// ("Start » End"). The authoritative route identity is RouteKey; the
// composite string is a derived display form.
const RouteSeparator = " » "

// Metric selects which side of a stop event an analysis compares.
type Metric string

const (
	MetricArrival   Metric = "arrival"
	MetricDeparture Metric = "departure"
)

// Status marker for an event side with a recorded actual time.
// Anything else ("PROGNOSE", empty) is forecast-only or absent.
const StatusRealized = "REAL"

// DayClass labels a calendar date for expected-schedule comparisons.
type DayClass string

const (
	DayClassHoliday         DayClass = "Sonn-/Feiertag"
	DayClassVacationWeekday DayClass = "Mo-Fr (Ferien)"
	DayClassSchoolWeekday   DayClass = "Mo-Fr (Schule)"
	DayClassSaturday        DayClass = "Samstag"
)

// Bucket is a punctuality class for a realized delay.
type Bucket string

const (
	BucketEarly      Bucket = "early"
	BucketOnTime     Bucket = "on_time"
	BucketLateSlight Bucket = "late_slight"
	BucketLateSevere Bucket = "late_severe"

	// Defensive fallback; never surfaced in public aggregates.
	BucketUnknown Bucket = "unknown"
)

// A single scheduled-vs-actual stop event row from the analytical
// store. Zero time.Time values mean the timestamp is absent.
type StopEvent struct {
	TripID   string
	Date     string // service date, YYYY-MM-DD
	LineName string
	StopName string
	BlockID  string

	ArrivalPlanned   time.Time
	ArrivalActual    time.Time
	ArrivalStatus    string
	DeparturePlanned time.Time
	DepartureActual  time.Time
	DepartureStatus  string

	Cancelled  string // raw source encoding, see IsCancelled
	Additional string // raw source encoding, see IsAdditional
}

func (e *StopEvent) Planned(m Metric) time.Time {
	if m == MetricDeparture {
		return e.DeparturePlanned
	}
	return e.ArrivalPlanned
}

func (e *StopEvent) Actual(m Metric) time.Time {
	if m == MetricDeparture {
		return e.DepartureActual
	}
	return e.ArrivalActual
}

// Reports whether an actual (not merely forecast) time has been
// recorded for the given metric side.
func (e *StopEvent) Realized(m Metric) bool {
	status := e.ArrivalStatus
	if m == MetricDeparture {
		status = e.DepartureStatus
	}
	return status == StatusRealized && !e.Planned(m).IsZero() && !e.Actual(m).IsZero()
}

// DelaySeconds is actual minus planned on the metric side. Only
// meaningful when Realized(m) is true.
func (e *StopEvent) DelaySeconds(m Metric) int {
	return int(e.Actual(m).Sub(e.Planned(m)) / time.Second)
}

// The source encodes the cancellation flag inconsistently ("true",
// "True", "1", "t", booleans rendered as text).
func (e *StopEvent) IsCancelled() bool {
	return truthy(e.Cancelled)
}

// Extra/unscheduled trip flag, same tolerant encoding as IsCancelled.
func (e *StopEvent) IsAdditional() bool {
	return truthy(e.Additional)
}

func truthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1":
		return true
	}
	return false
}

// RouteKey is the structured identity of a trip's first and last stop.
// Not globally unique: two physical patterns sharing start and end
// collapse into one key.
type RouteKey struct {
	Start string
	End   string
}

func (k RouteKey) String() string {
	return k.Start + RouteSeparator + k.End
}

func (k RouteKey) IsZero() bool {
	return k.Start == "" && k.End == ""
}

// TripInstance is one realized occurrence of a scheduled trip on one
// service date, derived from its StopEvents. Start/end attributes come
// from extremal aggregation over planned times; Events are ordered by
// the derived stop sequence.
type TripInstance struct {
	TripID   string
	Date     string
	LineName string

	StartName string
	EndName   string
	StartTime time.Time // earliest planned departure
	EndTime   time.Time // latest planned arrival
	VehicleID string    // block operating the first departure

	Events []*StopEvent
}

func (t *TripInstance) Route() RouteKey {
	return RouteKey{Start: t.StartName, End: t.EndName}
}

func (t *TripInstance) RouteName() string {
	return t.Route().String()
}

// A trip counts as cancelled when any of its events carries the flag.
func (t *TripInstance) IsCancelled() bool {
	for _, e := range t.Events {
		if e.IsCancelled() {
			return true
		}
	}
	return false
}

// A trip counts as additional when any of its events carries the flag.
func (t *TripInstance) IsAdditional() bool {
	for _, e := range t.Events {
		if e.IsAdditional() {
			return true
		}
	}
	return false
}
