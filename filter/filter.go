// Package filter turns a structured query into the two halves of the
// row predicate: a parameterized pushdown filter for the storage
// backend (date range and line, the cheap bounds) and an in-engine
// Predicate for everything the relation cannot answer on its own:
// composite route/stop identity, day class and time-of-day windows.
package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vbl-data/punctuality/model"
	"github.com/vbl-data/punctuality/storage"
)

// ClassifyFunc maps a service date (YYYY-MM-DD) to its day class.
type ClassifyFunc func(date string) model.DayClass

// Query is the full set of filter dimensions a caller can select.
// Zero values mean no restriction.
type Query struct {
	DateFrom string // inclusive, YYYY-MM-DD
	DateTo   string // inclusive
	Routes   []string
	Stops    []string
	DayClass model.DayClass
	Line     string
	TimeFrom string // HH:MM
	TimeTo   string // HH:MM
	Metric   model.Metric
}

// EventFilter is the parameterized pushdown applied by the storage
// backend before any row reaches the engine.
func (q Query) EventFilter() storage.EventFilter {
	return storage.EventFilter{
		DateFrom: q.DateFrom,
		DateTo:   q.DateTo,
		Line:     q.Line,
	}
}

// MetricSide normalizes the metric selection, defaulting to arrival.
func (q Query) MetricSide() model.Metric {
	if q.Metric == model.MetricDeparture {
		return model.MetricDeparture
	}
	return model.MetricArrival
}

// Predicate compiles the query. The classify function backs the
// day-class dimension.
func (q Query) Predicate(classify ClassifyFunc) (*Predicate, error) {
	window, err := newTimeWindow(q.TimeFrom, q.TimeTo)
	if err != nil {
		return nil, err
	}

	p := &Predicate{
		dateFrom: q.DateFrom,
		dateTo:   q.DateTo,
		dayClass: q.DayClass,
		classify: classify,
		line:     q.Line,
		window:   window,
		metric:   q.MetricSide(),
	}
	for _, r := range q.Routes {
		p.routes = append(p.routes, ParseRouteMatcher(r))
	}
	p.stops = newStopMatcher(q.Stops)

	return p, nil
}

// Predicate is the compiled, independently testable form of a Query.
type Predicate struct {
	dateFrom string
	dateTo   string
	routes   []RouteMatcher
	stops    stopMatcher
	dayClass model.DayClass
	classify ClassifyFunc
	line     string
	window   *timeWindow
	metric   model.Metric
}

// HasStopFilter reports whether a specific stop selection is active,
// which switches aggregations from trip grain to event grain.
func (p *Predicate) HasStopFilter() bool {
	return len(p.stops.set) > 0
}

// HasTimeWindow reports whether a time-of-day restriction is active.
func (p *Predicate) HasTimeWindow() bool {
	return p.window != nil
}

// InTimeWindow applies the time-of-day window to an arbitrary
// timestamp, used by pivots that window on the trip's start time.
func (p *Predicate) InTimeWindow(t time.Time) bool {
	return p.window == nil || p.window.contains(t)
}

// MatchTrip applies the trip-scoped dimensions: date bounds, line,
// day class and route identity.
func (p *Predicate) MatchTrip(t *model.TripInstance) bool {
	if !p.matchDate(t.Date) {
		return false
	}
	if p.line != "" && t.LineName != p.line {
		return false
	}
	if p.dayClass != "" && p.classify(t.Date) != p.dayClass {
		return false
	}
	return p.matchRoute(t)
}

// MatchEvent applies the event-scoped dimensions on top of MatchTrip:
// date bounds and line on the row itself, day class, stop identity
// and the planned time-of-day window on the metric side.
func (p *Predicate) MatchEvent(t *model.TripInstance, e *model.StopEvent) bool {
	if !p.matchDate(e.Date) {
		return false
	}
	if p.line != "" && e.LineName != p.line {
		return false
	}
	if p.dayClass != "" && p.classify(e.Date) != p.dayClass {
		return false
	}
	if !p.stops.match(t, e) {
		return false
	}
	if p.window != nil {
		planned := e.Planned(p.metric)
		if planned.IsZero() || !p.window.contains(planned) {
			return false
		}
	}
	return true
}

// Match is the full predicate over a (trip, event) pair.
func (p *Predicate) Match(t *model.TripInstance, e *model.StopEvent) bool {
	return p.MatchTrip(t) && p.MatchEvent(t, e)
}

func (p *Predicate) matchDate(date string) bool {
	if p.dateFrom != "" && date < p.dateFrom {
		return false
	}
	if p.dateTo != "" && date > p.dateTo {
		return false
	}
	return true
}

func (p *Predicate) matchRoute(t *model.TripInstance) bool {
	if len(p.routes) == 0 {
		return true
	}
	for _, m := range p.routes {
		if m.Match(t.Route()) {
			return true
		}
	}
	return false
}

// RouteMatcher matches a single user-supplied route entry. When the
// composite string splits into exactly two parts the match is exact
// equality on the structured key, never substring, to sidestep
// separator-encoding ambiguity. Unsplittable entries fall back to a
// substring match with the separator as a wildcard.
type RouteMatcher struct {
	exact     bool
	key       model.RouteKey
	fragments []string
}

func ParseRouteMatcher(route string) RouteMatcher {
	for _, sep := range []string{model.RouteSeparator, "»", ">>"} {
		parts := strings.Split(route, sep)
		if len(parts) == 2 {
			return RouteMatcher{
				exact: true,
				key: model.RouteKey{
					Start: strings.TrimSpace(parts[0]),
					End:   strings.TrimSpace(parts[1]),
				},
			}
		}
	}

	var fragments []string
	for _, f := range strings.FieldsFunc(route, func(r rune) bool { return r == '»' }) {
		f = strings.TrimSpace(strings.ReplaceAll(f, ">>", ""))
		if f != "" {
			fragments = append(fragments, f)
		}
	}
	return RouteMatcher{fragments: fragments}
}

func (m RouteMatcher) Match(key model.RouteKey) bool {
	if m.exact {
		return key.Start == m.key.Start && key.End == m.key.End
	}
	// Fallback: fragments must appear in order in the composite name.
	name := key.String()
	for _, f := range m.fragments {
		i := strings.Index(name, f)
		if i < 0 {
			return false
		}
		name = name[i+len(f):]
	}
	return true
}

// Exact reports whether the matcher is an exact structured-key match,
// and returns the key.
func (m RouteMatcher) Exact() (model.RouteKey, bool) {
	return m.key, m.exact
}

// stopMatcher is an OR-combined set membership over stop identities.
// When the first entry carries the composite separator, all entries
// are treated as "stop » destination" identities matched against the
// event's stop name joined with the trip's end stop.
type stopMatcher struct {
	composite bool
	set       map[string]struct{}
}

func newStopMatcher(stops []string) stopMatcher {
	m := stopMatcher{set: map[string]struct{}{}}
	if len(stops) == 0 {
		return m
	}
	m.composite = strings.Contains(stops[0], model.RouteSeparator)
	for _, s := range stops {
		m.set[s] = struct{}{}
	}
	return m
}

func (m stopMatcher) match(t *model.TripInstance, e *model.StopEvent) bool {
	if len(m.set) == 0 {
		return true
	}
	name := e.StopName
	if m.composite {
		name = e.StopName + model.RouteSeparator + t.EndName
	}
	_, ok := m.set[name]
	return ok
}

// timeWindow is a time-of-day restriction in seconds since midnight.
// from/to are -1 when open on that side.
type timeWindow struct {
	from int
	to   int
}

// newTimeWindow returns nil (no restriction) when no bound is given
// or when both bounds are equal, which means "whole day". A from
// bound after the to bound is a cross-midnight window.
func newTimeWindow(from, to string) (*timeWindow, error) {
	if from == "" && to == "" {
		return nil, nil
	}
	if from != "" && from == to {
		return nil, nil
	}

	w := &timeWindow{from: -1, to: -1}
	var err error
	if from != "" {
		if w.from, err = secondsOfDay(from); err != nil {
			return nil, err
		}
	}
	if to != "" {
		if w.to, err = secondsOfDay(to); err != nil {
			return nil, err
		}
	}

	return w, nil
}

func (w *timeWindow) contains(t time.Time) bool {
	s := t.Hour()*3600 + t.Minute()*60 + t.Second()
	switch {
	case w.from >= 0 && w.to >= 0 && w.from > w.to:
		// Cross-midnight, e.g. 22:00 to 02:00.
		return s >= w.from || s <= w.to
	case w.from >= 0 && w.to >= 0:
		return s >= w.from && s <= w.to
	case w.from >= 0:
		return s >= w.from
	default:
		return s <= w.to
	}
}

func secondsOfDay(s string) (int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day '%s'", s)
	}

	total := 0
	for i, unit := range []int{3600, 60, 1} {
		if i >= len(parts) {
			break
		}
		v, err := strconv.Atoi(parts[i])
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid time of day '%s'", s)
		}
		total += v * unit
	}
	if total >= 24*3600 {
		return 0, fmt.Errorf("time of day '%s' out of range", s)
	}

	return total, nil
}
