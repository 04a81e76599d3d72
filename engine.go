// Package punctuality computes public-transit punctuality analytics
// over a relation of scheduled-vs-actual stop events: delay buckets,
// heatmaps, pattern and trip views, cancellation rates.
package punctuality

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/vbl-data/punctuality/calendar"
	"github.com/vbl-data/punctuality/config"
	"github.com/vbl-data/punctuality/filter"
	"github.com/vbl-data/punctuality/model"
	"github.com/vbl-data/punctuality/storage"
)

// Engine is the analytics core. It owns a handle to the stop-event
// store, the holiday calendar and the configuration store, and
// exposes one method per aggregation. All query methods are read-only
// and safe to call concurrently; thresholds are read fresh on every
// call.
type Engine struct {
	store    storage.Storage
	calendar *calendar.Calendar
	config   *config.Store
	logger   zerolog.Logger
}

func New(store storage.Storage, cal *calendar.Calendar, cfg *config.Store, logger zerolog.Logger) *Engine {
	if cal == nil {
		cal = calendar.New()
	}
	return &Engine{
		store:    store,
		calendar: cal,
		config:   cfg,
		logger:   logger,
	}
}

// Config exposes the configuration store for update round-trips.
func (e *Engine) Config() *config.Store {
	return e.config
}

// classifier returns a per-call memoized day classifier over the
// holiday calendar.
func (e *Engine) classifier() filter.ClassifyFunc {
	cache := map[string]model.DayClass{}
	return func(date string) model.DayClass {
		if c, ok := cache[date]; ok {
			return c
		}
		var c model.DayClass
		if t, err := time.Parse("2006-01-02", date); err == nil {
			c = e.calendar.Classify(t)
		}
		cache[date] = c
		return c
	}
}

// queryContext is the shared per-call setup: reconstructed trips for
// the pushdown-scoped rows, the compiled predicate, and a fresh read
// of the thresholds.
type queryContext struct {
	trips  []*model.TripInstance
	pred   *filter.Predicate
	th     config.Thresholds
	metric model.Metric
}

func (e *Engine) context(q filter.Query) (*queryContext, error) {
	events, err := e.store.StopEvents(q.EventFilter())
	if err != nil {
		return nil, fmt.Errorf("loading stop events: %w", err)
	}

	pred, err := q.Predicate(e.classifier())
	if err != nil {
		return nil, err
	}

	return &queryContext{
		trips:  Reconstruct(events),
		pred:   pred,
		th:     e.config.Thresholds(),
		metric: q.MetricSide(),
	}, nil
}

// DateRange returns the earliest and latest service date in the
// store, or today twice when the relation is empty.
func (e *Engine) DateRange() (string, string, error) {
	min, max, err := e.store.DateRange()
	if err != nil {
		return "", "", fmt.Errorf("loading date range: %w", err)
	}
	if min == "" {
		today := time.Now().Format("2006-01-02")
		return today, today, nil
	}
	return min, max, nil
}

// RouteCount is one composite route of a line with its trip count.
type RouteCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// Lines returns, per line, the distinct composite routes with the
// number of trip instances realizing each, most frequent first.
func (e *Engine) Lines() (map[string][]RouteCount, error) {
	events, err := e.store.StopEvents(storage.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("loading stop events: %w", err)
	}

	counts := map[string]map[string]int{}
	for _, t := range Reconstruct(events) {
		if t.StartName == "" || t.EndName == "" {
			continue
		}
		if counts[t.LineName] == nil {
			counts[t.LineName] = map[string]int{}
		}
		counts[t.LineName][t.RouteName()]++
	}

	lines := map[string][]RouteCount{}
	for line, routes := range counts {
		for name, count := range routes {
			lines[line] = append(lines[line], RouteCount{Name: name, Count: count})
		}
		sort.Slice(lines[line], func(i, j int) bool {
			if lines[line][i].Count != lines[line][j].Count {
				return lines[line][i].Count > lines[line][j].Count
			}
			return lines[line][i].Name < lines[line][j].Name
		})
	}

	return lines, nil
}

// StopOption is a selectable stop identity for dashboard filters. The
// value carries the composite "stop » destination" form so stop
// filtering can distinguish directions.
type StopOption struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Stops lists the distinct composite stop identities, optionally
// scoped to a line and/or an exact composite route.
func (e *Engine) Stops(line, route string) ([]StopOption, error) {
	events, err := e.store.StopEvents(storage.EventFilter{Line: line})
	if err != nil {
		return nil, fmt.Errorf("loading stop events: %w", err)
	}

	seen := map[string]struct{}{}
	for _, t := range Reconstruct(events) {
		if route != "" && t.RouteName() != route {
			continue
		}
		for _, ev := range t.Events {
			if ev.StopName == "" {
				continue
			}
			seen[ev.StopName+model.RouteSeparator+t.EndName] = struct{}{}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)

	options := make([]StopOption, 0, len(names))
	for _, name := range names {
		options = append(options, StopOption{Value: name, Label: name})
	}

	return options, nil
}
