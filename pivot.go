package punctuality

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/vbl-data/punctuality/filter"
	"github.com/vbl-data/punctuality/model"
)

// ErrScopeRequired is returned by the pivot views when neither a line
// nor a route narrows the query; a stop-by-column grid over the whole
// network has no meaningful row order.
var ErrScopeRequired = errors.New("select a line or route")

// PivotColumn describes one column of a pivot grid: a single trip
// instance at trip granularity, a recurring departure pattern at
// pattern granularity.
type PivotColumn struct {
	ID        string `json:"id"`
	Label     string `json:"label"`
	Vehicle   string `json:"vehicle,omitempty"`
	Date      string `json:"date,omitempty"`
	TripCount int    `json:"trip_count,omitempty"`
}

// PivotGrid is a stop-by-column matrix of delay seconds. Grid cells
// are nil where no realized measurement exists.
type PivotGrid struct {
	Stops   []string      `json:"stops"`
	XLabels []string      `json:"x_labels"`
	Columns []PivotColumn `json:"trips"`
	Grid    [][]*int      `json:"grid"`
}

// stopOrder derives the row order of a pivot: the stops of the primary
// route sorted by their average sequence position. The primary route
// is the first selected route, or the most frequent route of the
// selected line.
func stopOrder(q filter.Query, trips []*model.TripInstance) ([]string, error) {
	var primary *filter.RouteMatcher
	if len(q.Routes) > 0 {
		m := filter.ParseRouteMatcher(q.Routes[0])
		primary = &m
	} else if q.Line != "" {
		routes := map[model.RouteKey]int{}
		for _, t := range trips {
			if t.LineName != q.Line || t.Route().IsZero() {
				continue
			}
			routes[t.Route()]++
		}
		var best model.RouteKey
		bestCount := 0
		for key, count := range routes {
			if count > bestCount || (count == bestCount && key.String() < best.String()) {
				best = key
				bestCount = count
			}
		}
		if bestCount > 0 {
			m := filter.ParseRouteMatcher(best.String())
			primary = &m
		}
	} else {
		return nil, ErrScopeRequired
	}

	ordinals := map[string][]float64{}
	collect := func(onRoute bool) {
		for _, t := range trips {
			if q.Line != "" && t.LineName != q.Line {
				continue
			}
			if onRoute && (primary == nil || !primary.Match(t.Route())) {
				continue
			}
			for i, ev := range t.Events {
				if ev.StopName == "" {
					continue
				}
				ordinals[ev.StopName] = append(ordinals[ev.StopName], float64(i))
			}
		}
	}
	collect(true)
	if len(ordinals) == 0 {
		// No trip realizes the primary route; fall back to the whole
		// line so the grid still renders.
		collect(false)
	}

	type stopPos struct {
		name string
		pos  float64
	}
	positions := make([]stopPos, 0, len(ordinals))
	for name, os := range ordinals {
		avg, _ := stats.Mean(os)
		positions = append(positions, stopPos{name: name, pos: avg})
	}
	sort.Slice(positions, func(i, j int) bool {
		if positions[i].pos != positions[j].pos {
			return positions[i].pos < positions[j].pos
		}
		return positions[i].name < positions[j].name
	})

	stops := make([]string, len(positions))
	for i, p := range positions {
		stops[i] = p.name
	}
	return stops, nil
}

// TripPivot builds the stop-by-trip delay matrix: one column per trip
// instance, ordered by planned start time. The time-of-day window
// applies to the trip's start, not to individual stops, so a trip
// departing inside the window keeps its full stop sequence. With
// regularOnly set, unscheduled extra trips are excluded.
func (e *Engine) TripPivot(q filter.Query, regularOnly bool) (*PivotGrid, error) {
	ctx, err := e.context(q)
	if err != nil {
		return nil, err
	}

	stops, err := stopOrder(q, ctx.trips)
	if err != nil {
		return nil, err
	}
	rowOf := make(map[string]int, len(stops))
	for i, s := range stops {
		rowOf[s] = i
	}

	var selected []*model.TripInstance
	for _, t := range ctx.trips {
		if !ctx.pred.MatchTrip(t) || !ctx.pred.InTimeWindow(t.StartTime) {
			continue
		}
		if regularOnly && t.IsAdditional() {
			continue
		}
		selected = append(selected, t)
	}
	sort.SliceStable(selected, func(i, j int) bool {
		if !selected[i].StartTime.Equal(selected[j].StartTime) {
			return selected[i].StartTime.Before(selected[j].StartTime)
		}
		return selected[i].TripID < selected[j].TripID
	})

	grid := &PivotGrid{Stops: stops}
	for _, t := range selected {
		label := t.StartTime.Format("15:04")
		grid.Columns = append(grid.Columns, PivotColumn{
			ID:      t.TripID + "_" + columnDate(t.Date),
			Label:   label,
			Vehicle: t.VehicleID,
			Date:    t.Date,
		})
		grid.XLabels = append(grid.XLabels, columnDate(t.Date))

		col := make(map[int]*int)
		for _, ev := range t.Events {
			row, ok := rowOf[ev.StopName]
			if !ok || !ev.Realized(ctx.metric) {
				continue
			}
			delay := ev.DelaySeconds(ctx.metric)
			if !admissible(delay, ctx.th) {
				continue
			}
			d := delay
			col[row] = &d
		}
		grid.Grid = append(grid.Grid, cellRow(col, len(stops)))
	}

	return grid, nil
}

// columnDate renders the service date as the short DD.MM. suffix used
// in trip column ids.
func columnDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("02.01.")
}

func cellRow(col map[int]*int, width int) []*int {
	row := make([]*int, width)
	for i, v := range col {
		row[i] = v
	}
	return row
}

// PatternPivot collapses trip instances across dates into recurring
// departure patterns keyed by (route, planned start time); each cell
// averages the delay of that pattern at that stop. Day-class filtering
// happens per trip before the collapse so a pattern's n reflects only
// days of the selected class.
func (e *Engine) PatternPivot(q filter.Query) (*PivotGrid, error) {
	ctx, err := e.context(q)
	if err != nil {
		return nil, err
	}

	stops, err := stopOrder(q, ctx.trips)
	if err != nil {
		return nil, err
	}
	rowOf := make(map[string]int, len(stops))
	for i, s := range stops {
		rowOf[s] = i
	}

	// Trips enter a pattern on date, line and day class alone; the
	// route and stop dimensions then select within the pattern so
	// wildcard route selections cannot split one pattern in two.
	preQuery := filter.Query{
		DateFrom: q.DateFrom,
		DateTo:   q.DateTo,
		DayClass: q.DayClass,
		Line:     q.Line,
	}
	pre, err := preQuery.Predicate(e.classifier())
	if err != nil {
		return nil, err
	}

	type patternKey struct {
		route string
		start string
	}
	type patternAcc struct {
		cells map[int][]float64
		dates map[int]map[string]struct{}
	}
	patterns := map[patternKey]*patternAcc{}

	for _, t := range ctx.trips {
		if !pre.MatchTrip(t) || !ctx.pred.MatchTrip(t) {
			continue
		}
		key := patternKey{route: t.RouteName(), start: t.StartTime.Format("15:04")}
		p := patterns[key]
		if p == nil {
			p = &patternAcc{cells: map[int][]float64{}, dates: map[int]map[string]struct{}{}}
			patterns[key] = p
		}
		for _, ev := range t.Events {
			row, ok := rowOf[ev.StopName]
			if !ok || !ev.Realized(ctx.metric) || !ctx.pred.MatchEvent(t, ev) {
				continue
			}
			delay := ev.DelaySeconds(ctx.metric)
			if !admissible(delay, ctx.th) {
				continue
			}
			p.cells[row] = append(p.cells[row], float64(delay))
			if p.dates[row] == nil {
				p.dates[row] = map[string]struct{}{}
			}
			p.dates[row][t.Date] = struct{}{}
		}
	}

	keys := make([]patternKey, 0, len(patterns))
	for key := range patterns {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].start != keys[j].start {
			return keys[i].start < keys[j].start
		}
		return keys[i].route < keys[j].route
	})

	grid := &PivotGrid{Stops: stops}
	for _, key := range keys {
		p := patterns[key]

		n := 0
		for _, dates := range p.dates {
			if len(dates) > n {
				n = len(dates)
			}
		}
		if n == 0 {
			continue
		}

		label := fmt.Sprintf("%s (n=%d)", key.start, n)
		grid.Columns = append(grid.Columns, PivotColumn{
			ID:        key.route + "_" + key.start,
			Label:     label,
			TripCount: n,
		})
		grid.XLabels = append(grid.XLabels, label)

		col := make(map[int]*int)
		for row, delays := range p.cells {
			avg, _ := stats.Mean(delays)
			d := int(math.Round(avg))
			col[row] = &d
		}
		grid.Grid = append(grid.Grid, cellRow(col, len(stops)))
	}

	return grid, nil
}

// HeatmapCell is the profile of one (stop, time slot) combination.
// The percentile labels follow the sigma-band convention of the
// dashboard: p5/p1 are the 2.5th and 97.5th percentiles, p4/p2 one
// sigma, p3 the median.
type HeatmapCell struct {
	StopName string `json:"stop_name"`
	TimeSlot string `json:"time_slot"`
	BucketCounts
	AvgDelay float64 `json:"avg_delay"`
	P5       float64 `json:"p5"`
	P4       float64 `json:"p4"`
	P3       float64 `json:"p3"`
	P2       float64 `json:"p2"`
	P1       float64 `json:"p1"`
}

// Heatmap is the bucketed stop-by-slot view.
type Heatmap struct {
	Stops []string      `json:"stops"`
	Data  []HeatmapCell `json:"data"`
}

var sigmaBands = []float64{0.025, 0.16, 0.50, 0.84, 0.975}

// HeatmapBuckets aggregates every realized event into (stop, slot)
// cells with bucket counts, mean delay and the sigma-band percentiles.
// Always event grain.
func (e *Engine) HeatmapBuckets(q filter.Query, bucketMinutes int) (*Heatmap, error) {
	if bucketMinutes <= 0 {
		bucketMinutes = 60
	}

	ctx, err := e.context(q)
	if err != nil {
		return nil, err
	}

	stops, err := stopOrder(q, ctx.trips)
	if err != nil {
		return nil, err
	}
	stopRank := make(map[string]int, len(stops))
	for i, s := range stops {
		stopRank[s] = i
	}

	type cellKey struct {
		stop string
		slot string
	}
	type cellAcc struct {
		counts BucketCounts
		delays []float64
	}
	cells := map[cellKey]*cellAcc{}

	for _, t := range ctx.trips {
		if !ctx.pred.MatchTrip(t) {
			continue
		}
		for _, ev := range t.Events {
			if _, ok := stopRank[ev.StopName]; !ok {
				continue
			}
			if !ev.Realized(ctx.metric) || !ctx.pred.MatchEvent(t, ev) {
				continue
			}
			delay := ev.DelaySeconds(ctx.metric)
			if !admissible(delay, ctx.th) {
				continue
			}
			key := cellKey{stop: ev.StopName, slot: slotLabel(ev.Planned(ctx.metric), bucketMinutes)}
			c := cells[key]
			if c == nil {
				c = &cellAcc{}
				cells[key] = c
			}
			c.counts.add(ClassifyDelay(delay, ctx.th))
			c.delays = append(c.delays, float64(delay))
		}
	}

	keys := make([]cellKey, 0, len(cells))
	for key := range cells {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if stopRank[keys[i].stop] != stopRank[keys[j].stop] {
			return stopRank[keys[i].stop] < stopRank[keys[j].stop]
		}
		return operatingDayOrder(keys[i].slot) < operatingDayOrder(keys[j].slot)
	})

	hm := &Heatmap{Stops: stops, Data: make([]HeatmapCell, 0, len(keys))}
	for _, key := range keys {
		c := cells[key]
		avg, _ := stats.Mean(c.delays)
		qs := quantilesCont(c.delays, sigmaBands...)
		hm.Data = append(hm.Data, HeatmapCell{
			StopName:     key.stop,
			TimeSlot:     key.slot,
			BucketCounts: c.counts,
			AvgDelay:     round1(avg),
			P5:           round1(qs[0]),
			P4:           round1(qs[1]),
			P3:           round1(qs[2]),
			P2:           round1(qs[3]),
			P1:           round1(qs[4]),
		})
	}

	return hm, nil
}

// HeatmapView dispatches on the granularity selector: "trip" and
// "pattern" return pivot grids, anything else is parsed as a slot
// width in minutes (default 60) for the bucketed heatmap.
func (e *Engine) HeatmapView(q filter.Query, granularity string, regularOnly bool) (interface{}, error) {
	switch granularity {
	case "trip":
		return e.TripPivot(q, regularOnly)
	case "pattern":
		return e.PatternPivot(q)
	default:
		minutes, err := strconv.Atoi(granularity)
		if err != nil || minutes <= 0 {
			minutes = 60
		}
		return e.HeatmapBuckets(q, minutes)
	}
}

// quantilesCont computes linearly interpolated quantiles (the
// continuous method, matching SQL quantile_cont) for each probability.
// Sorts a copy of the input once.
func quantilesCont(xs []float64, probs ...float64) []float64 {
	out := make([]float64, len(probs))
	if len(xs) == 0 {
		return out
	}

	sorted := make([]float64, len(xs))
	copy(sorted, xs)
	sort.Float64s(sorted)

	n := len(sorted)
	for i, p := range probs {
		h := p * float64(n-1)
		lo := int(math.Floor(h))
		if lo >= n-1 {
			out[i] = sorted[n-1]
			continue
		}
		frac := h - float64(lo)
		out[i] = sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
	}

	return out
}
