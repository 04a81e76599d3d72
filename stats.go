package punctuality

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/vbl-data/punctuality/calendar"
	"github.com/vbl-data/punctuality/filter"
	"github.com/vbl-data/punctuality/model"
	"github.com/vbl-data/punctuality/storage"
)

// BucketCounts is the per-bucket tally of an aggregation.
type BucketCounts struct {
	Early      int `json:"early"`
	OnTime     int `json:"on_time"`
	LateSlight int `json:"late_slight"`
	LateSevere int `json:"late_severe"`
	Total      int `json:"total"`
}

func (c *BucketCounts) add(b model.Bucket) {
	switch b {
	case model.BucketEarly:
		c.Early++
	case model.BucketOnTime:
		c.OnTime++
	case model.BucketLateSlight:
		c.LateSlight++
	case model.BucketLateSevere:
		c.LateSevere++
	default:
		// Unknown buckets stay out of the public totals.
		return
	}
	c.Total++
}

// sample is one qualifying measurement. At trip grain there is one
// sample per trip carrying its worst observed delay; at event grain
// (active stop filter) every matching stop event is its own sample.
type sample struct {
	trip    *model.TripInstance
	delay   int
	planned time.Time
}

// samples applies the grain rules shared by the punctuality, time-slot
// and weekday aggregations. Without a stop filter a trip is
// represented by the event at its last stop (arrival metric) or first
// stop (departure metric), and counts as its maximum qualifying
// delay. A stop filter drops the terminal restriction and switches to
// event grain.
func (e *Engine) samples(ctx *queryContext) []sample {
	eventGrain := ctx.pred.HasStopFilter()

	var out []sample
	for _, t := range ctx.trips {
		if !ctx.pred.MatchTrip(t) {
			continue
		}

		found := false
		maxDelay := 0
		var maxPlanned time.Time
		for _, ev := range t.Events {
			if !ev.Realized(ctx.metric) {
				continue
			}
			if !eventGrain && !terminalEvent(t, ev, ctx.metric) {
				continue
			}
			if !ctx.pred.MatchEvent(t, ev) {
				continue
			}
			delay := ev.DelaySeconds(ctx.metric)
			if !admissible(delay, ctx.th) {
				continue
			}

			if eventGrain {
				out = append(out, sample{trip: t, delay: delay, planned: ev.Planned(ctx.metric)})
				continue
			}
			if !found || delay > maxDelay {
				maxDelay = delay
			}
			if planned := ev.Planned(ctx.metric); planned.After(maxPlanned) {
				maxPlanned = planned
			}
			found = true
		}

		if !eventGrain && found {
			out = append(out, sample{trip: t, delay: maxDelay, planned: maxPlanned})
		}
	}

	return out
}

// terminalEvent reports whether the event represents the trip-level
// measurement point: the last stop for arrivals, the first stop for
// departures.
func terminalEvent(t *model.TripInstance, e *model.StopEvent, m model.Metric) bool {
	if m == model.MetricDeparture {
		return !e.DeparturePlanned.IsZero() && e.DeparturePlanned.Equal(t.StartTime)
	}
	return !e.ArrivalPlanned.IsZero() && e.ArrivalPlanned.Equal(t.EndTime)
}

// PunctualityStats classifies each qualifying measurement into delay
// buckets under the current thresholds.
func (e *Engine) PunctualityStats(q filter.Query) (BucketCounts, error) {
	ctx, err := e.context(q)
	if err != nil {
		return BucketCounts{}, err
	}

	var counts BucketCounts
	for _, s := range e.samples(ctx) {
		counts.add(ClassifyDelay(s.delay, ctx.th))
	}

	return counts, nil
}

// TimeSlotStats is the bucket breakdown of one time-of-day slot.
type TimeSlotStats struct {
	TimeSlot string `json:"time_slot"`
	BucketCounts
}

// StatsByTimeSlot floors each measurement's planned time to the given
// bucket width and tallies buckets per slot. Slots before 04:00 sort
// after 24:00, the operating-day convention.
func (e *Engine) StatsByTimeSlot(q filter.Query, bucketMinutes int) ([]TimeSlotStats, error) {
	if bucketMinutes <= 0 {
		bucketMinutes = 60
	}

	ctx, err := e.context(q)
	if err != nil {
		return nil, err
	}

	slots := map[string]*TimeSlotStats{}
	for _, s := range e.samples(ctx) {
		label := slotLabel(s.planned, bucketMinutes)
		slot := slots[label]
		if slot == nil {
			slot = &TimeSlotStats{TimeSlot: label}
			slots[label] = slot
		}
		slot.add(ClassifyDelay(s.delay, ctx.th))
	}

	out := make([]TimeSlotStats, 0, len(slots))
	for _, slot := range slots {
		out = append(out, *slot)
	}
	sort.Slice(out, func(i, j int) bool {
		return operatingDayOrder(out[i].TimeSlot) < operatingDayOrder(out[j].TimeSlot)
	})

	return out, nil
}

func slotLabel(t time.Time, bucketMinutes int) string {
	m := (t.Hour()*60 + t.Minute()) / bucketMinutes * bucketMinutes
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// operatingDayOrder maps an HH:MM label to its sort position on the
// operating day: hours before 04:00 belong to the end of the previous
// service day.
func operatingDayOrder(slot string) int {
	var h, m int
	fmt.Sscanf(slot, "%d:%d", &h, &m)
	if h < 4 {
		h += 24
	}
	return h*60 + m
}

// WeekdayStats is the bucket breakdown of one ISO weekday.
type WeekdayStats struct {
	Weekday int    `json:"dow"` // 1=Monday .. 7=Sunday
	DayName string `json:"day_name"`
	BucketCounts
}

var dayNames = map[int]string{
	1: "Mo", 2: "Di", 3: "Mi", 4: "Do", 5: "Fr", 6: "Sa", 7: "So",
}

// StatsByWeekday tallies buckets per ISO weekday of the trip's
// service date.
func (e *Engine) StatsByWeekday(q filter.Query) ([]WeekdayStats, error) {
	ctx, err := e.context(q)
	if err != nil {
		return nil, err
	}

	days := map[int]*WeekdayStats{}
	for _, s := range e.samples(ctx) {
		date, err := time.Parse("2006-01-02", s.trip.Date)
		if err != nil {
			continue
		}
		dow := calendar.ISOWeekday(date)
		day := days[dow]
		if day == nil {
			day = &WeekdayStats{Weekday: dow, DayName: dayNames[dow]}
			days[dow] = day
		}
		day.add(ClassifyDelay(s.delay, ctx.th))
	}

	out := make([]WeekdayStats, 0, len(days))
	for _, day := range days {
		out = append(out, *day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })

	return out, nil
}

// DwellStats is the average dwell time of one hour of day.
type DwellStats struct {
	Hour       int     `json:"hour"`
	AvgSeconds float64 `json:"avg_seconds"`
}

// Dwell times outside this window are implausible (negative) or a
// layover rather than a stop (beyond 20 minutes) and are excluded.
const (
	minDwellSeconds = 0
	maxDwellSeconds = 1200
)

// DwellTimeByHour averages departure_actual minus arrival_actual per
// hour of the actual arrival, over events realized on both sides.
func (e *Engine) DwellTimeByHour(q filter.Query) ([]DwellStats, error) {
	ctx, err := e.context(q)
	if err != nil {
		return nil, err
	}

	hours := map[int][]float64{}
	for _, t := range ctx.trips {
		if !ctx.pred.MatchTrip(t) {
			continue
		}
		for _, ev := range t.Events {
			if !ev.Realized(model.MetricArrival) || !ev.Realized(model.MetricDeparture) {
				continue
			}
			if !ctx.pred.MatchEvent(t, ev) {
				continue
			}
			dwell := int(ev.DepartureActual.Sub(ev.ArrivalActual) / time.Second)
			if dwell < minDwellSeconds || dwell > maxDwellSeconds {
				continue
			}
			hour := ev.ArrivalActual.Hour()
			hours[hour] = append(hours[hour], float64(dwell))
		}
	}

	out := make([]DwellStats, 0, len(hours))
	for hour, dwells := range hours {
		avg, _ := stats.Mean(dwells)
		out = append(out, DwellStats{Hour: hour, AvgSeconds: round1(avg)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour < out[j].Hour })

	return out, nil
}

// StopStats is the punctuality profile of one stop.
type StopStats struct {
	StopName        string  `json:"stop_name"`
	AvgDelaySeconds float64 `json:"avg_delay_seconds"`
	Early           int     `json:"early"`
	OnTime          int     `json:"on_time"`
	LateSlight      int     `json:"late_slight"`
	LateSevere      int     `json:"late_severe"`
	Total           int     `json:"total_trips"`
	PctEarly        float64 `json:"pct_early"`
	PctOnTime       float64 `json:"pct_on_time"`
	PctLateSlight   float64 `json:"pct_late_slight"`
	PctLateSevere   float64 `json:"pct_late_severe"`
}

// Stops with fewer qualifying events than this are noise.
const problematicStopsNoiseFloor = 20

// ProblematicStops ranks stops by severe-delay count, then average
// delay, over all qualifying events. Top 20.
func (e *Engine) ProblematicStops(q filter.Query) ([]StopStats, error) {
	ctx, err := e.context(q)
	if err != nil {
		return nil, err
	}

	type acc struct {
		counts BucketCounts
		delays []float64
	}
	byStop := map[string]*acc{}
	for _, t := range ctx.trips {
		if !ctx.pred.MatchTrip(t) {
			continue
		}
		for _, ev := range t.Events {
			if !ev.Realized(ctx.metric) || !ctx.pred.MatchEvent(t, ev) {
				continue
			}
			delay := ev.DelaySeconds(ctx.metric)
			if !admissible(delay, ctx.th) {
				continue
			}
			a := byStop[ev.StopName]
			if a == nil {
				a = &acc{}
				byStop[ev.StopName] = a
			}
			a.counts.add(ClassifyDelay(delay, ctx.th))
			a.delays = append(a.delays, float64(delay))
		}
	}

	out := []StopStats{}
	for name, a := range byStop {
		if a.counts.Total <= problematicStopsNoiseFloor {
			continue
		}
		avg, _ := stats.Mean(a.delays)
		total := a.counts.Total
		out = append(out, StopStats{
			StopName:        name,
			AvgDelaySeconds: round1(avg),
			Early:           a.counts.Early,
			OnTime:          a.counts.OnTime,
			LateSlight:      a.counts.LateSlight,
			LateSevere:      a.counts.LateSevere,
			Total:           total,
			PctEarly:        round1(pct(a.counts.Early, total)),
			PctOnTime:       round1(pct(a.counts.OnTime, total)),
			PctLateSlight:   round1(pct(a.counts.LateSlight, total)),
			PctLateSevere:   round1(pct(a.counts.LateSevere, total)),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].LateSevere != out[j].LateSevere {
			return out[i].LateSevere > out[j].LateSevere
		}
		if out[i].AvgDelaySeconds != out[j].AvgDelaySeconds {
			return out[i].AvgDelaySeconds > out[j].AvgDelaySeconds
		}
		return out[i].StopName < out[j].StopName
	})
	if len(out) > 20 {
		out = out[:20]
	}

	return out, nil
}

// TripDelay is one entry of the worst-trips ranking.
type TripDelay struct {
	TripID       string  `json:"trip_id"`
	Date         string  `json:"date"`
	Time         string  `json:"time"` // planned arrival of the worst event
	Route        string  `json:"route"`
	Line         string  `json:"line"`
	DelayMinutes float64 `json:"delay_minutes"`
}

// WorstTrips ranks trip instances by their maximum realized arrival
// delay among qualifying events. Top 50.
func (e *Engine) WorstTrips(q filter.Query) ([]TripDelay, error) {
	ctx, err := e.context(q)
	if err != nil {
		return nil, err
	}

	out := []TripDelay{}
	for _, t := range ctx.trips {
		if !ctx.pred.MatchTrip(t) {
			continue
		}

		found := false
		maxDelay := 0
		var worst *model.StopEvent
		for _, ev := range t.Events {
			if !ev.Realized(model.MetricArrival) || !ctx.pred.MatchEvent(t, ev) {
				continue
			}
			delay := ev.DelaySeconds(model.MetricArrival)
			if !admissible(delay, ctx.th) {
				continue
			}
			if !found || delay > maxDelay {
				maxDelay = delay
				worst = ev
			}
			found = true
		}
		if !found {
			continue
		}

		out = append(out, TripDelay{
			TripID:       t.TripID,
			Date:         t.Date,
			Time:         worst.ArrivalPlanned.Format("15:04:05"),
			Route:        t.RouteName(),
			Line:         t.LineName,
			DelayMinutes: round1(float64(maxDelay) / 60),
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DelayMinutes > out[j].DelayMinutes })
	if len(out) > 50 {
		out = out[:50]
	}

	return out, nil
}

// CancellationStats is the share of cancelled trips in the filtered
// set.
type CancellationStats struct {
	CancelledTrips int     `json:"total_cancelled_trips"`
	TotalTrips     int     `json:"total_trips"`
	Rate           float64 `json:"cancellation_rate"`
}

// CancellationStats counts distinct trip ids with the cancellation
// flag set, tolerant of the source's mixed encodings, against all
// distinct trip ids in the filtered set.
func (e *Engine) CancellationStats(q filter.Query) (CancellationStats, error) {
	ctx, err := e.context(q)
	if err != nil {
		return CancellationStats{}, err
	}

	total := map[string]struct{}{}
	cancelled := map[string]struct{}{}
	for _, t := range ctx.trips {
		if !ctx.pred.MatchTrip(t) {
			continue
		}
		for _, ev := range t.Events {
			if !ctx.pred.MatchEvent(t, ev) {
				continue
			}
			total[ev.TripID] = struct{}{}
			if ev.IsCancelled() {
				cancelled[ev.TripID] = struct{}{}
			}
		}
	}

	result := CancellationStats{
		CancelledTrips: len(cancelled),
		TotalTrips:     len(total),
	}
	if result.TotalTrips > 0 {
		result.Rate = round2(float64(result.CancelledTrips) / float64(result.TotalTrips) * 100)
	}

	return result, nil
}

// DayClassCounts counts the distinct calendar days per day class in
// the range, for normalizing per-day-type comparisons.
func (e *Engine) DayClassCounts(dateFrom, dateTo string) (map[model.DayClass]int, error) {
	events, err := e.store.StopEvents(storage.EventFilter{DateFrom: dateFrom, DateTo: dateTo})
	if err != nil {
		return nil, fmt.Errorf("loading stop events: %w", err)
	}

	classify := e.classifier()
	dates := map[string]struct{}{}
	for _, ev := range events {
		dates[ev.Date] = struct{}{}
	}

	counts := map[model.DayClass]int{}
	for date := range dates {
		counts[classify(date)]++
	}

	return counts, nil
}

func pct(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
