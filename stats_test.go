package punctuality

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbl-data/punctuality/config"
	"github.com/vbl-data/punctuality/filter"
	"github.com/vbl-data/punctuality/model"
)

func TestPunctualityStats(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0)
	events = append(events, tripFixture(t, "t2", "2025-11-03", "09:00", 200)...)
	events = append(events, tripFixture(t, "t3", "2025-11-03", "10:00", 400)...)
	events = append(events, tripFixture(t, "t4", "2025-11-03", "11:00", -120)...)

	e := newTestEngine(t, events)
	counts, err := e.PunctualityStats(filter.Query{})
	require.NoError(t, err)

	assert.Equal(t, BucketCounts{
		Early:      1,
		OnTime:     1,
		LateSlight: 1,
		LateSevere: 1,
		Total:      4,
	}, counts)
}

func TestPunctualityStatsTripGrainUsesFinalStop(t *testing.T) {
	// 15 minutes late mid-trip but on time at the terminus: at trip
	// grain only the final arrival counts.
	first := stopEvent("t1", "2025-11-03", "1", "Bahnhof")
	withDeparture(t, first, "08:00", "08:00:30")
	mid := stopEvent("t1", "2025-11-03", "1", "Kantonalbank")
	withArrival(t, mid, "08:05", "08:20")
	last := stopEvent("t1", "2025-11-03", "1", "Obernau Dorf")
	withArrival(t, last, "08:10", "08:10:30")

	e := newTestEngine(t, []*model.StopEvent{first, mid, last})
	counts, err := e.PunctualityStats(filter.Query{})
	require.NoError(t, err)

	assert.Equal(t, BucketCounts{OnTime: 1, Total: 1}, counts)

	// A stop filter switches to event grain and sees the mid-trip
	// delay.
	counts, err = e.PunctualityStats(filter.Query{Stops: []string{"Kantonalbank"}})
	require.NoError(t, err)
	assert.Equal(t, BucketCounts{LateSevere: 1, Total: 1}, counts)
}

func TestPunctualityStatsDepartureMetric(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0)
	e := newTestEngine(t, events)

	// Departure side measures at the first stop; the fixture departs
	// 30s late.
	counts, err := e.PunctualityStats(filter.Query{Metric: model.MetricDeparture})
	require.NoError(t, err)
	assert.Equal(t, BucketCounts{OnTime: 1, Total: 1}, counts)
}

func TestPunctualityStatsOutlierPolicy(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0)
	events = append(events, tripFixture(t, "t2", "2025-11-03", "09:00", 4000)...)

	e := newTestEngine(t, events)

	counts, err := e.PunctualityStats(filter.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Total)

	require.NoError(t, e.Config().Update(map[string]string{
		config.KeyIgnoreOutliers: "true",
	}))

	counts, err = e.PunctualityStats(filter.Query{})
	require.NoError(t, err)
	assert.Equal(t, BucketCounts{OnTime: 1, Total: 1}, counts)
}

func TestPunctualityStatsTimeWindow(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0)
	events = append(events, tripFixture(t, "t2", "2025-11-03", "09:00", 0)...)

	e := newTestEngine(t, events)
	counts, err := e.PunctualityStats(filter.Query{TimeFrom: "08:30", TimeTo: "10:00"})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total)
}

func TestStatsByTimeSlot(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0)
	events = append(events, tripFixture(t, "t2", "2025-11-03", "08:30", 200)...)
	events = append(events, tripFixture(t, "night", "2025-11-03", "03:20", 0)...)

	e := newTestEngine(t, events)
	slots, err := e.StatsByTimeSlot(filter.Query{}, 60)
	require.NoError(t, err)

	// The 03:00 slot belongs to the end of the operating day.
	require.Len(t, slots, 2)
	assert.Equal(t, "08:00", slots[0].TimeSlot)
	assert.Equal(t, 2, slots[0].Total)
	assert.Equal(t, 1, slots[0].LateSlight)
	assert.Equal(t, "03:00", slots[1].TimeSlot)
	assert.Equal(t, 1, slots[1].Total)
}

func TestStatsByTimeSlotWidth(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0)
	events = append(events, tripFixture(t, "t2", "2025-11-03", "08:30", 0)...)

	e := newTestEngine(t, events)
	slots, err := e.StatsByTimeSlot(filter.Query{}, 30)
	require.NoError(t, err)

	// Terminal arrivals at 08:10 and 08:40.
	require.Len(t, slots, 2)
	assert.Equal(t, "08:00", slots[0].TimeSlot)
	assert.Equal(t, "08:30", slots[1].TimeSlot)
}

func TestStatsByWeekday(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0) // Monday
	events = append(events, tripFixture(t, "t2", "2025-11-01", "08:00", 200)...) // Saturday

	e := newTestEngine(t, events)
	days, err := e.StatsByWeekday(filter.Query{})
	require.NoError(t, err)

	require.Len(t, days, 2)
	assert.Equal(t, 1, days[0].Weekday)
	assert.Equal(t, "Mo", days[0].DayName)
	assert.Equal(t, 1, days[0].OnTime)
	assert.Equal(t, 6, days[1].Weekday)
	assert.Equal(t, "Sa", days[1].DayName)
	assert.Equal(t, 1, days[1].LateSlight)
}

func TestDwellTimeByHour(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0)

	// Departure before arrival: implausible, excluded.
	bad := stopEvent("t2", "2025-11-03", "1", "Kantonalbank")
	withArrival(t, bad, "09:05", "09:05")
	withDeparture(t, bad, "09:06", "09:04")

	// 25 minute standstill: a layover, excluded.
	layover := stopEvent("t3", "2025-11-03", "1", "Kantonalbank")
	withArrival(t, layover, "10:05", "10:05")
	withDeparture(t, layover, "10:30", "10:30")

	e := newTestEngine(t, append(events, bad, layover))
	hours, err := e.DwellTimeByHour(filter.Query{})
	require.NoError(t, err)

	// Only the fixture's middle stop has both sides realized: arrival
	// 08:04:30, departure 08:05:30.
	require.Len(t, hours, 1)
	assert.Equal(t, 8, hours[0].Hour)
	assert.Equal(t, 60.0, hours[0].AvgSeconds)
}

func TestProblematicStops(t *testing.T) {
	var events []*model.StopEvent
	for i := 0; i < 21; i++ {
		trip := fmt.Sprintf("t%d", i)
		depart := fmt.Sprintf("%02d:00", 5+i%18)
		events = append(events, tripFixture(t, trip, "2025-11-03", depart, 400)...)
	}

	e := newTestEngine(t, events)
	out, err := e.ProblematicStops(filter.Query{})
	require.NoError(t, err)

	// Bahnhof only has departures and never qualifies on the arrival
	// side. The terminus leads on severe count.
	require.Len(t, out, 2)
	assert.Equal(t, "Obernau Dorf", out[0].StopName)
	assert.Equal(t, 21, out[0].LateSevere)
	assert.Equal(t, 21, out[0].Total)
	assert.Equal(t, 100.0, out[0].PctLateSevere)
	assert.Equal(t, 400.0, out[0].AvgDelaySeconds)

	assert.Equal(t, "Kantonalbank", out[1].StopName)
	assert.Equal(t, 30.0, out[1].AvgDelaySeconds)
	assert.Equal(t, 100.0, out[1].PctOnTime)
}

func TestProblematicStopsNoiseFloor(t *testing.T) {
	var events []*model.StopEvent
	for i := 0; i < 20; i++ {
		events = append(events, tripFixture(t, fmt.Sprintf("t%d", i), "2025-11-03", "08:00", 400)...)
	}

	e := newTestEngine(t, events)
	out, err := e.ProblematicStops(filter.Query{})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestWorstTrips(t *testing.T) {
	events := tripFixture(t, "mild", "2025-11-03", "08:00", 100)
	events = append(events, tripFixture(t, "worst", "2025-11-03", "09:00", 400)...)
	events = append(events, tripFixture(t, "middle", "2025-11-03", "10:00", 250)...)

	e := newTestEngine(t, events)
	out, err := e.WorstTrips(filter.Query{})
	require.NoError(t, err)

	require.Len(t, out, 3)
	assert.Equal(t, "worst", out[0].TripID)
	assert.Equal(t, 6.7, out[0].DelayMinutes)
	assert.Equal(t, "2025-11-03", out[0].Date)
	assert.Equal(t, "09:10:00", out[0].Time)
	assert.Equal(t, "Bahnhof » Obernau Dorf", out[0].Route)
	assert.Equal(t, "1", out[0].Line)
	assert.Equal(t, "middle", out[1].TripID)
	assert.Equal(t, "mild", out[2].TripID)
}

func TestCancellationStats(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0)
	cancelled := tripFixture(t, "t2", "2025-11-03", "09:00", 0)
	cancelled[1].Cancelled = "True"
	events = append(events, cancelled...)

	e := newTestEngine(t, events)
	out, err := e.CancellationStats(filter.Query{})
	require.NoError(t, err)

	assert.Equal(t, 1, out.CancelledTrips)
	assert.Equal(t, 2, out.TotalTrips)
	assert.Equal(t, 50.0, out.Rate)
}

func TestCancellationStatsEmpty(t *testing.T) {
	e := newTestEngine(t, nil)
	out, err := e.CancellationStats(filter.Query{})
	require.NoError(t, err)

	assert.Equal(t, 0, out.TotalTrips)
	assert.Equal(t, 0.0, out.Rate)
}

func TestDayClassCounts(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-01", "08:00", 0) // Saturday
	events = append(events, tripFixture(t, "t2", "2025-11-02", "08:00", 0)...) // Sunday
	events = append(events, tripFixture(t, "t3", "2025-11-03", "08:00", 0)...) // Monday
	events = append(events, tripFixture(t, "t4", "2025-11-03", "09:00", 0)...)

	e := newTestEngine(t, events)
	counts, err := e.DayClassCounts("", "")
	require.NoError(t, err)

	assert.Equal(t, map[model.DayClass]int{
		model.DayClassSaturday:      1,
		model.DayClassHoliday:       1,
		model.DayClassSchoolWeekday: 1,
	}, counts)
}
