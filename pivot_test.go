package punctuality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbl-data/punctuality/filter"
	"github.com/vbl-data/punctuality/model"
)

func intp(v int) *int { return &v }

func TestTripPivotRequiresScope(t *testing.T) {
	e := newTestEngine(t, tripFixture(t, "t1", "2025-11-03", "08:00", 0))

	_, err := e.TripPivot(filter.Query{}, false)
	assert.ErrorIs(t, err, ErrScopeRequired)

	_, err = e.PatternPivot(filter.Query{})
	assert.ErrorIs(t, err, ErrScopeRequired)

	_, err = e.HeatmapBuckets(filter.Query{}, 60)
	assert.ErrorIs(t, err, ErrScopeRequired)
}

func TestTripPivot(t *testing.T) {
	events := tripFixture(t, "t2", "2025-11-03", "09:00", 200)
	events = append(events, tripFixture(t, "t1", "2025-11-03", "08:00", 0)...)

	e := newTestEngine(t, events)
	grid, err := e.TripPivot(filter.Query{Line: "1"}, false)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bahnhof", "Kantonalbank", "Obernau Dorf"}, grid.Stops)

	require.Len(t, grid.Columns, 2)
	assert.Equal(t, "t1_03.11.", grid.Columns[0].ID)
	assert.Equal(t, "08:00", grid.Columns[0].Label)
	assert.Equal(t, "block-7", grid.Columns[0].Vehicle)
	assert.Equal(t, "2025-11-03", grid.Columns[0].Date)
	assert.Equal(t, "t2_03.11.", grid.Columns[1].ID)

	// Column labels carry the start time, x labels the short date.
	assert.Equal(t, []string{"03.11.", "03.11."}, grid.XLabels)

	// Bahnhof only has a departure; on the arrival side the cell
	// stays empty.
	require.Len(t, grid.Grid, 2)
	assert.Equal(t, []*int{nil, intp(30), intp(0)}, grid.Grid[0])
	assert.Equal(t, []*int{nil, intp(30), intp(200)}, grid.Grid[1])
}

func TestTripPivotRegularOnly(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0)
	extra := tripFixture(t, "extra", "2025-11-03", "09:00", 0)
	extra[0].Additional = "true"
	events = append(events, extra...)

	e := newTestEngine(t, events)

	grid, err := e.TripPivot(filter.Query{Line: "1"}, false)
	require.NoError(t, err)
	assert.Len(t, grid.Columns, 2)

	grid, err = e.TripPivot(filter.Query{Line: "1"}, true)
	require.NoError(t, err)
	require.Len(t, grid.Columns, 1)
	assert.Equal(t, "t1_03.11.", grid.Columns[0].ID)
}

func TestTripPivotTimeWindowOnStart(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0)
	events = append(events, tripFixture(t, "t2", "2025-11-03", "09:00", 0)...)

	e := newTestEngine(t, events)
	grid, err := e.TripPivot(filter.Query{Line: "1", TimeFrom: "08:30", TimeTo: "09:30"}, false)
	require.NoError(t, err)

	// Only t2 departs inside the window, and it keeps its full stop
	// sequence including stops reached after 09:10.
	require.Len(t, grid.Columns, 1)
	assert.Equal(t, "t2_03.11.", grid.Columns[0].ID)
	assert.Equal(t, []*int{nil, intp(30), intp(0)}, grid.Grid[0])
}

func TestPatternPivot(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 120)
	events = append(events, tripFixture(t, "t9", "2025-11-04", "08:00", 240)...)
	events = append(events, tripFixture(t, "t5", "2025-11-03", "09:00", 0)...)

	e := newTestEngine(t, events)
	grid, err := e.PatternPivot(filter.Query{Line: "1"})
	require.NoError(t, err)

	// The 08:00 departures on both dates collapse into one pattern
	// even though their trip ids differ.
	require.Len(t, grid.Columns, 2)
	assert.Equal(t, "08:00 (n=2)", grid.Columns[0].Label)
	assert.Equal(t, 2, grid.Columns[0].TripCount)
	assert.Equal(t, "09:00 (n=1)", grid.Columns[1].Label)

	assert.Equal(t, []*int{nil, intp(30), intp(180)}, grid.Grid[0])
	assert.Equal(t, []*int{nil, intp(30), intp(0)}, grid.Grid[1])
}

func TestPatternPivotDayClassFilter(t *testing.T) {
	events := tripFixture(t, "sat", "2025-11-01", "08:00", 120)
	events = append(events, tripFixture(t, "mon", "2025-11-03", "08:00", 240)...)

	e := newTestEngine(t, events)
	grid, err := e.PatternPivot(filter.Query{Line: "1", DayClass: model.DayClassSchoolWeekday})
	require.NoError(t, err)

	// The Saturday instance must not inflate the pattern's n.
	require.Len(t, grid.Columns, 1)
	assert.Equal(t, "08:00 (n=1)", grid.Columns[0].Label)
	assert.Equal(t, []*int{nil, intp(30), intp(240)}, grid.Grid[0])
}

func TestPatternPivotTimeWindowPerEvent(t *testing.T) {
	// Departs at 07:50, before the window, but reaches the terminus
	// at 08:00 inside it. The pattern keeps its in-window cells; only
	// the out-of-window stops go empty.
	events := tripFixture(t, "t1", "2025-11-03", "07:50", 60)

	e := newTestEngine(t, events)
	grid, err := e.PatternPivot(filter.Query{Line: "1", TimeFrom: "07:56", TimeTo: "09:00"})
	require.NoError(t, err)

	require.Len(t, grid.Columns, 1)
	assert.Equal(t, "07:50 (n=1)", grid.Columns[0].Label)

	// Kantonalbank's planned arrival at 07:54 falls outside the
	// window.
	assert.Equal(t, []*int{nil, nil, intp(60)}, grid.Grid[0])
}

func TestHeatmapBuckets(t *testing.T) {
	events := tripFixture(t, "t1", "2025-11-03", "08:00", 0)
	events = append(events, tripFixture(t, "t2", "2025-11-03", "08:20", 60)...)
	events = append(events, tripFixture(t, "t3", "2025-11-03", "08:40", 120)...)

	e := newTestEngine(t, events)
	hm, err := e.HeatmapBuckets(filter.Query{Line: "1"}, 60)
	require.NoError(t, err)

	assert.Equal(t, []string{"Bahnhof", "Kantonalbank", "Obernau Dorf"}, hm.Stops)

	// Bahnhof has no realized arrivals; the two remaining stops each
	// collect one 08:00 cell, in stop order.
	require.Len(t, hm.Data, 2)

	mid := hm.Data[0]
	assert.Equal(t, "Kantonalbank", mid.StopName)
	assert.Equal(t, "08:00", mid.TimeSlot)
	assert.Equal(t, 3, mid.Total)
	assert.Equal(t, 30.0, mid.AvgDelay)
	assert.Equal(t, 30.0, mid.P3)

	last := hm.Data[1]
	assert.Equal(t, "Obernau Dorf", last.StopName)
	assert.Equal(t, 3, last.OnTime)
	assert.Equal(t, 60.0, last.AvgDelay)
	assert.Equal(t, 3.0, last.P5)
	assert.Equal(t, 19.2, last.P4)
	assert.Equal(t, 60.0, last.P3)
	assert.Equal(t, 100.8, last.P2)
	assert.Equal(t, 117.0, last.P1)
}

func TestHeatmapView(t *testing.T) {
	e := newTestEngine(t, tripFixture(t, "t1", "2025-11-03", "08:00", 0))
	q := filter.Query{Line: "1"}

	out, err := e.HeatmapView(q, "trip", false)
	require.NoError(t, err)
	assert.IsType(t, &PivotGrid{}, out)

	out, err = e.HeatmapView(q, "pattern", false)
	require.NoError(t, err)
	assert.IsType(t, &PivotGrid{}, out)

	out, err = e.HeatmapView(q, "30", false)
	require.NoError(t, err)
	assert.IsType(t, &Heatmap{}, out)

	out, err = e.HeatmapView(q, "bogus", false)
	require.NoError(t, err)
	assert.IsType(t, &Heatmap{}, out)
}

func TestQuantilesCont(t *testing.T) {
	xs := []float64{40, 10, 30, 20}
	qs := quantilesCont(xs, 0, 0.5, 1)
	assert.Equal(t, []float64{10, 25, 40}, qs)

	assert.Equal(t, []float64{0, 0}, quantilesCont(nil, 0.5, 0.975))

	single := quantilesCont([]float64{42}, 0.025, 0.5, 0.975)
	assert.Equal(t, []float64{42, 42, 42}, single)
}
