package punctuality

import (
	"sort"
	"time"

	"github.com/vbl-data/punctuality/model"
)

// Reconstruct groups raw stop events into one TripInstance per
// (trip_id, service_date) and derives the trip attributes by extremal
// aggregation over planned times: the start stop carries the earliest
// planned departure, the end stop the latest planned arrival.
//
// Events are ordered by COALESCE(departure_planned, arrival_planned)
// ascending; the position in Events is the stop sequence ordinal.
// Ties on the extremal times break deterministically on that ordinal
// (lowest wins the start, highest wins the end). Events lacking both
// planned times stay in the trip but sort last and never contribute
// to the extremals.
func Reconstruct(events []*model.StopEvent) []*model.TripInstance {
	type groupKey struct {
		tripID string
		date   string
	}

	groups := map[groupKey][]*model.StopEvent{}
	for _, e := range events {
		key := groupKey{tripID: e.TripID, date: e.Date}
		groups[key] = append(groups[key], e)
	}

	trips := make([]*model.TripInstance, 0, len(groups))
	for key, group := range groups {
		sort.SliceStable(group, func(i, j int) bool {
			a, aOK := sequenceTime(group[i])
			b, bOK := sequenceTime(group[j])
			if aOK != bOK {
				return aOK
			}
			if aOK && !a.Equal(b) {
				return a.Before(b)
			}
			if !group[i].ArrivalPlanned.Equal(group[j].ArrivalPlanned) {
				return group[i].ArrivalPlanned.Before(group[j].ArrivalPlanned)
			}
			return group[i].StopName < group[j].StopName
		})

		trip := &model.TripInstance{
			TripID:   key.tripID,
			Date:     key.date,
			LineName: group[0].LineName,
			Events:   group,
		}

		for _, e := range group {
			if !e.DeparturePlanned.IsZero() {
				if trip.StartTime.IsZero() || e.DeparturePlanned.Before(trip.StartTime) {
					trip.StartTime = e.DeparturePlanned
					trip.StartName = e.StopName
					trip.VehicleID = e.BlockID
				}
			}
			if !e.ArrivalPlanned.IsZero() {
				if trip.EndTime.IsZero() || !e.ArrivalPlanned.Before(trip.EndTime) {
					trip.EndTime = e.ArrivalPlanned
					trip.EndName = e.StopName
				}
			}
		}

		trips = append(trips, trip)
	}

	sort.Slice(trips, func(i, j int) bool {
		if trips[i].Date != trips[j].Date {
			return trips[i].Date < trips[j].Date
		}
		if !trips[i].StartTime.Equal(trips[j].StartTime) {
			return trips[i].StartTime.Before(trips[j].StartTime)
		}
		return trips[i].TripID < trips[j].TripID
	})

	return trips
}

// sequenceTime is the ordering key for the stop sequence: planned
// departure, falling back to planned arrival.
func sequenceTime(e *model.StopEvent) (time.Time, bool) {
	if !e.DeparturePlanned.IsZero() {
		return e.DeparturePlanned, true
	}
	if !e.ArrivalPlanned.IsZero() {
		return e.ArrivalPlanned, true
	}
	return time.Time{}, false
}
