package gtfs

import (
	"sort"
	"time"

	"stopboard.dev/gtfs/model"
)

// A single upcoming departure. Route and Stop are nil when the
// schedule doesn't know them.
type DepartureRecord struct {
	Stop     *model.Stop
	StopTime model.StopTime
	Trip     model.Trip
	Route    *model.Route

	// Service day the departure belongs to, "YYYYMMDD"
	ServiceDate string

	// Wall clock departure instant
	Time time.Time
}

func (d DepartureRecord) RouteShortName() string {
	if d.Route == nil {
		return ""
	}
	return d.Route.ShortName
}

// The trip's headsign, or the stop time's if the trip has none.
func (d DepartureRecord) Headsign() string {
	if d.Trip.Headsign != "" {
		return d.Trip.Headsign
	}
	return d.StopTime.Headsign
}

// Consecutive records with equal keys are listed once.
type departureKey struct {
	routeShortName string
	headsign       string
	departure      string
}

func (d DepartureRecord) key() departureKey {
	return departureKey{
		routeShortName: d.RouteShortName(),
		headsign:       d.Trip.Headsign,
		departure:      d.StopTime.Departure,
	}
}

// Returns up to count departures from the stop strictly after now,
// ordered by departure instant. Ties are broken by trip ID, then stop
// sequence.
//
// Today's service day is the civil date of now, in now's location.
// Yesterday's service day is also considered, for its departures
// past 24:00:00 that haven't happened yet.
//
// Stop times with malformed departure times, unknown trips or no
// service on the relevant day are skipped.
func (s *Schedule) NextDepartures(stopID string, now time.Time, count int) []DepartureRecord {
	if count < 1 {
		return []DepartureRecord{}
	}

	today := civilDate(now)
	serviceDays := []time.Time{today.AddDate(0, 0, -1), today}

	var stop *model.Stop
	if st, found := s.stops[stopID]; found {
		stop = &st
	}

	candidates := []DepartureRecord{}
	for _, st := range s.stopTimesByStop[stopID] {
		dt, err := ParseDepartureTime(st.Departure)
		if err != nil {
			continue
		}

		trip, found := s.trips[st.TripID]
		if !found {
			continue
		}

		var route *model.Route
		if r, found := s.routes[trip.RouteID]; found {
			route = &r
		}

		for i, day := range serviceDays {
			// Yesterday only matters past midnight
			if i == 0 && dt.DayOffset == 0 {
				continue
			}

			instant := dt.Instant(day)
			if !instant.After(now) {
				continue
			}

			if !s.IsServiceRunning(trip.ServiceID, day) {
				continue
			}

			candidates = append(candidates, DepartureRecord{
				Stop:        stop,
				StopTime:    st,
				Trip:        trip,
				Route:       route,
				ServiceDate: day.Format("20060102"),
				Time:        instant,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.Trip.ID != b.Trip.ID {
			return a.Trip.ID < b.Trip.ID
		}
		return a.StopTime.StopSequence < b.StopTime.StopSequence
	})

	result := []DepartureRecord{}
	for _, c := range candidates {
		if len(result) == count {
			break
		}
		if len(result) > 0 && result[len(result)-1].key() == c.key() {
			continue
		}
		result = append(result, c)
	}

	return result
}
