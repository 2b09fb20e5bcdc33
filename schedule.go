package gtfs

import (
	"fmt"
	"sort"
	"strings"

	"stopboard.dev/gtfs/model"
	"stopboard.dev/gtfs/storage"
)

// Immutable, indexed snapshot of a static schedule. Safe for
// concurrent use; accessors return copies.
type Schedule struct {
	agencies        []model.Agency
	stops           map[string]model.Stop
	routes          map[string]model.Route
	trips           map[string]model.Trip
	calendars       map[string]model.Calendar
	exceptions      map[string]map[string]model.ExceptionType
	stopTimesByStop map[string][]model.StopTime
}

// Builds a Schedule from all rows in reader. Fails with
// ErrDataIncomplete if a required table is absent. References are
// not checked.
func NewSchedule(reader storage.FeedReader) (*Schedule, error) {
	tables, err := reader.Tables()
	if err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	if err := checkTables(tables); err != nil {
		return nil, err
	}

	s := &Schedule{
		stops:           map[string]model.Stop{},
		routes:          map[string]model.Route{},
		trips:           map[string]model.Trip{},
		calendars:       map[string]model.Calendar{},
		exceptions:      map[string]map[string]model.ExceptionType{},
		stopTimesByStop: map[string][]model.StopTime{},
	}

	s.agencies, err = reader.Agencies()
	if err != nil {
		return nil, fmt.Errorf("reading agencies: %w", err)
	}

	stops, err := reader.Stops()
	if err != nil {
		return nil, fmt.Errorf("reading stops: %w", err)
	}
	for _, stop := range stops {
		s.stops[stop.ID] = stop
	}

	routes, err := reader.Routes()
	if err != nil {
		return nil, fmt.Errorf("reading routes: %w", err)
	}
	for _, route := range routes {
		s.routes[route.ID] = route
	}

	trips, err := reader.Trips()
	if err != nil {
		return nil, fmt.Errorf("reading trips: %w", err)
	}
	for _, trip := range trips {
		s.trips[trip.ID] = trip
	}

	calendars, err := reader.Calendars()
	if err != nil {
		return nil, fmt.Errorf("reading calendars: %w", err)
	}
	for _, cal := range calendars {
		s.calendars[cal.ServiceID] = cal
	}

	calendarDates, err := reader.CalendarDates()
	if err != nil {
		return nil, fmt.Errorf("reading calendar dates: %w", err)
	}
	for _, cd := range calendarDates {
		if s.exceptions[cd.ServiceID] == nil {
			s.exceptions[cd.ServiceID] = map[string]model.ExceptionType{}
		}
		s.exceptions[cd.ServiceID][cd.Date] = cd.ExceptionType
	}

	stopTimes, err := reader.StopTimes()
	if err != nil {
		return nil, fmt.Errorf("reading stop times: %w", err)
	}
	for _, st := range stopTimes {
		s.stopTimesByStop[st.StopID] = append(s.stopTimesByStop[st.StopID], st)
	}

	return s, nil
}

func checkTables(tables []model.Table) error {
	present := map[model.Table]bool{}
	for _, t := range tables {
		present[t] = true
	}

	missing := []string{}
	for _, t := range []model.Table{
		model.TableAgency,
		model.TableRoutes,
		model.TableStops,
		model.TableTrips,
		model.TableStopTimes,
	} {
		if !present[t] {
			missing = append(missing, string(t))
		}
	}
	if !present[model.TableCalendar] && !present[model.TableCalendarDates] {
		missing = append(missing, string(model.TableCalendar)+" or "+string(model.TableCalendarDates))
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrDataIncomplete, strings.Join(missing, ", "))
	}
	return nil
}

func (s *Schedule) Agencies() []model.Agency {
	return append([]model.Agency{}, s.agencies...)
}

// All stop times at the stop, in no particular order.
func (s *Schedule) StopTimesByStop(stopID string) []model.StopTime {
	return append([]model.StopTime{}, s.stopTimesByStop[stopID]...)
}

// Trips with the given IDs. Unknown IDs are left out.
func (s *Schedule) TripsByID(ids []string) map[string]model.Trip {
	trips := map[string]model.Trip{}
	for _, id := range ids {
		if trip, ok := s.trips[id]; ok {
			trips[id] = trip
		}
	}
	return trips
}

func (s *Schedule) CalendarByService(serviceID string) (model.Calendar, bool) {
	cal, ok := s.calendars[serviceID]
	return cal, ok
}

// Calendar exceptions for the service, ordered by date.
func (s *Schedule) ExceptionsByService(serviceID string) []model.CalendarDate {
	byDate := s.exceptions[serviceID]
	dates := make([]model.CalendarDate, 0, len(byDate))
	for date, typ := range byDate {
		dates = append(dates, model.CalendarDate{
			ServiceID:     serviceID,
			Date:          date,
			ExceptionType: typ,
		})
	}
	sortCalendarDates(dates)
	return dates
}

func (s *Schedule) RouteByID(routeID string) (model.Route, bool) {
	route, ok := s.routes[routeID]
	return route, ok
}

func (s *Schedule) StopByID(stopID string) (model.Stop, bool) {
	stop, ok := s.stops[stopID]
	return stop, ok
}

// All stops, ordered by ID.
func (s *Schedule) Stops() []model.Stop {
	stops := make([]model.Stop, 0, len(s.stops))
	for _, stop := range s.stops {
		stops = append(stops, stop)
	}
	sort.Slice(stops, func(i, j int) bool {
		return stops[i].ID < stops[j].ID
	})
	return stops
}
