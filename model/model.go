// Package model holds the schedule records shared by the parser, the
// storage backends and the query engine.
package model

import "time"

// A schedule table, named after the archive member it is loaded from.
type Table string

const (
	TableAgency        Table = "agency.txt"
	TableRoutes        Table = "routes.txt"
	TableCalendar      Table = "calendar.txt"
	TableCalendarDates Table = "calendar_dates.txt"
	TableTrips         Table = "trips.txt"
	TableStops         Table = "stops.txt"
	TableStopTimes     Table = "stop_times.txt"
)

// Load order. Agencies come first so the feed timezone is known
// before anything else is read.
var Tables = []Table{
	TableAgency,
	TableRoutes,
	TableCalendar,
	TableCalendarDates,
	TableTrips,
	TableStops,
	TableStopTimes,
}

type Agency struct {
	ID       string
	Name     string
	URL      string
	Timezone string
}

// Vehicle type of a route. Values of 100 and up are the extended
// route types used by European feeds.
type RouteType int

const (
	RouteTypeTram       RouteType = 0
	RouteTypeSubway     RouteType = 1
	RouteTypeRail       RouteType = 2
	RouteTypeBus        RouteType = 3
	RouteTypeFerry      RouteType = 4
	RouteTypeCable      RouteType = 5
	RouteTypeAerial     RouteType = 6
	RouteTypeFunicular  RouteType = 7
	RouteTypeTrolleybus RouteType = 11
	RouteTypeMonorail   RouteType = 12
)

var routeTypeNames = map[RouteType]string{
	RouteTypeTram:       "tram",
	RouteTypeSubway:     "subway",
	RouteTypeRail:       "rail",
	RouteTypeBus:        "bus",
	RouteTypeFerry:      "ferry",
	RouteTypeCable:      "cable",
	RouteTypeAerial:     "aerial",
	RouteTypeFunicular:  "funicular",
	RouteTypeTrolleybus: "trolleybus",
	RouteTypeMonorail:   "monorail",
}

func (t RouteType) String() string {
	if name, ok := routeTypeNames[t]; ok {
		return name
	}
	return "other"
}

type Route struct {
	ID        string
	AgencyID  string
	ShortName string
	LongName  string
	Desc      string
	Type      RouteType
	URL       string
	Color     string
	TextColor string
}

type LocationType int

const (
	LocationTypeStop LocationType = iota
	LocationTypeStation
	LocationTypeEntranceExit
	LocationTypeGenericNode
	LocationTypeBoardingArea
)

type Stop struct {
	ID            string
	Code          string
	Name          string
	Desc          string
	Lat           float64
	Lon           float64
	URL           string
	LocationType  LocationType
	ParentStation string
	PlatformCode  string
}

type Trip struct {
	ID          string
	RouteID     string
	ServiceID   string
	Headsign    string
	ShortName   string
	DirectionID int8
}

// A scheduled visit of a trip at a stop. Arrival and Departure hold
// the time text exactly as found in stop_times.txt ("HH:MM:SS", with
// HH possibly exceeding 23). They are parsed at query time, so a
// malformed value only affects this record.
type StopTime struct {
	TripID       string
	StopID       string
	Headsign     string
	StopSequence uint32
	Arrival      string
	Departure    string
}

// Set of weekdays, one bit per time.Weekday: bit 0 is Sunday, bit 1
// is Monday.
type WeekdaySet int8

func (s WeekdaySet) Has(day time.Weekday) bool {
	return s&(1<<day) != 0
}

func (s WeekdaySet) With(day time.Weekday) WeekdaySet {
	return s | 1<<day
}

// Weekly recurrence of a service between two YYYYMMDD dates.
type Calendar struct {
	ServiceID string
	StartDate string
	EndDate   string
	Weekday   WeekdaySet
}

// Reports whether the weekly pattern puts the service on day, a
// YYYYMMDD date falling on weekday. Both ends of the range count.
func (c *Calendar) Active(day string, weekday time.Weekday) bool {
	return c.StartDate <= day && day <= c.EndDate && c.Weekday.Has(weekday)
}

type ExceptionType int8

const (
	ExceptionTypeAdded   ExceptionType = 1
	ExceptionTypeRemoved ExceptionType = 2
)

// A one-off change to a service on a single date.
type CalendarDate struct {
	ServiceID     string
	Date          string
	ExceptionType ExceptionType
}
