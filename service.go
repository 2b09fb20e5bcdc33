package gtfs

import (
	"sort"
	"time"

	"stopboard.dev/gtfs/model"
)

// Reports whether the service runs on the civil date of date, in
// date's location.
//
// A calendar exception for the date always wins. Otherwise the
// service runs if its calendar covers the date, inclusive, and
// includes its weekday. No calendar means no service.
func (s *Schedule) IsServiceRunning(serviceID string, date time.Time) bool {
	day := date.Format("20060102")

	if typ, found := s.exceptions[serviceID][day]; found {
		return typ == model.ExceptionTypeAdded
	}

	cal, found := s.calendars[serviceID]
	return found && cal.Active(day, date.Weekday())
}

func sortCalendarDates(dates []model.CalendarDate) {
	sort.Slice(dates, func(i, j int) bool {
		return dates[i].Date < dates[j].Date
	})
}
