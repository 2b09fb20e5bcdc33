package gtfs

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// A parsed GTFS stop time ("HH:MM:SS").
//
// Hours past 23 belong to the same service day but fall on a later
// civil day: "25:10:00" is DayOffset 1 with TimeOfDay 01:10:00.
type DepartureTime struct {
	DayOffset int
	TimeOfDay time.Duration
}

func ParseDepartureTime(s string) (DepartureTime, error) {
	split := strings.Split(s, ":")
	if len(split) != 3 {
		return DepartureTime{}, fmt.Errorf("%w: found %d parts in '%s'", ErrMalformedTime, len(split), s)
	}

	hms := [3]int{}
	for i, str := range split {
		if len(str) == 0 || len(str) > 2 || strings.Trim(str, "0123456789") != "" {
			return DepartureTime{}, fmt.Errorf("%w: bad field %d in '%s'", ErrMalformedTime, i, s)
		}
		hms[i], _ = strconv.Atoi(str)
	}

	if hms[1] > 59 {
		return DepartureTime{}, fmt.Errorf("%w: invalid minute in '%s'", ErrMalformedTime, s)
	}
	if hms[2] > 59 {
		return DepartureTime{}, fmt.Errorf("%w: invalid second in '%s'", ErrMalformedTime, s)
	}

	return DepartureTime{
		DayOffset: hms[0] / 24,
		TimeOfDay: time.Duration(hms[0]%24)*time.Hour +
			time.Duration(hms[1])*time.Minute +
			time.Duration(hms[2])*time.Second,
	}, nil
}

// Duration since the start of the service day.
func (d DepartureTime) Offset() time.Duration {
	return time.Duration(d.DayOffset)*24*time.Hour + d.TimeOfDay
}

// Orders by day offset, then time of day.
func (d DepartureTime) Compare(o DepartureTime) int {
	switch {
	case d.DayOffset < o.DayOffset:
		return -1
	case d.DayOffset > o.DayOffset:
		return 1
	case d.TimeOfDay < o.TimeOfDay:
		return -1
	case d.TimeOfDay > o.TimeOfDay:
		return 1
	}
	return 0
}

// The instant this departure happens on the given service date, in
// the date's location.
//
// GTFS measures stop times from "noon minus 12h" of the service day,
// which is midnight except on DST transition days.
func (d DepartureTime) Instant(serviceDate time.Time) time.Time {
	noon := time.Date(
		serviceDate.Year(),
		serviceDate.Month(),
		serviceDate.Day(),
		12, 0, 0, 0,
		serviceDate.Location(),
	)
	return noon.Add(-12 * time.Hour).Add(d.Offset())
}

// Normalized "HH:MM:SS", with hours past 23 kept.
func (d DepartureTime) String() string {
	total := int(d.Offset().Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
