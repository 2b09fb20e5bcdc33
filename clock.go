package gtfs

import "time"

// Source of the current instant. The location of the returned time
// is the system's fixed locale: civil dates and weekdays are taken
// from it.
type Clock interface {
	Now() time.Time
}

type SystemClock struct {
	Location *time.Location
}

func NewSystemClock(loc *time.Location) SystemClock {
	if loc == nil {
		loc = time.Local
	}
	return SystemClock{Location: loc}
}

func (c SystemClock) Now() time.Time {
	return time.Now().In(c.Location)
}

// Clock frozen at a given instant.
type FixedClock time.Time

func (c FixedClock) Now() time.Time {
	return time.Time(c)
}

// Midnight at the start of t's civil date, in t's location.
func civilDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
