package storage

import (
	"time"

	"stopboard.dev/gtfs/model"
)

// Both SQL backends store a calendar as seven 0/1 columns, monday
// through sunday.
var calendarColumns = [7]time.Weekday{
	time.Monday,
	time.Tuesday,
	time.Wednesday,
	time.Thursday,
	time.Friday,
	time.Saturday,
	time.Sunday,
}

func weekdayColumns(set model.WeekdaySet) [7]int {
	var cols [7]int
	for i, day := range calendarColumns {
		if set.Has(day) {
			cols[i] = 1
		}
	}
	return cols
}

func weekdayMask(cols [7]int) model.WeekdaySet {
	var set model.WeekdaySet
	for i, day := range calendarColumns {
		if cols[i] == 1 {
			set = set.With(day)
		}
	}
	return set
}
