package gtfs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDepartureTime(t *testing.T) {
	for _, tc := range []struct {
		in        string
		dayOffset int
		timeOfDay time.Duration
		str       string
		err       bool
	}{
		{"08:05:00", 0, 8*time.Hour + 5*time.Minute, "08:05:00", false},
		{"00:00:00", 0, 0, "00:00:00", false},
		{"23:59:59", 0, 23*time.Hour + 59*time.Minute + 59*time.Second, "23:59:59", false},
		{"7:30:00", 0, 7*time.Hour + 30*time.Minute, "07:30:00", false},
		{"24:00:00", 1, 0, "24:00:00", false},
		{"25:10:00", 1, time.Hour + 10*time.Minute, "25:10:00", false},
		{"49:00:01", 2, time.Hour + time.Second, "49:00:01", false},
		{"", 0, 0, "", true},
		{"08:05", 0, 0, "", true},
		{"08:05:00:00", 0, 0, "", true},
		{"08:60:00", 0, 0, "", true},
		{"08:00:60", 0, 0, "", true},
		{"-1:00:00", 0, 0, "", true},
		{"+8:00:00", 0, 0, "", true},
		{"ab:cd:ef", 0, 0, "", true},
		{"123:00:00", 0, 0, "", true},
		{" 8:00:00", 0, 0, "", true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			dt, err := ParseDepartureTime(tc.in)
			if tc.err {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrMalformedTime))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.dayOffset, dt.DayOffset)
			assert.Equal(t, tc.timeOfDay, dt.TimeOfDay)
			assert.Equal(t, tc.str, dt.String())
		})
	}
}

func TestDepartureTimeCompare(t *testing.T) {
	parse := func(s string) DepartureTime {
		dt, err := ParseDepartureTime(s)
		require.NoError(t, err)
		return dt
	}

	assert.Equal(t, 1, parse("25:10:00").Compare(parse("23:50:00")))
	assert.Equal(t, -1, parse("23:50:00").Compare(parse("25:10:00")))
	assert.Equal(t, 0, parse("08:05:00").Compare(parse("8:05:00")))
	assert.Equal(t, -1, parse("08:05:00").Compare(parse("08:05:01")))
	assert.Equal(t, 1, parse("24:00:00").Compare(parse("00:00:00")))
}

func TestDepartureTimeInstant(t *testing.T) {
	prague, err := time.LoadLocation("Europe/Prague")
	require.NoError(t, err)

	parse := func(s string) DepartureTime {
		dt, err := ParseDepartureTime(s)
		require.NoError(t, err)
		return dt
	}

	monday := time.Date(2024, 1, 15, 0, 0, 0, 0, prague)

	assert.Equal(t,
		time.Date(2024, 1, 15, 8, 5, 0, 0, prague),
		parse("08:05:00").Instant(monday))

	// Past midnight lands on the next civil day
	assert.Equal(t,
		time.Date(2024, 1, 16, 1, 10, 0, 0, prague),
		parse("25:10:00").Instant(monday))
	assert.True(t, parse("25:10:00").Instant(monday).After(parse("23:50:00").Instant(monday)))

	// Only the date of the reference matters
	assert.Equal(t,
		parse("08:05:00").Instant(monday),
		parse("08:05:00").Instant(monday.Add(17*time.Hour)))

	// On DST start (2024-03-31, 02:00 -> 03:00) stop times count
	// from noon minus 12h, which is 23:00 the evening before.
	dstStart := time.Date(2024, 3, 31, 0, 0, 0, 0, prague)
	assert.Equal(t,
		time.Date(2024, 3, 31, 8, 0, 0, 0, prague),
		parse("08:00:00").Instant(dstStart))
	assert.Equal(t,
		time.Date(2024, 3, 31, 0, 30, 0, 0, prague),
		parse("01:30:00").Instant(dstStart))
}
