package display

import (
	"strings"
	"unicode/utf8"

	"stopboard.dev/gtfs"
)

// Columns shared by line label and headsign, plus the time. The two
// separating spaces bring a full line to 16.
const contentColumns = 14

const (
	// Longest line label shown on the board
	MaxLineLength = 3

	missingTime = "----"
)

// "HH:MM", or "----" if the departure has no instant.
func FormatTime(d gtfs.DepartureRecord) string {
	if d.Time.IsZero() {
		return missingTime
	}
	return d.Time.Format("15:04")
}

// Formats a departure as "HH:MM LINE HEADSIGN". The headsign is
// shortened to fit, and a shortened headsign ends in ".".
func FormatDeparture(d gtfs.DepartureRecord, line string) string {
	hhmm := FormatTime(d)
	headsign := truncate(
		d.Headsign(),
		contentColumns-utf8.RuneCountInString(line)-utf8.RuneCountInString(hhmm),
	)
	return hhmm + " " + line + " " + headsign
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width < 1 {
		width = 1
	}
	return string(r[:width-1]) + "."
}

// Pads s with spaces on both sides to width columns, the extra space
// going right. Strings already at least width wide are unchanged.
func Center(s string, width int) string {
	pad := width - utf8.RuneCountInString(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}

// Label of a route on the board: mapped through lineMap and cut to
// MaxLineLength.
func LineLabel(shortName string, lineMap map[string]string) string {
	if mapped, found := lineMap[shortName]; found {
		shortName = mapped
	}
	r := []rune(shortName)
	if len(r) > MaxLineLength {
		r = r[:MaxLineLength]
	}
	return string(r)
}

// Plain text departure list, one departure per line, for the stop
// endpoint. Lines use the route's short name as is.
func StopText(departures []gtfs.DepartureRecord) string {
	lines := make([]string, 0, len(departures))
	for _, d := range departures {
		lines = append(lines, FormatDeparture(d, d.RouteShortName()))
	}
	return Transliterate(strings.Join(lines, "\n"))
}
