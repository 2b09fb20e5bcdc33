package display

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"stopboard.dev/gtfs"
)

const DefaultWidth = 16

// Source of departures for the board. Satisfied by *gtfs.Engine.
type Departures interface {
	NextDepartures(stopID string, count int) ([]gtfs.DepartureRecord, error)
}

type BoardStop struct {
	StopID string
	Count  int
}

// Text for a character display showing upcoming departures from a
// few stops.
type Board struct {
	Width   int
	Stops   []BoardStop
	LineMap map[string]string

	departures Departures
	logger     *slog.Logger
}

func NewBoard(departures Departures, stops []BoardStop, lineMap map[string]string, logger *slog.Logger) *Board {
	if logger == nil {
		logger = slog.Default()
	}
	return &Board{
		Width:      DefaultWidth,
		Stops:      stops,
		LineMap:    lineMap,
		departures: departures,
		logger:     logger.With("component", "board"),
	}
}

// One centred line per departure, for all stops, sorted.
func (b *Board) Lines() ([]string, error) {
	lines := []string{}
	for _, stop := range b.Stops {
		departures, err := b.departures.NextDepartures(stop.StopID, stop.Count)
		if err != nil {
			return nil, fmt.Errorf("departures for %s: %w", stop.StopID, err)
		}
		if len(departures) == 0 {
			b.logger.Debug("no departures", "stop_id", stop.StopID)
		}

		for _, d := range departures {
			line := FormatDeparture(d, LineLabel(d.RouteShortName(), b.LineMap))
			lines = append(lines, Center(line, b.Width))
		}
	}

	sort.Strings(lines)
	return lines, nil
}

// The board as the display consumes it: all lines concatenated,
// ASCII only.
func (b *Board) Render() (string, error) {
	lines, err := b.Lines()
	if err != nil {
		return "", err
	}
	return Transliterate(strings.Join(lines, "")), nil
}
