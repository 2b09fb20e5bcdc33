package parse

import (
	"errors"
	"io"
	"strings"

	"stopboard.dev/gtfs/model"
	"stopboard.dev/gtfs/storage"
)

type StopTimeCSV struct {
	TripID        string `csv:"trip_id"`
	StopID        string `csv:"stop_id"`
	StopSequence  uint32 `csv:"stop_sequence"`
	ArrivalTime   string `csv:"arrival_time"`
	DepartureTime string `csv:"departure_time"`
	Headsign      string `csv:"stop_headsign"`
}

// Streams stop_times.txt into writer. Times are stored as text and
// parsed when queried, so one bad value only drops its own row. An
// empty arrival or departure takes the other's value.
func ParseStopTimes(writer storage.FeedWriter, data io.Reader) error {
	return eachRow(data, func(_ int, st *StopTimeCSV) error {
		switch {
		case st.TripID == "":
			return errors.New("empty trip_id")
		case st.StopID == "":
			return errors.New("empty stop_id")
		}

		arrival := strings.TrimSpace(st.ArrivalTime)
		departure := strings.TrimSpace(st.DepartureTime)
		if arrival == "" {
			arrival = departure
		} else if departure == "" {
			departure = arrival
		}

		return writer.WriteStopTime(model.StopTime{
			TripID:       st.TripID,
			StopID:       st.StopID,
			Headsign:     st.Headsign,
			StopSequence: st.StopSequence,
			Arrival:      arrival,
			Departure:    departure,
		})
	})
}
