package parse

import (
	"fmt"
	"io"

	"stopboard.dev/gtfs/model"
	"stopboard.dev/gtfs/storage"
)

type TripCSV struct {
	ID          string `csv:"trip_id"`
	RouteID     string `csv:"route_id"`
	ServiceID   string `csv:"service_id"`
	Headsign    string `csv:"trip_headsign"`
	ShortName   string `csv:"trip_short_name"`
	DirectionID int8   `csv:"direction_id"`
}

// Route and service references are not checked here. A trip pointing
// at nothing never matches a query.
func ParseTrips(writer storage.FeedWriter, data io.Reader) error {
	ids := idSet{}
	return eachRow(data, func(_ int, t *TripCSV) error {
		if err := ids.claim("trip_id", t.ID); err != nil {
			return err
		}
		if t.DirectionID < 0 || t.DirectionID > 1 {
			return fmt.Errorf("trip '%s': invalid direction_id %d", t.ID, t.DirectionID)
		}
		return writer.WriteTrip(model.Trip(*t))
	})
}
