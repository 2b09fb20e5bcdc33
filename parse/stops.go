package parse

import (
	"fmt"
	"io"

	"stopboard.dev/gtfs/model"
	"stopboard.dev/gtfs/storage"
)

type StopCSV struct {
	ID            string  `csv:"stop_id"`
	Code          string  `csv:"stop_code"`
	Name          string  `csv:"stop_name"`
	Desc          string  `csv:"stop_desc"`
	Lat           float64 `csv:"stop_lat"`
	Lon           float64 `csv:"stop_lon"`
	URL           string  `csv:"stop_url"`
	LocationType  int8    `csv:"location_type"`
	ParentStation string  `csv:"parent_station"`
	PlatformCode  string  `csv:"platform_code"`
}

func ParseStops(writer storage.FeedWriter, data io.Reader) error {
	ids := idSet{}
	return eachRow(data, func(_ int, s *StopCSV) error {
		if err := ids.claim("stop_id", s.ID); err != nil {
			return err
		}

		lt := model.LocationType(s.LocationType)
		if lt < model.LocationTypeStop || lt > model.LocationTypeBoardingArea {
			return fmt.Errorf("stop '%s': invalid location_type %d", s.ID, s.LocationType)
		}

		return writer.WriteStop(model.Stop{
			ID:            s.ID,
			Code:          s.Code,
			Name:          s.Name,
			Desc:          s.Desc,
			Lat:           s.Lat,
			Lon:           s.Lon,
			URL:           s.URL,
			LocationType:  lt,
			ParentStation: s.ParentStation,
			PlatformCode:  s.PlatformCode,
		})
	})
}
