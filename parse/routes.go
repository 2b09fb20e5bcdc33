package parse

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"

	"stopboard.dev/gtfs/model"
	"stopboard.dev/gtfs/storage"
)

type RouteCSV struct {
	ID        string `csv:"route_id"`
	AgencyID  string `csv:"agency_id"`
	ShortName string `csv:"route_short_name"`
	LongName  string `csv:"route_long_name"`
	Desc      string `csv:"route_desc"`
	Type      string `csv:"route_type"`
	URL       string `csv:"route_url"`
	Color     string `csv:"route_color"`
	TextColor string `csv:"route_text_color"`
}

// Returns value, or fallback when empty. Anything else must be six
// hex digits.
func routeColor(column, value, fallback string) (string, error) {
	if value == "" {
		return fallback, nil
	}
	if _, err := hex.DecodeString(value); err != nil || len(value) != 6 {
		return "", fmt.Errorf("invalid %s '%s'", column, value)
	}
	return value, nil
}

func (r *RouteCSV) route() (model.Route, error) {
	route := model.Route{
		ID:        r.ID,
		AgencyID:  r.AgencyID,
		ShortName: r.ShortName,
		LongName:  r.LongName,
		Desc:      r.Desc,
		URL:       r.URL,
	}

	if r.Type != "" {
		n, err := strconv.Atoi(r.Type)
		if err != nil || n < 0 {
			return route, fmt.Errorf("route '%s': invalid route_type '%s'", r.ID, r.Type)
		}
		route.Type = model.RouteType(n)
	}

	var err error
	if route.Color, err = routeColor("route_color", r.Color, "FFFFFF"); err != nil {
		return route, fmt.Errorf("route '%s': %w", r.ID, err)
	}
	if route.TextColor, err = routeColor("route_text_color", r.TextColor, "000000"); err != nil {
		return route, fmt.Errorf("route '%s': %w", r.ID, err)
	}

	return route, nil
}

func ParseRoutes(writer storage.FeedWriter, data io.Reader) error {
	ids := idSet{}
	return eachRow(data, func(_ int, r *RouteCSV) error {
		if err := ids.claim("route_id", r.ID); err != nil {
			return err
		}
		route, err := r.route()
		if err != nil {
			return err
		}
		return writer.WriteRoute(route)
	})
}
