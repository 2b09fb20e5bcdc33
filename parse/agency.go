package parse

import (
	"fmt"
	"io"
	"time"

	"stopboard.dev/gtfs/model"
	"stopboard.dev/gtfs/storage"
)

type AgencyCSV struct {
	ID       string `csv:"agency_id"`
	Name     string `csv:"agency_name"`
	URL      string `csv:"agency_url"`
	Timezone string `csv:"agency_timezone"`
}

// Writes all agencies and returns the feed timezone: that of the first
// agency naming one. agency_id may be empty in single-agency feeds.
func ParseAgency(writer storage.FeedWriter, data io.Reader) (string, error) {
	seen := map[string]bool{}
	timezone := ""

	err := eachRow(data, func(_ int, a *AgencyCSV) error {
		if seen[a.ID] {
			return fmt.Errorf("repeated agency_id '%s'", a.ID)
		}
		seen[a.ID] = true

		if timezone == "" && a.Timezone != "" {
			if _, err := time.LoadLocation(a.Timezone); err != nil {
				return fmt.Errorf("invalid agency_timezone '%s': %w", a.Timezone, err)
			}
			timezone = a.Timezone
		}

		return writer.WriteAgency(model.Agency{
			ID:       a.ID,
			Name:     a.Name,
			URL:      a.URL,
			Timezone: a.Timezone,
		})
	})
	if err != nil {
		return "", err
	}

	return timezone, nil
}
