package storage_test

import (
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stopboard.dev/gtfs/model"
	"stopboard.dev/gtfs/storage"
)

// Tests of the storage implementations. The in-memory and sqlite
// implementations are always run, while postgres requires
// STOPBOARD_POSTGRES_DSN to be set.

type StorageBuilder func() (storage.Storage, error)

func writeTable(t *testing.T, w storage.FeedWriter, table model.Table, rows func() error) {
	require.NoError(t, w.BeginTable(table))
	require.NoError(t, rows())
	require.NoError(t, w.EndTable(table))
}

func testInitiallyEmpty(t *testing.T, sb StorageBuilder) {
	s, err := sb()
	require.NoError(t, err)

	writer, err := s.GetWriter("unit-test")
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	reader, err := s.GetReader("unit-test")
	require.NoError(t, err)

	tables, err := reader.Tables()
	require.NoError(t, err)
	assert.Equal(t, 0, len(tables))

	agencies, err := reader.Agencies()
	require.NoError(t, err)
	assert.Equal(t, 0, len(agencies))

	stops, err := reader.Stops()
	require.NoError(t, err)
	assert.Equal(t, 0, len(stops))

	routes, err := reader.Routes()
	require.NoError(t, err)
	assert.Equal(t, 0, len(routes))

	trips, err := reader.Trips()
	require.NoError(t, err)
	assert.Equal(t, 0, len(trips))

	stopTimes, err := reader.StopTimes()
	require.NoError(t, err)
	assert.Equal(t, 0, len(stopTimes))

	calendars, err := reader.Calendars()
	require.NoError(t, err)
	assert.Equal(t, 0, len(calendars))

	calendarDates, err := reader.CalendarDates()
	require.NoError(t, err)
	assert.Equal(t, 0, len(calendarDates))
}

func testBasicReadingAndWriting(t *testing.T, sb StorageBuilder) {
	s, err := sb()
	require.NoError(t, err)

	writer, err := s.GetWriter("unit-test")
	require.NoError(t, err)

	agencies := []model.Agency{
		{ID: "agency_1", Name: "Agency 1", URL: "http://example.com/1", Timezone: "Europe/Prague"},
		{ID: "agency_2", Name: "Agency 2", URL: "http://example.com/2", Timezone: "Europe/Prague"},
	}
	stops := []model.Stop{
		{
			ID:            "U1Z2",
			Code:          "code_1",
			Name:          "Náměstí Míru",
			Desc:          "Stop description 1",
			Lat:           50.07,
			Lon:           14.43,
			URL:           "http://example.com/stop_1",
			LocationType:  model.LocationTypeStop,
			ParentStation: "U1S1",
			PlatformCode:  "B",
		},
		{
			ID:           "U1S1",
			Name:         "Náměstí Míru",
			LocationType: model.LocationTypeStation,
		},
	}
	routes := []model.Route{
		{
			ID:        "L22",
			AgencyID:  "agency_1",
			ShortName: "22",
			LongName:  "Bílá Hora - Nádraží Hostivař",
			Desc:      "tram",
			Type:      model.RouteTypeTram,
			URL:       "http://example.com/22",
			Color:     "7A0603",
			TextColor: "FFFFFF",
		},
		{ID: "L135", ShortName: "135", Type: model.RouteTypeBus},
	}
	trips := []model.Trip{
		{ID: "t1", RouteID: "L22", ServiceID: "weekday", Headsign: "Bílá Hora", ShortName: "x", DirectionID: 1},
		{ID: "t2", RouteID: "L135", ServiceID: "weekend", Headsign: "Florenc"},
	}
	stopTimes := []model.StopTime{
		{TripID: "t1", StopID: "U1Z2", StopSequence: 3, Arrival: "08:04:30", Departure: "08:05:00", Headsign: "Bílá Hora"},
		{TripID: "t2", StopID: "U1Z2", StopSequence: 1, Arrival: "25:10:00", Departure: "25:10:00"},
	}
	calendars := []model.Calendar{
		{ServiceID: "weekday", StartDate: "20240101", EndDate: "20241231", Weekday: 0b0111110},
		{ServiceID: "weekend", StartDate: "20240101", EndDate: "20241231", Weekday: 0b1000001},
	}
	calendarDates := []model.CalendarDate{
		{ServiceID: "weekday", Date: "20240101", ExceptionType: model.ExceptionTypeRemoved},
		{ServiceID: "weekend", Date: "20240101", ExceptionType: model.ExceptionTypeAdded},
	}

	writeTable(t, writer, model.TableAgency, func() error {
		for _, a := range agencies {
			if err := writer.WriteAgency(a); err != nil {
				return err
			}
		}
		return nil
	})
	writeTable(t, writer, model.TableRoutes, func() error {
		for _, r := range routes {
			if err := writer.WriteRoute(r); err != nil {
				return err
			}
		}
		return nil
	})
	writeTable(t, writer, model.TableCalendar, func() error {
		for _, c := range calendars {
			if err := writer.WriteCalendar(c); err != nil {
				return err
			}
		}
		return nil
	})
	writeTable(t, writer, model.TableCalendarDates, func() error {
		for _, cd := range calendarDates {
			if err := writer.WriteCalendarDate(cd); err != nil {
				return err
			}
		}
		return nil
	})
	writeTable(t, writer, model.TableTrips, func() error {
		for _, trip := range trips {
			if err := writer.WriteTrip(trip); err != nil {
				return err
			}
		}
		return nil
	})
	writeTable(t, writer, model.TableStops, func() error {
		for _, stop := range stops {
			if err := writer.WriteStop(stop); err != nil {
				return err
			}
		}
		return nil
	})
	writeTable(t, writer, model.TableStopTimes, func() error {
		for _, st := range stopTimes {
			if err := writer.WriteStopTime(st); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, writer.Close())

	reader, err := s.GetReader("unit-test")
	require.NoError(t, err)

	tables, err := reader.Tables()
	require.NoError(t, err)
	assert.Equal(t, model.Tables, tables)

	readAgencies, err := reader.Agencies()
	require.NoError(t, err)
	assert.Equal(t, agencies, readAgencies)

	readStops, err := reader.Stops()
	require.NoError(t, err)
	assert.Equal(t, stops, readStops)

	readRoutes, err := reader.Routes()
	require.NoError(t, err)
	assert.Equal(t, routes, readRoutes)

	readTrips, err := reader.Trips()
	require.NoError(t, err)
	assert.Equal(t, trips, readTrips)

	readStopTimes, err := reader.StopTimes()
	require.NoError(t, err)
	assert.Equal(t, stopTimes, readStopTimes)

	readCalendars, err := reader.Calendars()
	require.NoError(t, err)
	assert.Equal(t, calendars, readCalendars)

	readCalendarDates, err := reader.CalendarDates()
	require.NoError(t, err)
	assert.Equal(t, calendarDates, readCalendarDates)
}

// A table that is begun but receives no rows is present, while one
// that is never begun is absent.
func testTablePresence(t *testing.T, sb StorageBuilder) {
	s, err := sb()
	require.NoError(t, err)

	writer, err := s.GetWriter("unit-test")
	require.NoError(t, err)
	writeTable(t, writer, model.TableCalendarDates, func() error { return nil })
	writeTable(t, writer, model.TableStopTimes, func() error {
		return writer.WriteStopTime(model.StopTime{
			TripID: "t", StopID: "s", StopSequence: 1, Arrival: "10:00:00", Departure: "10:00:00",
		})
	})
	require.NoError(t, writer.Close())

	reader, err := s.GetReader("unit-test")
	require.NoError(t, err)

	tables, err := reader.Tables()
	require.NoError(t, err)
	assert.Equal(t, []model.Table{model.TableCalendarDates, model.TableStopTimes}, tables)

	calendars, err := reader.Calendars()
	require.NoError(t, err)
	assert.Equal(t, 0, len(calendars))
}

// Large tables are streamed by some backends. All rows must survive,
// in write order.
func testManyStopTimes(t *testing.T, sb StorageBuilder) {
	s, err := sb()
	require.NoError(t, err)

	writer, err := s.GetWriter("unit-test")
	require.NoError(t, err)

	n := 12017
	writeTable(t, writer, model.TableStopTimes, func() error {
		for i := 0; i < n; i++ {
			err := writer.WriteStopTime(model.StopTime{
				TripID:       fmt.Sprintf("t%d", i),
				StopID:       "s",
				StopSequence: uint32(i),
				Arrival:      "10:00:00",
				Departure:    "10:00:00",
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, writer.Close())

	reader, err := s.GetReader("unit-test")
	require.NoError(t, err)

	stopTimes, err := reader.StopTimes()
	require.NoError(t, err)
	require.Equal(t, n, len(stopTimes))
	for i, st := range stopTimes {
		assert.Equal(t, uint32(i), st.StopSequence)
	}
}

func testFeedMetadataReadWrite(t *testing.T, sb StorageBuilder) {
	s, err := sb()
	require.NoError(t, err)

	feeds, err := s.ListFeeds(storage.ListFeedsFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, len(feeds))

	first := &storage.FeedMetadata{
		URL:               "http://example.com/gtfs.zip",
		Hash:              "hash1",
		RetrievedAt:       time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Timezone:          "Europe/Prague",
		CalendarStartDate: "20240101",
		CalendarEndDate:   "20241231",
	}
	second := &storage.FeedMetadata{
		URL:               "http://example.com/gtfs.zip",
		Hash:              "hash2",
		RetrievedAt:       time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Timezone:          "Europe/Prague",
		CalendarStartDate: "20240201",
		CalendarEndDate:   "20250131",
	}
	require.NoError(t, s.WriteFeedMetadata(first))
	require.NoError(t, s.WriteFeedMetadata(second))

	// Most recently retrieved first
	feeds, err = s.ListFeeds(storage.ListFeedsFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, len(feeds))
	assert.Equal(t, "hash2", feeds[0].Hash)
	assert.Equal(t, "hash1", feeds[1].Hash)
	assert.True(t, second.RetrievedAt.Equal(feeds[0].RetrievedAt))
	assert.Equal(t, "20250131", feeds[0].CalendarEndDate)

	// Rewriting updates in place
	first.RetrievedAt = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.WriteFeedMetadata(first))
	feeds, err = s.ListFeeds(storage.ListFeedsFilter{})
	require.NoError(t, err)
	require.Equal(t, 2, len(feeds))
	assert.Equal(t, "hash1", feeds[0].Hash)
}

func testFeedMetadataFiltering(t *testing.T, sb StorageBuilder) {
	s, err := sb()
	require.NoError(t, err)

	for i, md := range []struct{ url, hash string }{
		{"http://a", "h1"},
		{"http://a", "h2"},
		{"http://b", "h1"},
	} {
		require.NoError(t, s.WriteFeedMetadata(&storage.FeedMetadata{
			URL:               md.url,
			Hash:              md.hash,
			RetrievedAt:       time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Timezone:          "Europe/Prague",
			CalendarStartDate: "20240101",
			CalendarEndDate:   "20241231",
		}))
	}

	feeds, err := s.ListFeeds(storage.ListFeedsFilter{URL: "http://a"})
	require.NoError(t, err)
	assert.Equal(t, 2, len(feeds))

	feeds, err = s.ListFeeds(storage.ListFeedsFilter{Hash: "h1"})
	require.NoError(t, err)
	require.Equal(t, 2, len(feeds))
	assert.Equal(t, "http://b", feeds[0].URL)

	feeds, err = s.ListFeeds(storage.ListFeedsFilter{URL: "http://b", Hash: "h2"})
	require.NoError(t, err)
	assert.Equal(t, 0, len(feeds))
}

func testFeedOverwrite(t *testing.T, sb StorageBuilder) {
	s, err := sb()
	require.NoError(t, err)

	writer, err := s.GetWriter("unit-test")
	require.NoError(t, err)
	writeTable(t, writer, model.TableAgency, func() error {
		return writer.WriteAgency(model.Agency{ID: "old", Name: "Old", URL: "http://old", Timezone: "UTC"})
	})
	require.NoError(t, writer.Close())

	writer, err = s.GetWriter("unit-test")
	require.NoError(t, err)
	writeTable(t, writer, model.TableRoutes, func() error {
		return writer.WriteRoute(model.Route{ID: "r", ShortName: "9", Type: model.RouteTypeTram})
	})
	require.NoError(t, writer.Close())

	reader, err := s.GetReader("unit-test")
	require.NoError(t, err)

	tables, err := reader.Tables()
	require.NoError(t, err)
	assert.Equal(t, []model.Table{model.TableRoutes}, tables)

	agencies, err := reader.Agencies()
	require.NoError(t, err)
	assert.Equal(t, 0, len(agencies))

	routes, err := reader.Routes()
	require.NoError(t, err)
	assert.Equal(t, []model.Route{{ID: "r", ShortName: "9", Type: model.RouteTypeTram}}, routes)
}

func TestStorage(t *testing.T) {
	postgresDSN := os.Getenv("STOPBOARD_POSTGRES_DSN")

	for _, test := range []struct {
		Name string
		Test func(t *testing.T, sb StorageBuilder)
	}{
		{"InitiallyEmpty", testInitiallyEmpty},
		{"BasicReadingAndWriting", testBasicReadingAndWriting},
		{"TablePresence", testTablePresence},
		{"ManyStopTimes", testManyStopTimes},
		{"FeedMetadataReadWrite", testFeedMetadataReadWrite},
		{"FeedMetadataFiltering", testFeedMetadataFiltering},
		{"FeedOverwrite", testFeedOverwrite},
	} {
		t.Run(fmt.Sprintf("%s memory", test.Name), func(t *testing.T) {
			test.Test(t, func() (storage.Storage, error) {
				return storage.NewMemoryStorage(), nil
			})
		})
		t.Run(fmt.Sprintf("%s SQLiteMemory", test.Name), func(t *testing.T) {
			test.Test(t, func() (storage.Storage, error) {
				return storage.NewSQLiteStorage()
			})
		})
		t.Run(fmt.Sprintf("%s SQLiteFile", test.Name), func(t *testing.T) {
			dir := t.TempDir()
			test.Test(t, func() (storage.Storage, error) {
				return storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: dir})
			})
		})
		if postgresDSN != "" {
			t.Run(fmt.Sprintf("%s Postgres", test.Name), func(t *testing.T) {
				test.Test(t, func() (storage.Storage, error) {
					return storage.NewPSQLStorage(postgresDSN, true)
				})
			})
		}
	}
}
