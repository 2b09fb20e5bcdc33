package storage

import (
	"time"

	"stopboard.dev/gtfs/model"
)

type Storage interface {
	// Retrieves all feed metadata records matching the given
	// filter, most recently retrieved first.
	ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error)

	// Writes a FeedMetadata record. If a record with the same URL
	// and hash exists, it is updated.
	WriteFeedMetadata(metadata *FeedMetadata) error

	// Gets a reader for the feed with the given hash.
	GetReader(feed string) (FeedReader, error)

	// Gets a writer for the feed with the given hash. Any rows
	// previously written under the same hash are discarded.
	GetWriter(feed string) (FeedWriter, error)
}

type ListFeedsFilter struct {
	// If set, only include feeds with the given URL.
	URL string

	// If set, only include feeds with the given hash.
	Hash string
}

// Metadata for a downloaded static GTFS feed. The parsed data can be
// accessed via FeedReader.
type FeedMetadata struct {
	URL               string
	Hash              string
	RetrievedAt       time.Time
	Timezone          string
	CalendarStartDate string
	CalendarEndDate   string
}

// Writes GTFS records for a single feed.
//
// Rows of a table are written between BeginTable() and EndTable() for
// that table, allowing transactions/batching/whathaveyou. A table for
// which BeginTable() was never called is considered absent from the
// feed, which is different from a table that is present but empty.
type FeedWriter interface {
	BeginTable(table model.Table) error
	EndTable(table model.Table) error
	WriteAgency(agency model.Agency) error
	WriteStop(stop model.Stop) error
	WriteRoute(route model.Route) error
	WriteTrip(trip model.Trip) error
	WriteCalendar(cal model.Calendar) error
	WriteCalendarDate(caldate model.CalendarDate) error
	WriteStopTime(stopTime model.StopTime) error
	Close() error
}

// Reads back the rows of a single feed. Rows are returned in the
// order they were written.
type FeedReader interface {
	// The tables present in the feed.
	Tables() ([]model.Table, error)

	Agencies() ([]model.Agency, error)
	Stops() ([]model.Stop, error)
	Routes() ([]model.Route, error)
	Trips() ([]model.Trip, error)
	StopTimes() ([]model.StopTime, error)
	Calendars() ([]model.Calendar, error)
	CalendarDates() ([]model.CalendarDate, error)
}
