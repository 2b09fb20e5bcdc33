// Package parse reads static GTFS archives into storage and decodes
// GTFS-realtime messages.
package parse

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"
	"github.com/spkg/bom"

	"stopboard.dev/gtfs/model"
	"stopboard.dev/gtfs/storage"
)

func init() {
	// Feeds in the wild carry BOMs and stray quotes.
	gocsv.SetCSVReader(func(in io.Reader) gocsv.CSVReader {
		return gocsv.LazyCSVReader(bom.NewReader(in))
	})
}

// Streams the rows of a CSV table into fn. Rows are numbered from 1,
// not counting the header.
func eachRow[T any](data io.Reader, fn func(row int, rec *T) error) error {
	row := 0
	return gocsv.UnmarshalToCallbackWithError(data, func(rec *T) error {
		row++
		return errors.Wrapf(fn(row, rec), "row %d", row)
	})
}

// Tracks IDs already seen in a table.
type idSet map[string]struct{}

func (s idSet) claim(column, id string) error {
	if id == "" {
		return fmt.Errorf("empty %s", column)
	}
	if _, dup := s[id]; dup {
		return fmt.Errorf("repeated %s '%s'", column, id)
	}
	s[id] = struct{}{}
	return nil
}

// Smallest YYYYMMDD range covering every date passed to cover.
type dateRange struct {
	start, end string
}

func (r *dateRange) cover(start, end string) {
	if start != "" && (r.start == "" || start < r.start) {
		r.start = start
	}
	if end != "" && (r.end == "" || end > r.end) {
		r.end = end
	}
}

// Locates the known tables in an archive. Some agencies nest the
// files in a directory; the first member with a given base name wins.
func archiveTables(archive *zip.Reader) map[model.Table]*zip.File {
	known := map[model.Table]bool{}
	for _, t := range model.Tables {
		known[t] = true
	}

	found := map[model.Table]*zip.File{}
	for _, f := range archive.File {
		if f.FileInfo().IsDir() {
			continue
		}
		table := model.Table(path.Base(f.Name))
		if _, dup := found[table]; known[table] && !dup {
			found[table] = f
		}
	}
	return found
}

// ParseStatic loads a static GTFS archive into writer and returns a
// partial FeedMetadata holding the feed timezone and calendar range.
//
// Only tables present in the archive are begun on the writer. Whether
// the feed is complete enough to be queried is decided when it is
// read back.
func ParseStatic(writer storage.FeedWriter, buf []byte) (*storage.FeedMetadata, error) {
	archive, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	files := archiveTables(archive)
	metadata := &storage.FeedMetadata{}
	var calendar dateRange

	for _, table := range model.Tables {
		f, ok := files[table]
		if !ok {
			continue
		}

		if err := writer.BeginTable(table); err != nil {
			return nil, fmt.Errorf("beginning %s: %w", table, err)
		}
		if err := parseTable(writer, table, f, metadata, &calendar); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", table, err)
		}
		if err := writer.EndTable(table); err != nil {
			return nil, fmt.Errorf("ending %s: %w", table, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing feed writer: %w", err)
	}

	metadata.CalendarStartDate = calendar.start
	metadata.CalendarEndDate = calendar.end
	return metadata, nil
}

func parseTable(
	writer storage.FeedWriter,
	table model.Table,
	f *zip.File,
	metadata *storage.FeedMetadata,
	calendar *dateRange,
) error {
	data, err := f.Open()
	if err != nil {
		return err
	}
	defer data.Close()

	var start, end string
	switch table {
	case model.TableAgency:
		metadata.Timezone, err = ParseAgency(writer, data)
	case model.TableRoutes:
		err = ParseRoutes(writer, data)
	case model.TableCalendar:
		start, end, err = ParseCalendar(writer, data)
	case model.TableCalendarDates:
		start, end, err = ParseCalendarDates(writer, data)
	case model.TableTrips:
		err = ParseTrips(writer, data)
	case model.TableStops:
		err = ParseStops(writer, data)
	case model.TableStopTimes:
		err = ParseStopTimes(writer, data)
	}
	calendar.cover(start, end)
	return err
}
