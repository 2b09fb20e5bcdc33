// Package testutil builds feeds, storage and schedules for tests.
package testutil

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stopboard.dev/gtfs"
	"stopboard.dev/gtfs/parse"
	"stopboard.dev/gtfs/storage"
)

const postgresDSNEnv = "STOPBOARD_POSTGRES_DSN"

// Storage backends to run tests against. Postgres joins in when
// STOPBOARD_POSTGRES_DSN is set.
func Backends() []string {
	if os.Getenv(postgresDSNEnv) != "" {
		return []string{"memory", "sqlite", "postgres"}
	}
	return []string{"memory", "sqlite"}
}

// Returns an empty storage of the given backend, closed when the test
// ends.
func BuildStorage(t testing.TB, backend string) storage.Storage {
	var (
		s   storage.Storage
		err error
	)

	switch backend {
	case "memory":
		s = storage.NewMemoryStorage()
	case "sqlite":
		s, err = storage.NewSQLiteStorage()
	case "postgres":
		dsn := os.Getenv(postgresDSNEnv)
		if dsn == "" {
			t.Skip(postgresDSNEnv + " not set")
		}
		s, err = storage.NewPSQLStorage(dsn, true)
	default:
		t.Fatalf("unknown backend %q", backend)
	}
	require.NoError(t, err)

	if c, ok := s.(io.Closer); ok {
		t.Cleanup(func() { c.Close() })
	}
	return s
}

// Parses a zipped feed into a fresh storage and builds its schedule.
func LoadSchedule(t testing.TB, backend string, archive []byte) *gtfs.Schedule {
	s := BuildStorage(t, backend)

	w, err := s.GetWriter("test")
	require.NoError(t, err)
	_, err = parse.ParseStatic(w, archive)
	require.NoError(t, err)

	r, err := s.GetReader("test")
	require.NoError(t, err)
	schedule, err := gtfs.NewSchedule(r)
	require.NoError(t, err)

	return schedule
}

// Header-only stand-ins for required tables a test doesn't care about.
var defaultTables = map[string][]string{
	"agency.txt":     {"agency_timezone,agency_name,agency_url", "Europe/Prague,PID,http://pid.cz"},
	"routes.txt":     {"route_id"},
	"trips.txt":      {"trip_id"},
	"stops.txt":      {"stop_id"},
	"stop_times.txt": {"trip_id,stop_id"},
}

// Adds the required tables missing from files. An empty calendar.txt
// is added unless calendar_dates.txt is present.
func WithDefaults(files map[string][]string) map[string][]string {
	for name, rows := range defaultTables {
		if files[name] == nil {
			files[name] = rows
		}
	}
	if files["calendar.txt"] == nil && files["calendar_dates.txt"] == nil {
		files["calendar.txt"] = []string{"service_id,start_date,end_date"}
	}
	return files
}

func BuildSchedule(t testing.TB, backend string, files map[string][]string) *gtfs.Schedule {
	return LoadSchedule(t, backend, BuildZip(t, WithDefaults(files)))
}

// Zips files, each given as its lines. Members are written in name
// order.
func BuildZip(t testing.TB, files map[string][]string) []byte {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		f, err := zw.Create(name)
		require.NoError(t, err)
		_, err = io.WriteString(f, strings.Join(files[name], "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	return buf.Bytes()
}

func Prague(t testing.TB) *time.Location {
	loc, err := time.LoadLocation("Europe/Prague")
	require.NoError(t, err)
	return loc
}
