package storage

import (
	"fmt"
	"sort"
	"sync"

	"stopboard.dev/gtfs/model"
)

// MemoryStorage holds everything in process memory. A feed becomes
// readable once its writer is closed.
type MemoryStorage struct {
	mu       sync.Mutex
	feeds    map[string]*memoryFeed
	metadata []FeedMetadata
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{feeds: map[string]*memoryFeed{}}
}

func (s *MemoryStorage) ListFeeds(filter ListFeedsFilter) ([]*FeedMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []*FeedMetadata{}
	for i := range s.metadata {
		m := s.metadata[i]
		if (filter.URL == "" || m.URL == filter.URL) && (filter.Hash == "" || m.Hash == filter.Hash) {
			out = append(out, &m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RetrievedAt.After(out[j].RetrievedAt)
	})
	return out, nil
}

func (s *MemoryStorage) WriteFeedMetadata(feed *FeedMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.metadata {
		if m.URL == feed.URL && m.Hash == feed.Hash {
			s.metadata[i] = *feed
			return nil
		}
	}
	s.metadata = append(s.metadata, *feed)
	return nil
}

func (s *MemoryStorage) GetReader(hash string) (FeedReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.feeds[hash]
	if !ok {
		return nil, fmt.Errorf("feed %s not found", hash)
	}
	return f, nil
}

func (s *MemoryStorage) GetWriter(hash string) (FeedWriter, error) {
	s.mu.Lock()
	delete(s.feeds, hash)
	s.mu.Unlock()

	return &memoryWriter{
		feed: &memoryFeed{present: map[model.Table]bool{}},
		publish: func(f *memoryFeed) {
			s.mu.Lock()
			s.feeds[hash] = f
			s.mu.Unlock()
		},
	}, nil
}

// A finished feed. Never modified once published.
type memoryFeed struct {
	present       map[model.Table]bool
	agencies      []model.Agency
	routes        []model.Route
	calendars     []model.Calendar
	calendarDates []model.CalendarDate
	trips         []model.Trip
	stops         []model.Stop
	stopTimes     []model.StopTime
}

func (f *memoryFeed) Tables() ([]model.Table, error) {
	tables := []model.Table{}
	for _, t := range model.Tables {
		if f.present[t] {
			tables = append(tables, t)
		}
	}
	return tables, nil
}

func clone[T any](rows []T) ([]T, error) {
	return append([]T{}, rows...), nil
}

func (f *memoryFeed) Agencies() ([]model.Agency, error)            { return clone(f.agencies) }
func (f *memoryFeed) Routes() ([]model.Route, error)               { return clone(f.routes) }
func (f *memoryFeed) Calendars() ([]model.Calendar, error)         { return clone(f.calendars) }
func (f *memoryFeed) CalendarDates() ([]model.CalendarDate, error) { return clone(f.calendarDates) }
func (f *memoryFeed) Trips() ([]model.Trip, error)                 { return clone(f.trips) }
func (f *memoryFeed) Stops() ([]model.Stop, error)                 { return clone(f.stops) }
func (f *memoryFeed) StopTimes() ([]model.StopTime, error)         { return clone(f.stopTimes) }

type memoryWriter struct {
	feed    *memoryFeed
	publish func(*memoryFeed)
}

func (w *memoryWriter) BeginTable(table model.Table) error {
	w.feed.present[table] = true
	return nil
}

func (w *memoryWriter) EndTable(model.Table) error { return nil }

func (w *memoryWriter) WriteAgency(a model.Agency) error {
	w.feed.agencies = append(w.feed.agencies, a)
	return nil
}

func (w *memoryWriter) WriteRoute(r model.Route) error {
	w.feed.routes = append(w.feed.routes, r)
	return nil
}

func (w *memoryWriter) WriteCalendar(c model.Calendar) error {
	w.feed.calendars = append(w.feed.calendars, c)
	return nil
}

func (w *memoryWriter) WriteCalendarDate(cd model.CalendarDate) error {
	w.feed.calendarDates = append(w.feed.calendarDates, cd)
	return nil
}

func (w *memoryWriter) WriteTrip(t model.Trip) error {
	w.feed.trips = append(w.feed.trips, t)
	return nil
}

func (w *memoryWriter) WriteStop(s model.Stop) error {
	w.feed.stops = append(w.feed.stops, s)
	return nil
}

func (w *memoryWriter) WriteStopTime(st model.StopTime) error {
	w.feed.stopTimes = append(w.feed.stopTimes, st)
	return nil
}

func (w *memoryWriter) Close() error {
	if w.feed != nil {
		w.publish(w.feed)
		w.feed = nil
	}
	return nil
}
