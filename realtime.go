package gtfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"stopboard.dev/gtfs/downloader"
	"stopboard.dev/gtfs/parse"
)

const (
	DefaultRealtimeTTL     = 30 * time.Second
	DefaultRealtimeTimeout = 10 * time.Second
	DefaultRealtimeMaxSize = 16 << 20 // 16 MB
)

// Produces a decoded realtime snapshot.
type RealtimeSource interface {
	Fetch(ctx context.Context) (*parse.Realtime, error)
}

type RealtimeSourceFunc func(ctx context.Context) (*parse.Realtime, error)

func (f RealtimeSourceFunc) Fetch(ctx context.Context) (*parse.Realtime, error) {
	return f(ctx)
}

// Holds the latest realtime snapshot and refreshes it once it is
// older than the TTL.
//
// At most one fetch is in flight at any time. While it runs, callers
// get the previous snapshot if there is one, and otherwise wait for
// the fetch to finish. A failed fetch leaves the previous snapshot in
// place and is reported only to the caller that started it.
type RealtimeCache struct {
	TimeNow func() time.Time

	source  RealtimeSource
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger

	mutex     sync.Mutex
	feed      *parse.Realtime
	fetchedAt time.Time
	inflight  *realtimeCall
}

type realtimeCall struct {
	done chan struct{}
	feed *parse.Realtime
}

func NewRealtimeCache(source RealtimeSource, ttl time.Duration, timeout time.Duration, logger *slog.Logger) *RealtimeCache {
	if ttl <= 0 {
		ttl = DefaultRealtimeTTL
	}
	if timeout <= 0 {
		timeout = DefaultRealtimeTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RealtimeCache{
		TimeNow: time.Now,
		source:  source,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger.With("component", "realtime_cache"),
	}
}

// Returns the current snapshot, refreshing it first if expired.
//
// The returned snapshot is shared and must not be modified. It is
// nil only if no fetch has ever succeeded.
func (c *RealtimeCache) GetFeed(ctx context.Context) (*parse.Realtime, error) {
	c.mutex.Lock()

	if c.feed != nil && c.TimeNow().Sub(c.fetchedAt) < c.ttl {
		feed := c.feed
		c.mutex.Unlock()
		return feed, nil
	}

	if call := c.inflight; call != nil {
		stale := c.feed
		c.mutex.Unlock()

		if stale != nil {
			return stale, nil
		}

		select {
		case <-call.done:
			return call.feed, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &realtimeCall{done: make(chan struct{})}
	c.inflight = call
	c.mutex.Unlock()

	feed, err := c.fetch(ctx)

	c.mutex.Lock()
	c.inflight = nil
	if err == nil {
		c.feed = feed
		c.fetchedAt = c.TimeNow()
	}
	call.feed = c.feed
	c.mutex.Unlock()
	close(call.done)

	if err != nil {
		c.logger.Warn("realtime refresh failed", "error", err, "stale", call.feed != nil)
		return call.feed, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	c.logger.Debug(
		"realtime refreshed",
		"entities", len(feed.Entities),
		"vehicles", feed.Vehicles,
		"timestamp", feed.Timestamp,
	)

	return feed, nil
}

func (c *RealtimeCache) fetch(ctx context.Context) (feed *parse.Realtime, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in realtime source: %v", r)
		}
	}()

	feed, err = c.source.Fetch(ctx)
	if err == nil && feed == nil {
		err = fmt.Errorf("realtime source returned no feed")
	}
	return feed, err
}

// Finds the entity describing the trip, preferring vehicle positions
// over trip updates. Returns nil if the trip isn't in the snapshot.
func (c *RealtimeCache) GetStatusForTrip(ctx context.Context, tripID string) (*parse.Entity, error) {
	feed, err := c.GetFeed(ctx)
	if feed == nil {
		return nil, err
	}

	for _, e := range feed.Entities {
		if e.Vehicle != nil && e.Vehicle.TripID == tripID {
			return e, err
		}
	}
	for _, e := range feed.Entities {
		if e.TripUpdate != nil && e.TripUpdate.TripID == tripID {
			return e, err
		}
	}

	return nil, err
}

// Fetches a GTFS Realtime feed over HTTP.
type HTTPRealtimeSource struct {
	URL        string
	Headers    map[string]string
	MaxSize    int
	Downloader downloader.Downloader

	// If set, every fetched feed is also written here as JSON.
	DumpPath string

	logger *slog.Logger
}

func NewHTTPRealtimeSource(url string, headers map[string]string, d downloader.Downloader, logger *slog.Logger) *HTTPRealtimeSource {
	if logger == nil {
		logger = slog.Default()
	}
	if d == nil {
		d = downloader.NewMemoryDownloader()
	}
	return &HTTPRealtimeSource{
		URL:        url,
		Headers:    headers,
		MaxSize:    DefaultRealtimeMaxSize,
		Downloader: d,
		logger:     logger.With("component", "realtime_source"),
	}
}

func (s *HTTPRealtimeSource) Fetch(ctx context.Context) (*parse.Realtime, error) {
	// Expiry is handled by RealtimeCache, so no caching here. The
	// deadline comes with ctx.
	timeout := time.Duration(0)
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	body, err := s.Downloader.Get(ctx, s.URL, s.Headers, downloader.GetOptions{
		Timeout: timeout,
		MaxSize: s.MaxSize,
	})
	if err != nil {
		return nil, fmt.Errorf("downloading realtime: %w", err)
	}

	feed, err := parse.ParseRealtime(ctx, [][]byte{body})
	if err != nil {
		return nil, fmt.Errorf("parsing realtime: %w", err)
	}

	if s.DumpPath != "" {
		if err := s.dump(body); err != nil {
			s.logger.Warn("dumping realtime feed", "path", s.DumpPath, "error", err)
		}
	}

	return feed, nil
}

func (s *HTTPRealtimeSource) dump(body []byte) error {
	js, err := parse.RealtimeJSON(body)
	if err != nil {
		return err
	}
	return os.WriteFile(s.DumpPath, js, 0644)
}
