package gtfs_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	p "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	proto "google.golang.org/protobuf/proto"

	"stopboard.dev/gtfs"
	"stopboard.dev/gtfs/parse"
)

type fakeTime struct {
	mutex sync.Mutex
	now   time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	return f.now
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.now = f.now.Add(d)
}

// Realtime source handing out numbered snapshots, or errors while
// failing is set.
type countingSource struct {
	calls   atomic.Int32
	failing atomic.Bool
}

func (s *countingSource) Fetch(ctx context.Context) (*parse.Realtime, error) {
	n := s.calls.Add(1)
	if s.failing.Load() {
		return nil, errors.New("upstream down")
	}
	return &parse.Realtime{Timestamp: uint64(n)}, nil
}

// Counts callers that select on ctx.Done(), i.e. are about to block.
type waitCountingContext struct {
	context.Context
	waiting *atomic.Int32
}

func (c waitCountingContext) Done() <-chan struct{} {
	c.waiting.Add(1)
	return c.Context.Done()
}

func newCache(source gtfs.RealtimeSource, clock *fakeTime) *gtfs.RealtimeCache {
	cache := gtfs.NewRealtimeCache(source, 30*time.Second, time.Second, nil)
	cache.TimeNow = clock.Now
	return cache
}

func TestRealtimeCacheTTL(t *testing.T) {
	clock := &fakeTime{now: time.Unix(1700000000, 0)}
	source := &countingSource{}
	cache := newCache(source, clock)

	feed, err := cache.GetFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), feed.Timestamp)

	// Fresh for 30 seconds
	clock.Advance(29 * time.Second)
	feed, err = cache.GetFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), feed.Timestamp)
	assert.Equal(t, int32(1), source.calls.Load())

	clock.Advance(time.Second)
	feed, err = cache.GetFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), feed.Timestamp)
	assert.Equal(t, int32(2), source.calls.Load())
}

func TestRealtimeCacheSingleFlight(t *testing.T) {
	clock := &fakeTime{now: time.Unix(1700000000, 0)}

	started := make(chan struct{})
	release := make(chan struct{})
	calls := atomic.Int32{}
	source := gtfs.RealtimeSourceFunc(func(ctx context.Context) (*parse.Realtime, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return &parse.Realtime{Timestamp: 42}, nil
	})
	cache := newCache(source, clock)

	const n = 50
	feeds := make([]*parse.Realtime, n)
	errs := make([]error, n)
	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		feeds[0], errs[0] = cache.GetFeed(context.Background())
	}()
	<-started

	waiting := atomic.Int32{}
	for i := 1; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := waitCountingContext{Context: context.Background(), waiting: &waiting}
			feeds[i], errs[i] = cache.GetFeed(ctx)
		}(i)
	}

	// Every other caller is parked on the running fetch
	require.Eventually(t, func() bool {
		return waiting.Load() == n-1
	}, 5*time.Second, time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, feeds[i])
		assert.Equal(t, uint64(42), feeds[i].Timestamp)
	}
}

func TestRealtimeCacheServesStaleWhileRefreshing(t *testing.T) {
	clock := &fakeTime{now: time.Unix(1700000000, 0)}

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	calls := atomic.Int32{}
	source := gtfs.RealtimeSourceFunc(func(ctx context.Context) (*parse.Realtime, error) {
		n := calls.Add(1)
		if n > 1 {
			started <- struct{}{}
			<-release
		}
		return &parse.Realtime{Timestamp: uint64(n)}, nil
	})
	cache := newCache(source, clock)

	_, err := cache.GetFeed(context.Background())
	require.NoError(t, err)
	clock.Advance(time.Minute)

	done := make(chan *parse.Realtime)
	go func() {
		feed, _ := cache.GetFeed(context.Background())
		done <- feed
	}()
	<-started

	// Refresh in flight, the expired snapshot is served meanwhile
	feed, err := cache.GetFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), feed.Timestamp)

	close(release)
	assert.Equal(t, uint64(2), (<-done).Timestamp)

	feed, err = cache.GetFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), feed.Timestamp)
	assert.Equal(t, int32(2), calls.Load())
}

func TestRealtimeCacheRefreshFailure(t *testing.T) {
	clock := &fakeTime{now: time.Unix(1700000000, 0)}
	source := &countingSource{}
	cache := newCache(source, clock)

	feed, err := cache.GetFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), feed.Timestamp)

	// Failure keeps the previous snapshot
	clock.Advance(time.Minute)
	source.failing.Store(true)
	feed, err = cache.GetFeed(context.Background())
	assert.True(t, errors.Is(err, gtfs.ErrRefreshFailed))
	assert.Contains(t, err.Error(), "upstream down")
	require.NotNil(t, feed)
	assert.Equal(t, uint64(1), feed.Timestamp)

	// Still expired, so the next call tries again
	feed, err = cache.GetFeed(context.Background())
	assert.True(t, errors.Is(err, gtfs.ErrRefreshFailed))
	assert.Equal(t, uint64(1), feed.Timestamp)
	assert.Equal(t, int32(3), source.calls.Load())

	source.failing.Store(false)
	feed, err = cache.GetFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(4), feed.Timestamp)
}

func TestRealtimeCacheFailureWithoutSnapshot(t *testing.T) {
	clock := &fakeTime{now: time.Unix(1700000000, 0)}

	started := make(chan struct{})
	release := make(chan struct{})
	calls := atomic.Int32{}
	source := gtfs.RealtimeSourceFunc(func(ctx context.Context) (*parse.Realtime, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return nil, errors.New("connection refused")
	})
	cache := newCache(source, clock)

	var triggerErr error
	triggerDone := make(chan struct{})
	go func() {
		defer close(triggerDone)
		_, triggerErr = cache.GetFeed(context.Background())
	}()
	<-started

	waiterDone := make(chan struct{})
	var waiterFeed *parse.Realtime
	var waiterErr error
	go func() {
		defer close(waiterDone)
		waiterFeed, waiterErr = cache.GetFeed(context.Background())
	}()

	close(release)
	<-triggerDone
	<-waiterDone

	// Only the caller that triggered the refresh sees the error
	assert.True(t, errors.Is(triggerErr, gtfs.ErrRefreshFailed))
	assert.Nil(t, waiterFeed)
	if waiterErr != nil {
		// The waiter raced past the failed fetch and started
		// another one, which also fails.
		assert.True(t, errors.Is(waiterErr, gtfs.ErrRefreshFailed))
	}
}

func TestRealtimeCacheWaiterContext(t *testing.T) {
	clock := &fakeTime{now: time.Unix(1700000000, 0)}

	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	source := gtfs.RealtimeSourceFunc(func(ctx context.Context) (*parse.Realtime, error) {
		close(started)
		<-release
		return &parse.Realtime{}, nil
	})
	cache := newCache(source, clock)

	go cache.GetFeed(context.Background())
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := cache.GetFeed(ctx)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRealtimeCacheSourcePanics(t *testing.T) {
	clock := &fakeTime{now: time.Unix(1700000000, 0)}
	cache := newCache(gtfs.RealtimeSourceFunc(func(ctx context.Context) (*parse.Realtime, error) {
		panic("boom")
	}), clock)

	feed, err := cache.GetFeed(context.Background())
	assert.Nil(t, feed)
	assert.True(t, errors.Is(err, gtfs.ErrRefreshFailed))
	assert.Contains(t, err.Error(), "boom")
}

func TestRealtimeCacheGetStatusForTrip(t *testing.T) {
	clock := &fakeTime{now: time.Unix(1700000000, 0)}
	update := &parse.Entity{
		ID:         "u1",
		TripUpdate: &parse.TripUpdate{TripID: "T1", RouteID: "r42"},
	}
	vehicle := &parse.Entity{
		ID:      "v1",
		Vehicle: &parse.VehiclePosition{TripID: "T1", VehicleID: "9312"},
	}
	other := &parse.Entity{
		ID:         "u2",
		TripUpdate: &parse.TripUpdate{TripID: "T2", Canceled: true},
	}
	cache := newCache(gtfs.RealtimeSourceFunc(func(ctx context.Context) (*parse.Realtime, error) {
		return &parse.Realtime{Entities: []*parse.Entity{update, other, vehicle}}, nil
	}), clock)

	status, err := cache.GetStatusForTrip(context.Background(), "T1")
	require.NoError(t, err)
	assert.Equal(t, vehicle, status)

	status, err = cache.GetStatusForTrip(context.Background(), "T2")
	require.NoError(t, err)
	assert.Equal(t, other, status)

	status, err = cache.GetStatusForTrip(context.Background(), "T3")
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestEngineLiveStatus(t *testing.T) {
	engine := gtfs.NewEngine(gtfs.FixedClock(time.Unix(1700000000, 0)), nil, nil)
	status, err := engine.LiveStatus(context.Background(), "T1")
	assert.NoError(t, err)
	assert.Nil(t, status)

	cache := gtfs.NewRealtimeCache(gtfs.RealtimeSourceFunc(func(ctx context.Context) (*parse.Realtime, error) {
		return &parse.Realtime{Entities: []*parse.Entity{
			{ID: "v1", Vehicle: &parse.VehiclePosition{TripID: "T1"}},
		}}, nil
	}), 0, 0, nil)
	engine = gtfs.NewEngine(gtfs.FixedClock(time.Unix(1700000000, 0)), cache, nil)
	status, err = engine.LiveStatus(context.Background(), "T1")
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "v1", status.ID)
}

func TestHTTPRealtimeSource(t *testing.T) {
	feed, err := proto.Marshal(&p.FeedMessage{
		Header: &p.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1702473763),
		},
		Entity: []*p.FeedEntity{{
			Id: proto.String("v1"),
			Vehicle: &p.VehiclePosition{
				Trip: &p.TripDescriptor{TripId: proto.String("T1")},
			},
		}},
	})
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write(feed)
	}))
	defer server.Close()

	dump := filepath.Join(t.TempDir(), "realtime.json")
	source := gtfs.NewHTTPRealtimeSource(server.URL, map[string]string{"X-Api-Key": "secret"}, nil, nil)
	source.DumpPath = dump

	rt, err := source.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(1702473763), rt.Timestamp)
	require.Len(t, rt.Entities, 1)
	assert.Equal(t, "T1", rt.Entities[0].TripID())

	js, err := os.ReadFile(dump)
	require.NoError(t, err)
	assert.True(t, json.Valid(js))
	assert.Contains(t, string(js), "1702473763")

	// Wrong credentials
	source = gtfs.NewHTTPRealtimeSource(server.URL, nil, nil, nil)
	_, err = source.Fetch(context.Background())
	assert.Error(t, err)

	// Size limit
	source = gtfs.NewHTTPRealtimeSource(server.URL, map[string]string{"X-Api-Key": "secret"}, nil, nil)
	source.MaxSize = 4
	_, err = source.Fetch(context.Background())
	assert.Error(t, err)
}
