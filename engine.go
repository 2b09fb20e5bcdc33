package gtfs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"stopboard.dev/gtfs/parse"
)

// Answers departure queries against the currently published
// Schedule.
//
// A Schedule is published with Swap. Queries in flight keep using
// the Schedule they started with.
type Engine struct {
	clock    Clock
	realtime *RealtimeCache
	logger   *slog.Logger

	schedule  atomic.Pointer[Schedule]
	ready     chan struct{}
	readyOnce sync.Once
}

// Creates an Engine. realtime may be nil, in which case no live
// status is available.
func NewEngine(clock Clock, realtime *RealtimeCache, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		clock:    clock,
		realtime: realtime,
		logger:   logger.With("component", "engine"),
		ready:    make(chan struct{}),
	}
}

// Publishes a new Schedule, returning the previous one.
func (e *Engine) Swap(s *Schedule) *Schedule {
	old := e.schedule.Swap(s)
	if s != nil {
		e.readyOnce.Do(func() {
			close(e.ready)
			e.logger.Info("engine ready")
		})
	}
	return old
}

// The currently published Schedule, or nil.
func (e *Engine) Schedule() *Schedule {
	return e.schedule.Load()
}

func (e *Engine) Ready() bool {
	select {
	case <-e.ready:
		return true
	default:
		return false
	}
}

// Blocks until a Schedule has been published or ctx is done.
func (e *Engine) WaitReady(ctx context.Context) error {
	select {
	case <-e.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) Now() time.Time {
	return e.clock.Now()
}

// Next count departures from the stop, as of the engine clock's
// current instant. An unknown stop yields an empty result.
func (e *Engine) NextDepartures(stopID string, count int) ([]DepartureRecord, error) {
	s := e.schedule.Load()
	if s == nil {
		return nil, ErrEngineNotReady
	}
	return s.NextDepartures(stopID, e.clock.Now(), count), nil
}

// Live status of a trip. Returns nil without error when there's no
// realtime source or the trip isn't in the feed. On ErrRefreshFailed
// the status from the previous snapshot, if any, is returned along
// with the error.
func (e *Engine) LiveStatus(ctx context.Context, tripID string) (*parse.Entity, error) {
	if e.realtime == nil {
		return nil, nil
	}
	return e.realtime.GetStatusForTrip(ctx, tripID)
}
