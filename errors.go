package gtfs

import "errors"

var (
	// A required schedule table is missing.
	ErrDataIncomplete = errors.New("schedule data incomplete")

	// A stop time's departure_time could not be parsed.
	ErrMalformedTime = errors.New("malformed time")

	// No schedule has been loaded yet.
	ErrEngineNotReady = errors.New("engine not ready")

	// The realtime feed could not be fetched or decoded.
	ErrRefreshFailed = errors.New("realtime refresh failed")

	// No stored feed covers the current date.
	ErrNoActiveFeed = errors.New("no active feed found")
)
