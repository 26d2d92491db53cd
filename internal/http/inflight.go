package http

import (
	"context"
	"sync/atomic"
	"time"
)

// InFlightTracker counts requests being served, keeping loading streams apart from
// ordinary requests. Streams end on their own once shutdown starts, so graceful shutdown
// only waits on requests.
type InFlightTracker struct {
	requests atomic.Int64
	streams  atomic.Int64
}

// Begin records the start of a request or stream and returns the matching done func.
func (t *InFlightTracker) Begin(stream bool) (done func()) {
	counter := &t.requests
	if stream {
		counter = &t.streams
	}
	counter.Add(1)
	return func() { counter.Add(-1) }
}

// Count returns the number of ordinary requests in flight.
func (t *InFlightTracker) Count() int64 {
	return t.requests.Load()
}

// Streams returns the number of open loading streams.
func (t *InFlightTracker) Streams() int64 {
	return t.streams.Load()
}

// WaitForZero blocks until no ordinary request is in flight or ctx is cancelled.
// checkInterval is how often to re-check the count.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		if t.Count() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// globalInFlightTracker is the process-wide tracker used by MetricsMiddleware.
var globalInFlightTracker = &InFlightTracker{}

// InFlightCount returns the current number of in-flight requests, streams excluded.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// OpenStreams returns the number of loading streams currently open.
func OpenStreams() int64 {
	return globalInFlightTracker.Streams()
}

// WaitForInFlight blocks until in-flight requests reach zero or ctx is done.
// checkInterval is the interval between count checks.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return globalInFlightTracker.WaitForZero(ctx, checkInterval)
}
