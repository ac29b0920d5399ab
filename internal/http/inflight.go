package http

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

// InFlightTracker counts requests being served so shutdown can wait for them.
type InFlightTracker struct {
	count atomic.Int64
	clock clockwork.Clock
}

// NewInFlightTracker returns a tracker that polls on clock. Nil uses the wall clock.
func NewInFlightTracker(clock clockwork.Clock) *InFlightTracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &InFlightTracker{clock: clock}
}

// Increment marks a request started.
func (t *InFlightTracker) Increment() { t.count.Add(1) }

// Decrement marks a request finished.
func (t *InFlightTracker) Decrement() { t.count.Add(-1) }

// Count returns the current in-flight count.
func (t *InFlightTracker) Count() int64 { return t.count.Load() }

// WaitForZero polls every checkInterval until no request is in flight or ctx ends.
func (t *InFlightTracker) WaitForZero(ctx context.Context, checkInterval time.Duration) error {
	if t.Count() == 0 {
		return nil
	}
	ticker := t.clock.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if t.Count() == 0 {
				return nil
			}
		}
	}
}

// globalInFlightTracker is fed by MetricsMiddleware.
var globalInFlightTracker = NewInFlightTracker(nil)

// InFlightCount returns the process-wide in-flight count.
func InFlightCount() int64 {
	return globalInFlightTracker.Count()
}

// WaitForInFlight blocks until MetricsMiddleware sees no request in flight or ctx ends.
func WaitForInFlight(ctx context.Context, checkInterval time.Duration) error {
	return globalInFlightTracker.WaitForZero(ctx, checkInterval)
}
