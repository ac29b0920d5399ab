// Package traffic keeps a short sliding history of request outcomes so the
// health endpoint can report overload and a failing upstream.
package traffic

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Outcome classifies a finished chart request.
type Outcome int

const (
	Success Outcome = iota
	Error
	Denied
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Error:
		return "error"
	case Denied:
		return "denied"
	default:
		return "unknown"
	}
}

// Counts are outcome totals within a window.
type Counts struct {
	Success int `json:"success"`
	Errors  int `json:"errors"`
	Denied  int `json:"denied"`
}

// Total counts every outcome, denials included.
func (c Counts) Total() int {
	return c.Success + c.Errors + c.Denied
}

// ErrorPercent is errors over served requests (denials excluded), 0 when
// nothing was served.
func (c Counts) ErrorPercent() float64 {
	served := c.Success + c.Errors
	if served == 0 {
		return 0
	}
	return float64(c.Errors) * 100 / float64(served)
}

type event struct {
	at      time.Time
	outcome Outcome
}

// DefaultRetention bounds how far back a Tracker remembers outcomes.
const DefaultRetention = 5 * time.Minute

// Tracker records timestamped outcomes in arrival order.
type Tracker struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	retention time.Duration
	events    []event
}

// NewTracker returns a Tracker on clock. retention <= 0 uses DefaultRetention.
func NewTracker(clock clockwork.Clock, retention time.Duration) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{clock: clock, retention: retention}
}

// Record appends n outcomes stamped now.
func (t *Tracker) Record(o Outcome, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	for i := 0; i < n; i++ {
		t.events = append(t.events, event{at: now, outcome: o})
	}
	t.pruneLocked(now)
}

// Window returns the outcome counts no older than d.
func (t *Tracker) Window(d time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-d)
	var c Counts
	for i := len(t.events) - 1; i >= 0; i-- {
		e := t.events[i]
		if e.at.Before(cutoff) {
			break
		}
		switch e.outcome {
		case Success:
			c.Success++
		case Error:
			c.Errors++
		case Denied:
			c.Denied++
		}
	}
	return c
}

// Reset forgets every outcome.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

// pruneLocked drops events past retention. Events are appended in time order.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	i := 0
	for i < len(t.events) && t.events[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		t.events = append(t.events[:0], t.events[i:]...)
	}
}

var defaultTracker = NewTracker(nil, DefaultRetention)

// RecordSuccess records one served chart request.
func RecordSuccess() { defaultTracker.Record(Success, 1) }

// RecordError records one request that failed on the dataset path.
func RecordError() { defaultTracker.Record(Error, 1) }

// RecordDenied records one rate-limit denial.
func RecordDenied() { defaultTracker.Record(Denied, 1) }

// Window returns the process-wide counts within d.
func Window(d time.Duration) Counts { return defaultTracker.Window(d) }

// Reset clears the process-wide tracker. Tests only.
func Reset() { defaultTracker.Reset() }
