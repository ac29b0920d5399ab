package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
)

// fetchCall is one upstream fetch that several callers may wait on.
type fetchCall struct {
	done   chan struct{}
	result models.Dataset
	err    error
}

// requestCoalescer collapses concurrent fetches of the same source into one.
// The fetch runs detached from the first caller's context so that caller
// going away does not fail everyone else; timeout bounds it instead.
type requestCoalescer struct {
	mu      sync.Mutex
	calls   map[string]*fetchCall
	timeout time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		calls:   make(map[string]*fetchCall),
		timeout: timeout,
	}
}

// Do runs fn for key unless a call for key is already running, in which case
// it waits for that call. shared reports whether the result came from another
// caller's fetch.
func (rc *requestCoalescer) Do(ctx context.Context, key string, fn func(context.Context) (models.Dataset, error)) (result models.Dataset, shared bool, err error) {
	rc.mu.Lock()
	call, running := rc.calls[key]
	if !running {
		call = &fetchCall{done: make(chan struct{})}
		rc.calls[key] = call
		rc.mu.Unlock()
		go rc.run(ctx, key, call, fn)
	} else {
		rc.mu.Unlock()
	}

	waitCtx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()
	select {
	case <-call.done:
		return call.result, running, call.err
	case <-waitCtx.Done():
		return models.Dataset{}, running, waitCtx.Err()
	}
}

func (rc *requestCoalescer) run(parent context.Context, key string, call *fetchCall, fn func(context.Context) (models.Dataset, error)) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), rc.timeout)
	defer cancel()

	call.result, call.err = fn(ctx)

	rc.mu.Lock()
	delete(rc.calls, key)
	rc.mu.Unlock()
	close(call.done)
}

// inFlight reports how many distinct keys are being fetched.
func (rc *requestCoalescer) inFlight() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.calls)
}
