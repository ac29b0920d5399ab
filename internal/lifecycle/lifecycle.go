package lifecycle

import (
	"sync"
	"sync/atomic"
)

var (
	shuttingDown atomic.Bool
	reasonMu     sync.RWMutex
	reason       string
)

// BeginShutdown marks the process as draining. /health answers 503
// shutting-down from then on, reporting reason (usually the signal name).
func BeginShutdown(why string) {
	reasonMu.Lock()
	reason = why
	reasonMu.Unlock()
	shuttingDown.Store(true)
}

// SetShuttingDown sets the flag without a reason. Tests use it to reset state.
func SetShuttingDown(v bool) {
	if !v {
		reasonMu.Lock()
		reason = ""
		reasonMu.Unlock()
	}
	shuttingDown.Store(v)
}

// IsShuttingDown returns true if the process is draining and should not receive new traffic.
func IsShuttingDown() bool {
	return shuttingDown.Load()
}

// Reason returns what started the shutdown, or "" when not shutting down.
func Reason() string {
	reasonMu.RLock()
	defer reasonMu.RUnlock()
	return reason
}
