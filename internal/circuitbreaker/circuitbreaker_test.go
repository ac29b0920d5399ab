package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

var errUpstream = errors.New("upstream down")

func fail() error    { return errUpstream }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(Config{FailureThreshold: 3, Timeout: time.Minute, Clock: clock})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Call(ctx, fail); !errors.Is(err, errUpstream) {
			t.Fatalf("call %d: err = %v, want %v", i, err, errUpstream)
		}
	}
	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}

	called := false
	err := cb.Call(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call() while open err = %v, want %v", err, ErrOpen)
	}
	if called {
		t.Error("fn should not run while the circuit is open")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := New(Config{FailureThreshold: 2, Clock: clockwork.NewFakeClock()})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	_ = cb.Call(ctx, succeed)
	_ = cb.Call(ctx, fail)
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed after non-consecutive failures", cb.State())
	}
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var transitions []string
	cb := New(Config{
		FailureThreshold: 1,
		SuccessThreshold: 2,
		Timeout:          10 * time.Second,
		Component:        "dataset",
		Clock:            clock,
		OnStateChange: func(component string, from, to State) {
			transitions = append(transitions, component+":"+from.String()+"->"+to.String())
		},
	})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	clock.Advance(11 * time.Second)

	if err := cb.Call(ctx, succeed); err != nil {
		t.Fatalf("trial call err = %v", err)
	}
	if cb.State() != StateHalfOpen {
		t.Fatalf("State() = %v, want half_open after one trial call", cb.State())
	}
	if err := cb.Call(ctx, succeed); err != nil {
		t.Fatalf("trial call err = %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("State() = %v, want closed", cb.State())
	}

	want := []string{"dataset:closed->open", "dataset:open->half_open", "dataset:half_open->closed"}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transitions[%d] = %q, want %q", i, transitions[i], want[i])
		}
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := clockwork.NewFakeClock()
	cb := New(Config{FailureThreshold: 1, Timeout: 5 * time.Second, Clock: clock})
	ctx := context.Background()

	_ = cb.Call(ctx, fail)
	clock.Advance(6 * time.Second)
	_ = cb.Call(ctx, fail)

	if cb.State() != StateOpen {
		t.Fatalf("State() = %v, want open", cb.State())
	}
	if err := cb.Call(ctx, succeed); !errors.Is(err, ErrOpen) {
		t.Errorf("Call() err = %v, want %v (cool-down restarted)", err, ErrOpen)
	}
}

func TestCircuitBreaker_CancelledContextNotCounted(t *testing.T) {
	cb := New(Config{FailureThreshold: 1, Clock: clockwork.NewFakeClock()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := cb.Call(ctx, func() error { return ctx.Err() })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if cb.State() != StateClosed {
		t.Errorf("State() = %v, want closed", cb.State())
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateClosed:   "closed",
		StateOpen:     "open",
		StateHalfOpen: "half_open",
		State(42):     "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
