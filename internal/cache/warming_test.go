package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
)

type mockDatasetFetcher struct {
	mu      sync.Mutex
	calls   []string
	failFor map[string]error
}

func (m *mockDatasetFetcher) GetDataset(ctx context.Context, source string) (models.Dataset, error) {
	m.mu.Lock()
	m.calls = append(m.calls, source)
	m.mu.Unlock()
	if err := m.failFor[source]; err != nil {
		return models.Dataset{}, err
	}
	ds := sampleDataset()
	ds.Source = source
	return ds, nil
}

func (m *mockDatasetFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func TestCacheWarmer_Warm_Success(t *testing.T) {
	fetcher := &mockDatasetFetcher{}
	core, logs := observer.New(zap.InfoLevel)
	warmer := NewCacheWarmer(fetcher, zap.New(core))

	err := warmer.Warm(context.Background(), []string{"a.json", "b.json"})
	if err != nil {
		t.Fatalf("Warm() error = %v, want nil", err)
	}
	if fetcher.callCount() != 2 {
		t.Errorf("fetch calls = %d, want 2", fetcher.callCount())
	}
	if logs.FilterMessage("dataset cache warming complete").Len() != 1 {
		t.Error("expected a warming complete log entry")
	}
}

func TestCacheWarmer_Warm_EmptySources(t *testing.T) {
	fetcher := &mockDatasetFetcher{}
	warmer := NewCacheWarmer(fetcher, nil)

	if err := warmer.Warm(context.Background(), nil); err != nil {
		t.Fatalf("Warm(nil) error = %v, want nil", err)
	}
	if fetcher.callCount() != 0 {
		t.Errorf("fetch calls = %d, want 0", fetcher.callCount())
	}
}

func TestCacheWarmer_Warm_FetcherError(t *testing.T) {
	upstreamDown := errors.New("upstream down")
	fetcher := &mockDatasetFetcher{failFor: map[string]error{"bad.json": upstreamDown}}
	warmer := NewCacheWarmer(fetcher, nil)

	err := warmer.Warm(context.Background(), []string{"good.json", "bad.json"})
	if err == nil {
		t.Fatal("Warm() error = nil, want non-nil")
	}
	if !errors.Is(err, upstreamDown) {
		t.Errorf("Warm() error = %v, want it to wrap %v", err, upstreamDown)
	}
	if !strings.Contains(err.Error(), "warm bad.json") {
		t.Errorf("Warm() error = %q, want the failing source named", err.Error())
	}
}

// refreshingFetcher also implements DatasetRefresher.
type refreshingFetcher struct {
	mockDatasetFetcher
	refreshes atomic.Int32
}

func (r *refreshingFetcher) RefreshDataset(ctx context.Context, source string) (models.Dataset, error) {
	r.refreshes.Add(1)
	ds := sampleDataset()
	ds.Source = source
	return ds, nil
}

func TestCacheWarmer_WarmPeriodic_RefreshesOnEachTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	fetcher := &refreshingFetcher{}
	warmer := NewCacheWarmerWithClock(fetcher, nil, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- warmer.WarmPeriodic(ctx, []string{"a.json"}, time.Minute) }()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), time.Second)
	defer waitCancel()
	if err := clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("ticker never started: %v", err)
	}
	if got := fetcher.refreshes.Load(); got != 0 {
		t.Fatalf("refreshes before first tick = %d, want 0", got)
	}

	for want := int32(1); want <= 2; want++ {
		clock.Advance(time.Minute)
		deadline := time.Now().Add(time.Second)
		for fetcher.refreshes.Load() < want && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		if got := fetcher.refreshes.Load(); got != want {
			t.Fatalf("refreshes after tick %d = %d", want, got)
		}
	}
	if fetcher.callCount() != 0 {
		t.Errorf("GetDataset calls = %d, want 0 (ticks refresh, not read through the cache)", fetcher.callCount())
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("WarmPeriodic() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WarmPeriodic did not return after cancel")
	}
}

func TestCacheWarmer_Refresh_FallsBackToWarm(t *testing.T) {
	fetcher := &mockDatasetFetcher{}
	warmer := NewCacheWarmerWithClock(fetcher, nil, clockwork.NewFakeClock())

	if err := warmer.Refresh(context.Background(), []string{"a.json"}); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("GetDataset calls = %d, want 1", fetcher.callCount())
	}
}

func TestCacheWarmer_WarmPeriodic_ZeroIntervalWaitsForCancel(t *testing.T) {
	fetcher := &mockDatasetFetcher{}
	warmer := NewCacheWarmerWithClock(fetcher, nil, clockwork.NewFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := warmer.WarmPeriodic(ctx, []string{"a.json"}, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("WarmPeriodic() = %v, want context.Canceled", err)
	}
	if fetcher.callCount() != 0 {
		t.Errorf("fetch calls = %d, want 0", fetcher.callCount())
	}
}
