package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
	"github.com/kjstillabower/temperature-heatmap-service/internal/observability"
)

// DatasetFetcher loads a dataset through the cache. The service layer
// implements it; the interface keeps this package free of that import.
type DatasetFetcher interface {
	GetDataset(ctx context.Context, source string) (models.Dataset, error)
}

// DatasetRefresher fetches upstream regardless of the cache and stores the
// result. Periodic warming uses it when the fetcher provides it, so each tick
// replaces the cached copy instead of hitting it.
type DatasetRefresher interface {
	RefreshDataset(ctx context.Context, source string) (models.Dataset, error)
}

// CacheWarmer prefetches configured dataset sources.
type CacheWarmer struct {
	fetcher DatasetFetcher
	logger  *zap.Logger
	clock   clockwork.Clock
}

// NewCacheWarmer creates a CacheWarmer on the wall clock. logger may be nil.
func NewCacheWarmer(fetcher DatasetFetcher, logger *zap.Logger) *CacheWarmer {
	return NewCacheWarmerWithClock(fetcher, logger, clockwork.NewRealClock())
}

// NewCacheWarmerWithClock creates a CacheWarmer whose refresh ticker runs on clock.
func NewCacheWarmerWithClock(fetcher DatasetFetcher, logger *zap.Logger, clock clockwork.Clock) *CacheWarmer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CacheWarmer{fetcher: fetcher, logger: logger, clock: clock}
}

// Warm loads every source through the cache concurrently and returns the
// joined failures.
func (w *CacheWarmer) Warm(ctx context.Context, sources []string) error {
	return w.run(ctx, sources, "warm", w.fetcher.GetDataset)
}

// Refresh reloads every source from upstream when the fetcher is a
// DatasetRefresher, and falls back to Warm otherwise.
func (w *CacheWarmer) Refresh(ctx context.Context, sources []string) error {
	r, ok := w.fetcher.(DatasetRefresher)
	if !ok {
		return w.Warm(ctx, sources)
	}
	return w.run(ctx, sources, "refresh", r.RefreshDataset)
}

func (w *CacheWarmer) run(ctx context.Context, sources []string, op string, load func(context.Context, string) (models.Dataset, error)) error {
	if len(sources) == 0 {
		return nil
	}
	start := w.clock.Now()
	w.logger.Info("warming dataset cache", zap.String("op", op), zap.Int("sources", len(sources)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, src := range sources {
		wg.Add(1)
		go func(src string) {
			defer wg.Done()
			ds, err := load(ctx, src)
			if err != nil {
				observability.CacheWarmingTotal.WithLabelValues("error").Inc()
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s %s: %w", op, src, err))
				mu.Unlock()
				return
			}
			observability.CacheWarmingTotal.WithLabelValues("success").Inc()
			w.logger.Debug("dataset warmed", zap.String("source", src), zap.Int("records", len(ds.MonthlyVariance)))
		}(src)
	}
	wg.Wait()

	w.logger.Info("dataset cache warming complete",
		zap.String("op", op),
		zap.Int("sources", len(sources)),
		zap.Int("errors", len(errs)),
		zap.Duration("duration", w.clock.Since(start)))
	if len(errs) > 0 {
		return fmt.Errorf("cache warming: %w", errors.Join(errs...))
	}
	return nil
}

// WarmPeriodic refreshes sources every interval until ctx is done. It does
// not warm on entry; call Warm first for that. Failures are logged and the
// loop keeps going.
func (w *CacheWarmer) WarmPeriodic(ctx context.Context, sources []string, interval time.Duration) error {
	if interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}
	ticker := w.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if err := w.Refresh(ctx, sources); err != nil {
				w.logger.Warn("periodic cache refresh failed", zap.Error(err))
			}
		}
	}
}
