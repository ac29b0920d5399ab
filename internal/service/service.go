// Package service loads datasets through the cache and keeps the current
// heat map built.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/temperature-heatmap-service/internal/cache"
	"github.com/kjstillabower/temperature-heatmap-service/internal/client"
	"github.com/kjstillabower/temperature-heatmap-service/internal/models"
	"github.com/kjstillabower/temperature-heatmap-service/internal/observability"
	"github.com/kjstillabower/temperature-heatmap-service/internal/validation"
)

// Options tune DatasetService.
type Options struct {
	CacheTTL time.Duration
	// StaleTTL is the oldest cached copy served when the upstream fails; 0 disables it.
	StaleTTL        time.Duration
	CacheBackend    string
	CoalesceEnabled bool
	CoalesceTimeout time.Duration
	Logger          *zap.Logger
}

// DatasetService fetches datasets cache-aside.
type DatasetService struct {
	client    client.DatasetClient
	cache     cache.Cache
	opts      Options
	logger    *zap.Logger
	coalescer *requestCoalescer
}

// NewDatasetService wires a client and cache. Coalescing is off unless both
// CoalesceEnabled and a positive CoalesceTimeout are set.
func NewDatasetService(c client.DatasetClient, ch cache.Cache, opts Options) *DatasetService {
	if opts.CacheBackend == "" {
		opts.CacheBackend = "memory"
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &DatasetService{client: c, cache: ch, opts: opts, logger: logger}
	if opts.CoalesceEnabled && opts.CoalesceTimeout > 0 {
		s.coalescer = newRequestCoalescer(opts.CoalesceTimeout)
	}
	return s
}

func (s *DatasetService) loggerFor(ctx context.Context) *zap.Logger {
	if l := observability.LoggerFromContext(ctx); l != nil {
		return l
	}
	return s.logger
}

// GetDataset returns the validated dataset for source. A cache hit returns
// immediately. A miss fetches upstream, validates and caches. If the fetch or
// validation fails and a stale copy younger than StaleTTL exists, that copy
// is returned with Stale set.
func (s *DatasetService) GetDataset(ctx context.Context, source string) (models.Dataset, error) {
	key := strings.TrimSpace(source)
	logger := s.loggerFor(ctx).With(zap.String("source", key))
	start := time.Now()

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	switch {
	case err != nil:
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
		logger.Warn("cache get failed", zap.Error(err))
	case ok:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues(s.opts.CacheBackend).Inc()
		logger.Debug("dataset served", zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return cached, nil
	default:
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
	}
	observability.CacheMissesTotal.WithLabelValues(s.opts.CacheBackend).Inc()
	logger.Debug("cache miss, fetching upstream")

	ds, fetchErr := s.fetch(ctx, key)
	if fetchErr != nil {
		observability.DatasetErrorsTotal.WithLabelValues(string(client.CategorizeError(fetchErr))).Inc()
		if stale, ok := s.staleFallback(ctx, key, logger, fetchErr); ok {
			return stale, nil
		}
		return models.Dataset{}, fmt.Errorf("load dataset %s: %w", key, fetchErr)
	}

	s.store(ctx, key, ds, logger)
	logger.Debug("dataset served",
		zap.Bool("cached", false),
		zap.Int("records", len(ds.MonthlyVariance)),
		zap.Duration("duration", time.Since(start)))
	return ds, nil
}

// RefreshDataset fetches source upstream whatever the cache holds and stores
// the result. On failure the cached copy is left in place and keeps serving.
func (s *DatasetService) RefreshDataset(ctx context.Context, source string) (models.Dataset, error) {
	key := strings.TrimSpace(source)
	logger := s.loggerFor(ctx).With(zap.String("source", key))

	ds, err := s.fetch(ctx, key)
	if err != nil {
		observability.DatasetErrorsTotal.WithLabelValues(string(client.CategorizeError(err))).Inc()
		return models.Dataset{}, fmt.Errorf("refresh dataset %s: %w", key, err)
	}
	s.store(ctx, key, ds, logger)
	logger.Debug("dataset refreshed", zap.Int("records", len(ds.MonthlyVariance)))
	return ds, nil
}

func (s *DatasetService) store(ctx context.Context, key string, ds models.Dataset, logger *zap.Logger) {
	setStart := time.Now()
	if setErr := s.cache.Set(ctx, key, ds, s.opts.CacheTTL); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
		logger.Warn("cache set failed", zap.Error(setErr))
		return
	}
	observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
}

// fetch downloads and validates, through the coalescer when enabled.
func (s *DatasetService) fetch(ctx context.Context, source string) (models.Dataset, error) {
	load := func(ctx context.Context) (models.Dataset, error) {
		ds, err := s.client.FetchDataset(ctx, source)
		if err != nil {
			return models.Dataset{}, err
		}
		if err := validation.ValidateDataset(ds); err != nil {
			return models.Dataset{}, err
		}
		return ds, nil
	}
	if s.coalescer == nil {
		return load(ctx)
	}

	waitStart := time.Now()
	ds, shared, err := s.coalescer.Do(ctx, source, load)
	if shared {
		observability.RequestCoalescingHitsTotal.Inc()
		observability.RequestCoalescingWaitSeconds.Observe(time.Since(waitStart).Seconds())
	}
	return ds, err
}

func (s *DatasetService) staleFallback(ctx context.Context, source string, logger *zap.Logger, cause error) (models.Dataset, bool) {
	if s.opts.StaleTTL <= 0 {
		return models.Dataset{}, false
	}
	stale, ok, err := s.cache.GetStale(ctx, source, s.opts.StaleTTL)
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get_stale", categorizeCacheError(err)).Inc()
		return models.Dataset{}, false
	}
	if !ok {
		return models.Dataset{}, false
	}
	observability.StaleServesTotal.Inc()
	logger.Info("serving stale dataset",
		zap.Error(cause),
		zap.Time("fetched_at", stale.FetchedAt))
	stale.Stale = true
	return stale, true
}

// Ping checks the upstream source is reachable.
func (s *DatasetService) Ping(ctx context.Context, source string) error {
	return s.client.Ping(ctx, source)
}

// IsInvalidDataset reports whether err means the upstream answered with a
// document that cannot be charted, as opposed to not answering.
func IsInvalidDataset(err error) bool {
	return errors.Is(err, client.ErrMalformedRecord) ||
		errors.Is(err, client.ErrDatasetTooLarge) ||
		errors.Is(err, validation.ErrNoRecords) ||
		errors.Is(err, validation.ErrMonthOutOfRange) ||
		errors.Is(err, validation.ErrInvalidYear) ||
		errors.Is(err, validation.ErrNonFiniteTemperature)
}

// categorizeCacheError returns a stable label for cache error metrics.
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return "timeout"
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "connection") || strings.Contains(errStr, "network"):
		return "connection"
	case strings.Contains(errStr, "decode") || strings.Contains(errStr, "encode"):
		return "encoding"
	}
	return "unknown"
}
