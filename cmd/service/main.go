package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/temperature-heatmap-service/internal/cache"
	"github.com/kjstillabower/temperature-heatmap-service/internal/circuitbreaker"
	"github.com/kjstillabower/temperature-heatmap-service/internal/client"
	"github.com/kjstillabower/temperature-heatmap-service/internal/config"
	"github.com/kjstillabower/temperature-heatmap-service/internal/heatmap"
	httphandler "github.com/kjstillabower/temperature-heatmap-service/internal/http"
	"github.com/kjstillabower/temperature-heatmap-service/internal/lifecycle"
	"github.com/kjstillabower/temperature-heatmap-service/internal/observability"
	"github.com/kjstillabower/temperature-heatmap-service/internal/render"
	"github.com/kjstillabower/temperature-heatmap-service/internal/service"
)

const breakerComponent = "dataset_source"

// app is the wired service: router plus what shutdown has to release.
type app struct {
	handler  http.Handler
	datasets *service.DatasetService
	warmer   *cache.CacheWarmer
	memcache *cache.MemcachedCache
}

func main() {
	logger, err := observability.NewLogger("heatmap-service")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatal("startup", zap.Error(err))
	}
	observability.RegisterTrafficGauges(cfg.OverloadWindow)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	ctx, stopWarming := context.WithCancel(context.Background())
	defer stopWarming()

	if cfg.WarmingEnabled {
		a.warm(ctx, cfg, logger)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      a.handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
	}
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("dataset", cfg.DatasetURL))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	sig := <-sigCh
	signal.Stop(sigCh)
	stopWarming()
	reason := sig.String()
	logger.Info("graceful shutdown triggered", zap.String("reason", reason))
	lifecycle.BeginShutdown(reason)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	if n := httphandler.InFlightCount(); n > 0 {
		logger.Info("waiting for in-flight requests", zap.Int64("count", n))
		if err := httphandler.WaitForInFlight(shutdownCtx, 50*time.Millisecond); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
		}
	}
	a.close(logger)

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// newApp wires client, cache, services and router from cfg.
func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	datasetClient, err := client.NewHTTPDatasetClientWithRetry(
		cfg.DatasetTimeout,
		cfg.RetryAttempts,
		cfg.RetryBaseDelay,
		cfg.RetryMaxDelay,
	)
	if err != nil {
		return nil, fmt.Errorf("dataset client: %w", err)
	}

	if cfg.CircuitBreakerEnabled {
		cb := circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold: cfg.CircuitBreakerFailureThreshold,
			SuccessThreshold: cfg.CircuitBreakerSuccessThreshold,
			Timeout:          cfg.CircuitBreakerTimeout,
			Component:        breakerComponent,
			OnStateChange: func(component string, from, to circuitbreaker.State) {
				observability.RecordCircuitTransition(component, from.String(), to.String(), int(to))
				logger.Warn("circuit breaker state change",
					zap.String("component", component),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			},
		})
		datasetClient.SetCircuitBreaker(cb)
		observability.CircuitBreakerState.WithLabelValues(breakerComponent).Set(0)
		logger.Info("circuit breaker enabled",
			zap.Int("failure_threshold", cfg.CircuitBreakerFailureThreshold),
			zap.Duration("timeout", cfg.CircuitBreakerTimeout))
	}

	a := &app{}
	var datasetCache cache.Cache
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns, cfg.StaleCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("memcached cache: %w", err)
		}
		a.memcache = mc
		datasetCache = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		datasetCache = cache.NewInMemoryCache()
		logger.Info("cache backend: in_memory")
	}

	a.datasets = service.NewDatasetService(datasetClient, datasetCache, service.Options{
		CacheTTL:        cfg.CacheTTL,
		StaleTTL:        cfg.StaleCacheTTL,
		CacheBackend:    cfg.CacheBackend,
		CoalesceEnabled: cfg.CoalesceEnabled,
		CoalesceTimeout: cfg.CoalesceTimeout,
		Logger:          logger,
	})
	a.warmer = cache.NewCacheWarmer(a.datasets, logger)

	renderer, err := heatmap.New(cfg.Heatmap())
	if err != nil {
		return nil, fmt.Errorf("chart config: %w", err)
	}
	charts := service.NewHeatmapService(a.datasets, renderer, cfg.DatasetURL, logger)

	healthConfig := &httphandler.HealthConfig{
		OverloadWindow:       cfg.OverloadWindow,
		OverloadThresholdPct: cfg.OverloadThresholdPct,
		RateLimitRPS:         cfg.RateLimitRPS,
		DegradedWindow:       cfg.DegradedWindow,
		DegradedErrorPct:     cfg.DegradedErrorPct,
		UpstreamPing: func(ctx context.Context) error {
			return a.datasets.Ping(ctx, cfg.DatasetURL)
		},
	}
	if a.memcache != nil {
		healthConfig.CachePing = a.memcache.Ping
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst)
	}
	handler := httphandler.NewHandler(charts, healthConfig, logger, render.HTMLOptions{Title: cfg.Chart.Title})
	a.handler = httphandler.NewRouter(handler, logger, httphandler.RouterOptions{
		RequestTimeout: cfg.RequestTimeout,
		Limiter:        limiter,
	})
	return a, nil
}

// warm loads the dataset once before serving, then refreshes it from upstream
// every WarmingInterval until ctx ends.
func (a *app) warm(ctx context.Context, cfg *config.Config, logger *zap.Logger) {
	sources := []string{cfg.DatasetURL}
	warmCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	if err := a.warmer.Warm(warmCtx, sources); err != nil {
		logger.Warn("cache warming failed", zap.Error(err))
	}
	cancel()
	if cfg.WarmingInterval <= 0 {
		return
	}
	go func() {
		if err := a.warmer.WarmPeriodic(ctx, sources, cfg.WarmingInterval); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("periodic cache warming stopped", zap.Error(err))
		}
	}()
}

func (a *app) close(logger *zap.Logger) {
	if a.memcache == nil {
		return
	}
	if err := a.memcache.Close(); err != nil {
		logger.Error("memcached close", zap.Error(err))
	}
}
