package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kjstillabower/temperature-heatmap-service/internal/traffic"
)

var (
	registry *prometheus.Registry

	// HTTP request rate by route template.
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP latency. Watch for: p95 climbing on /heatmap.png (raster render is the slow path).
	HTTPRequestDuration *prometheus.HistogramVec

	HTTPRequestsInFlight prometheus.Gauge

	// Dataset downloads by outcome (success, client_error, server_error, rate_limited, error).
	DatasetFetchesTotal *prometheus.CounterVec

	// Upstream latency. The reference document is ~150 KB, so p99 > 5s means trouble upstream.
	DatasetFetchDuration *prometheus.HistogramVec

	DatasetFetchRetriesTotal prometheus.Counter

	// Failed dataset loads by category (see client.CategorizeError).
	DatasetErrorsTotal *prometheus.CounterVec

	// Records in the dataset currently charted.
	DatasetRecords prometheus.Gauge

	CacheHitsTotal   *prometheus.CounterVec
	CacheMissesTotal *prometheus.CounterVec

	// Cache backend failures by operation and category. Memcached outages show here first.
	CacheErrorsTotal *prometheus.CounterVec

	CacheOperationDurationSeconds *prometheus.HistogramVec

	// Charts served from a stale dataset because the upstream failed.
	StaleServesTotal prometheus.Counter

	// Callers that waited on another caller's dataset fetch instead of fetching.
	RequestCoalescingHitsTotal prometheus.Counter
	RequestCoalescingWaitSeconds prometheus.Histogram

	CircuitBreakerState            *prometheus.GaugeVec
	CircuitBreakerTransitionsTotal *prometheus.CounterVec

	// Colour scale and layout rebuilds. Should move only when the dataset changes.
	ChartBuildsTotal   *prometheus.CounterVec
	ChartBuildDuration prometheus.Histogram

	// Serialisation time per output format.
	RenderDuration *prometheus.HistogramVec

	RenderedCells prometheus.Gauge

	RateLimitDeniedTotal prometheus.Counter

	CacheWarmingTotal *prometheus.CounterVec

	rateLimitGaugesOnce sync.Once
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	DatasetFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasetFetchesTotal",
			Help: "Total number of dataset downloads by outcome",
		},
		[]string{"status"},
	)
	DatasetFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "datasetFetchDurationSeconds",
			Help:    "Dataset download latency in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	DatasetFetchRetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datasetFetchRetriesTotal",
			Help: "Total number of dataset download retries",
		},
	)
	DatasetErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datasetErrorsTotal",
			Help: "Failed dataset loads by error category",
		},
		[]string{"category"},
	)
	DatasetRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "datasetRecords",
			Help: "Monthly records in the dataset currently charted",
		},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Dataset cache hits by backend",
		},
		[]string{"backend"},
	)
	CacheMissesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheMissesTotal",
			Help: "Dataset cache misses by backend",
		},
		[]string{"backend"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	CacheOperationDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cacheOperationDurationSeconds",
			Help:    "Cache operation latency in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5},
		},
		[]string{"operation", "result"},
	)
	StaleServesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "staleServesTotal",
			Help: "Datasets served from stale cache after an upstream failure",
		},
	)
	RequestCoalescingHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "requestCoalescingHitsTotal",
			Help: "Dataset loads that joined an in-flight fetch",
		},
	)
	RequestCoalescingWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "requestCoalescingWaitSeconds",
			Help:    "Time spent waiting on a coalesced dataset fetch",
			Buckets: []float64{.01, .05, .1, .5, 1, 2.5, 5},
		},
	)
	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuitBreakerState",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		},
		[]string{"component"},
	)
	CircuitBreakerTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuitBreakerTransitionsTotal",
			Help: "Circuit breaker state transitions",
		},
		[]string{"component", "from", "to"},
	)
	ChartBuildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chartBuildsTotal",
			Help: "Heat map layout builds by outcome",
		},
		[]string{"status"},
	)
	ChartBuildDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chartBuildDurationSeconds",
			Help:    "Time to compute colour scale, geometry and cells",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1},
		},
	)
	RenderDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "renderDurationSeconds",
			Help:    "Chart serialisation time by output format",
			Buckets: []float64{.001, .005, .01, .05, .1, .5, 1, 2.5},
		},
		[]string{"format"},
	)
	RenderedCells = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "renderedCells",
			Help: "Cells in the current heat map",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Total number of requests denied by rate limiter (429)",
		},
	)
	CacheWarmingTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheWarmingTotal",
			Help: "Dataset warm-up fetches by outcome",
		},
		[]string{"status"},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		DatasetFetchesTotal, DatasetFetchDuration, DatasetFetchRetriesTotal,
		DatasetErrorsTotal, DatasetRecords,
		CacheHitsTotal, CacheMissesTotal, CacheErrorsTotal, CacheOperationDurationSeconds,
		StaleServesTotal, RequestCoalescingHitsTotal, RequestCoalescingWaitSeconds,
		CircuitBreakerState, CircuitBreakerTransitionsTotal,
		ChartBuildsTotal, ChartBuildDuration, RenderDuration, RenderedCells,
		RateLimitDeniedTotal, CacheWarmingTotal,
	)
}

// RegisterTrafficGauges exposes the traffic tracker's sliding window. Call
// once from main with the overload window from config.
func RegisterTrafficGauges(window time.Duration) {
	rateLimitGaugesOnce.Do(func() {
		registry.MustRegister(
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRequestsInWindow",
					Help: "Requests seen in the overload window, denials included",
				},
				func() float64 { return float64(traffic.Window(window).Total()) },
			),
			prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{
					Name: "rateLimitRejectsInWindow",
					Help: "429 responses in the overload window",
				},
				func() float64 { return float64(traffic.Window(window).Denied) },
			),
		)
	})
}

// RecordCircuitTransition is a circuitbreaker.Config.OnStateChange hook.
// States are passed as ints to keep this package free of the breaker import.
func RecordCircuitTransition(component string, from, to string, toValue int) {
	CircuitBreakerTransitionsTotal.WithLabelValues(component, from, to).Inc()
	CircuitBreakerState.WithLabelValues(component).Set(float64(toValue))
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
