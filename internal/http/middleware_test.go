package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/temperature-heatmap-service/internal/observability"
	"github.com/kjstillabower/temperature-heatmap-service/internal/traffic"
)

func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	var seenID string
	var hasLogger bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = observability.CorrelationID(r.Context())
		hasLogger = observability.LoggerFromContext(r.Context()) != nil
	})

	w := httptest.NewRecorder()
	CorrelationIDMiddleware(zap.NewNop())(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/heatmap", nil))

	require.NotEmpty(t, seenID)
	assert.Equal(t, seenID, w.Header().Get("X-Correlation-ID"))
	assert.True(t, hasLogger, "request logger missing from context")
}

func TestCorrelationIDMiddleware_PropagatesClientID(t *testing.T) {
	var seenID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = observability.CorrelationID(r.Context())
	})
	req := httptest.NewRequest(http.MethodGet, "/heatmap", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")

	w := httptest.NewRecorder()
	CorrelationIDMiddleware(zap.NewNop())(next).ServeHTTP(w, req)

	assert.Equal(t, "client-provided-id", seenID)
	assert.Equal(t, "client-provided-id", w.Header().Get("X-Correlation-ID"))
}

func TestGetRoute(t *testing.T) {
	var got string
	capture := func(w http.ResponseWriter, r *http.Request) { got = getRoute(r) }

	router := mux.NewRouter()
	router.HandleFunc("/heatmap.svg", capture)
	router.HandleFunc("/heatmap/tooltip", capture)
	router.NotFoundHandler = http.HandlerFunc(capture)

	tests := []struct {
		target string
		want   string
	}{
		{"/heatmap.svg", "/heatmap.svg"},
		{"/heatmap/tooltip?year=1753&month=1", "/heatmap/tooltip"},
		{"/unknown/path", "other"},
	}
	for _, tt := range tests {
		got = ""
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.target, nil))
		assert.Equal(t, tt.want, got, tt.target)
	}
}

func TestStatusCodeString(t *testing.T) {
	assert.Equal(t, "2xx", statusCodeString(http.StatusOK))
	assert.Equal(t, "4xx", statusCodeString(http.StatusTooManyRequests))
	assert.Equal(t, "5xx", statusCodeString(http.StatusBadGateway))
}

func TestMetricsMiddleware_TracksInFlightAndStatus(t *testing.T) {
	var during int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
		w.WriteHeader(http.StatusTeapot)
	})
	before := InFlightCount()

	w := httptest.NewRecorder()
	MetricsMiddleware(next).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/heatmap", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, before+1, during)
	assert.Equal(t, before, InFlightCount())
}

func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	var deadline time.Time
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok = r.Context().Deadline()
	})

	start := time.Now()
	TimeoutMiddleware(2*time.Second)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	require.True(t, ok, "request context has no deadline")
	assert.WithinDuration(t, start.Add(2*time.Second), deadline, time.Second)
}

func TestRateLimitMiddleware_Returns429WhenExceeded(t *testing.T) {
	resetHealthState(t)
	h := NewHandler(newStubCharts(t, testDataset(), nil), nil, nil, renderOptions())
	router := NewRouter(h, zap.NewNop(), RouterOptions{Limiter: rate.NewLimiter(0, 1)})

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/heatmap.svg", nil))
	require.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/heatmap.svg", nil))
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", second.Header().Get("Retry-After"))
	env := decodeError(t, second)
	assert.Equal(t, "RATE_LIMITED", env.Error.Code)
	assert.Equal(t, second.Header().Get("X-Correlation-ID"), env.Error.RequestID)

	counts := traffic.Window(time.Minute)
	assert.Equal(t, 1, counts.Success)
	assert.Equal(t, 1, counts.Denied)

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, health.Code, "/health is not rate limited")
}

func TestRateLimitMiddleware_NilLimiterPassesThrough(t *testing.T) {
	called := 0
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called++ })
	mw := RateLimitMiddleware(nil)(next)

	for i := 0; i < 3; i++ {
		mw.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	}
	assert.Equal(t, 3, called)
}

func TestRouter_UnknownPath(t *testing.T) {
	resetHealthState(t)
	h := NewHandler(newStubCharts(t, testDataset(), nil), nil, nil, renderOptions())

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/unknown/path").Code)
}
