package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/temperature-heatmap-service/internal/traffic"
)

// TestMetrics_Usable checks label arity matches how client, cache, service
// and http use each vector.
func TestMetrics_Usable(t *testing.T) {
	HTTPRequestsTotal.WithLabelValues("GET", "/heatmap.svg", "2xx").Inc()
	HTTPRequestDuration.WithLabelValues("GET", "/heatmap.svg").Observe(0.01)
	DatasetFetchesTotal.WithLabelValues("success").Inc()
	DatasetFetchDuration.WithLabelValues("server_error").Observe(0.2)
	DatasetFetchRetriesTotal.Inc()
	DatasetErrorsTotal.WithLabelValues("timeout").Inc()
	DatasetRecords.Set(3153)
	CacheHitsTotal.WithLabelValues("memory").Inc()
	CacheMissesTotal.WithLabelValues("memcached").Inc()
	CacheErrorsTotal.WithLabelValues("get", "connection").Inc()
	CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(0.001)
	StaleServesTotal.Inc()
	RequestCoalescingHitsTotal.Inc()
	RequestCoalescingWaitSeconds.Observe(0.05)
	ChartBuildsTotal.WithLabelValues("success").Inc()
	ChartBuildDuration.Observe(0.004)
	RenderDuration.WithLabelValues("png").Observe(0.2)
	RenderedCells.Set(3153)
	CacheWarmingTotal.WithLabelValues("success").Inc()
}

func TestRecordCircuitTransition(t *testing.T) {
	RecordCircuitTransition("dataset", "closed", "open", 1)

	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body := w.Body.String()
	if !strings.Contains(body, `circuitBreakerState{component="dataset"} 1`) {
		t.Error("metrics output should contain the breaker state gauge")
	}
	if !strings.Contains(body, `circuitBreakerTransitionsTotal{component="dataset",from="closed",to="open"}`) {
		t.Error("metrics output should contain the transition counter")
	}
}

func TestRegisterTrafficGauges(t *testing.T) {
	traffic.Reset()
	t.Cleanup(traffic.Reset)
	RegisterTrafficGauges(time.Minute)
	RegisterTrafficGauges(time.Minute) // second call is a no-op

	traffic.RecordSuccess()
	traffic.RecordDenied()

	w := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	body := w.Body.String()
	if !strings.Contains(body, "rateLimitRequestsInWindow 2") {
		t.Error("rateLimitRequestsInWindow should count both outcomes")
	}
	if !strings.Contains(body, "rateLimitRejectsInWindow 1") {
		t.Error("rateLimitRejectsInWindow should count the denial")
	}
}

// TestMetricsHandler_ServesPrometheusFormat checks the exposition endpoint.
func TestMetricsHandler_ServesPrometheusFormat(t *testing.T) {
	handler := MetricsHandler()
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("MetricsHandler status = %d, want 200", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "httpRequestsTotal") {
		t.Error("MetricsHandler response should contain metric output")
	}
}
