package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kjstillabower/temperature-heatmap-service/internal/config"
)

const upstreamBody = `{"baseTemperature": 8.66, "monthlyVariance": [
  {"year": 1753, "month": 1, "variance": -1.366},
  {"year": 1754, "month": 1, "variance": 0.5}
]}`

func upstream(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			hits.Add(1)
			_, _ = w.Write([]byte(upstreamBody))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func testConfig(t *testing.T, datasetURL string) *config.Config {
	t.Helper()
	t.Setenv("DATASET_URL", "")
	t.Setenv("CACHE_BACKEND", "")
	cfg, err := config.Parse([]byte(fmt.Sprintf(`
dataset:
  url: %s
  timeout: 2s
cache:
  backend: in_memory
reliability:
  retry_max_attempts: 1
  rate_limit_rps: 1000
  rate_limit_burst: 1000
warming:
  enabled: true
  interval: 0s
chart:
  title: Wiring Test
`, datasetURL)))
	require.NoError(t, err)
	return cfg
}

func TestNewApp_ServesChartFromConfiguredSource(t *testing.T) {
	src, hits := upstream(t)
	a, err := newApp(testConfig(t, src.URL), zap.NewNop())
	require.NoError(t, err)

	for _, path := range []string{"/heatmap", "/heatmap.svg", "/health"} {
		w := httptest.NewRecorder()
		a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
		if path == "/heatmap" {
			assert.Contains(t, w.Body.String(), "Wiring Test")
		}
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestApp_WarmPrefetchesDataset(t *testing.T) {
	src, hits := upstream(t)
	cfg := testConfig(t, src.URL)
	a, err := newApp(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.warm(ctx, cfg, zap.NewNop())
	require.Equal(t, int32(1), hits.Load())

	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/heatmap.svg", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int32(1), hits.Load(), "request served from the warmed cache")
}

func TestApp_WarmWithIntervalFetchesOnceAtStartup(t *testing.T) {
	src, hits := upstream(t)
	cfg := testConfig(t, src.URL)
	cfg.WarmingInterval = time.Hour
	a, err := newApp(cfg, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.warm(ctx, cfg, zap.NewNop())

	assert.Never(t, func() bool { return hits.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond,
		"periodic refresh must wait for its first tick")
}

func TestNewApp_DevConfig(t *testing.T) {
	t.Setenv("ENV_NAME", "dev")
	t.Setenv("DATASET_URL", "")
	t.Setenv("CACHE_BACKEND", "")
	chdir(t, "../..")

	cfg, err := config.Load()
	require.NoError(t, err)
	_, err = newApp(cfg, zap.NewNop())
	assert.NoError(t, err)
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent to testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
}
