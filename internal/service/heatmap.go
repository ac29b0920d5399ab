package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/temperature-heatmap-service/internal/heatmap"
	"github.com/kjstillabower/temperature-heatmap-service/internal/observability"
)

// HeatmapService serves the chart for one configured source. It rebuilds the
// layout only when the dataset revision changes, so the colour scale is
// computed once per dataset.
type HeatmapService struct {
	datasets heatmap.DatasetFetcher
	renderer *heatmap.Renderer
	source   string
	logger   *zap.Logger

	mu       sync.Mutex
	chart    *heatmap.Chart
	revision revision
}

type revision struct {
	fetchedAt time.Time
	stale     bool
}

// NewHeatmapService returns a service that charts source with renderer.
func NewHeatmapService(datasets heatmap.DatasetFetcher, renderer *heatmap.Renderer, source string, logger *zap.Logger) *HeatmapService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeatmapService{datasets: datasets, renderer: renderer, source: source, logger: logger}
}

// Source returns the configured dataset source.
func (h *HeatmapService) Source() string {
	return h.source
}

// Chart returns the chart for the current dataset. On a load failure no
// chart is returned, even if an older one was built.
func (h *HeatmapService) Chart(ctx context.Context) (*heatmap.Chart, error) {
	ds, err := h.datasets.GetDataset(ctx, h.source)
	if err != nil {
		return nil, err
	}
	rev := revision{fetchedAt: ds.FetchedAt, stale: ds.Stale}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.chart != nil && h.revision.fetchedAt.Equal(rev.fetchedAt) && h.revision.stale == rev.stale {
		return h.chart, nil
	}

	start := time.Now()
	chart, err := h.renderer.Build(ds)
	observability.ChartBuildDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.ChartBuildsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build chart for %s: %w", h.source, err)
	}
	observability.ChartBuildsTotal.WithLabelValues("success").Inc()
	observability.RenderedCells.Set(float64(len(chart.Cells)))
	observability.DatasetRecords.Set(float64(len(ds.MonthlyVariance)))

	h.logger.Info("heat map built",
		zap.String("source", h.source),
		zap.Int("cells", len(chart.Cells)),
		zap.Int("years", chart.Geometry.DistinctYears),
		zap.Bool("stale", ds.Stale),
		zap.Duration("duration", time.Since(start)))

	h.chart = chart
	h.revision = rev
	return chart, nil
}
