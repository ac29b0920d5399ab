package http

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/kjstillabower/temperature-heatmap-service/internal/heatmap"
	"github.com/kjstillabower/temperature-heatmap-service/internal/lifecycle"
	"github.com/kjstillabower/temperature-heatmap-service/internal/observability"
	"github.com/kjstillabower/temperature-heatmap-service/internal/render"
	"github.com/kjstillabower/temperature-heatmap-service/internal/service"
	"github.com/kjstillabower/temperature-heatmap-service/internal/traffic"
)

// ChartProvider returns the chart for the configured dataset.
type ChartProvider interface {
	Chart(ctx context.Context) (*heatmap.Chart, error)
	Source() string
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	OverloadWindow       time.Duration
	OverloadThresholdPct int
	RateLimitRPS         int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
	// CachePing, when set, reports cache reachability. Set for memcached.
	CachePing func() error
	// UpstreamPing, when set, reports whether the dataset source answers.
	UpstreamPing func(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	charts           ChartProvider
	healthConfig     *HealthConfig
	logger           *zap.Logger
	page             render.HTMLOptions
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler. healthConfig may be nil.
func NewHandler(charts ChartProvider, healthConfig *HealthConfig, logger *zap.Logger, page render.HTMLOptions) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		charts:       charts,
		healthConfig: healthConfig,
		logger:       logger,
		page:         page,
	}
}

// chart loads the current chart and records the outcome for /health. On
// failure it writes the error response and returns nil.
func (h *Handler) chart(w http.ResponseWriter, r *http.Request) *heatmap.Chart {
	c, err := h.charts.Chart(r.Context())
	if err != nil {
		traffic.RecordError()
		writeServiceError(w, r, err)
		return nil
	}
	traffic.RecordSuccess()
	if c.Dataset.Stale {
		w.Header().Set("Warning", `110 - "dataset is stale"`)
	}
	return c
}

// GetPage handles GET / and GET /heatmap.
func (h *Handler) GetPage(w http.ResponseWriter, r *http.Request) {
	h.serveChart(w, r, render.FormatHTML)
}

// GetSVG handles GET /heatmap.svg.
func (h *Handler) GetSVG(w http.ResponseWriter, r *http.Request) {
	h.serveChart(w, r, render.FormatSVG)
}

// GetPNG handles GET /heatmap.png.
func (h *Handler) GetPNG(w http.ResponseWriter, r *http.Request) {
	h.serveChart(w, r, render.FormatPNG)
}

// serveChart renders into a buffer first so a render failure never leaves a
// half-written body.
func (h *Handler) serveChart(w http.ResponseWriter, r *http.Request, f render.Format) {
	c := h.chart(w, r)
	if c == nil {
		return
	}

	var buf bytes.Buffer
	start := time.Now()
	var err error
	if f == render.FormatHTML {
		err = render.WriteHTML(&buf, c, h.page)
	} else {
		err = render.Write(&buf, c, f)
	}
	observability.RenderDuration.WithLabelValues(string(f)).Observe(time.Since(start).Seconds())
	if err != nil {
		if logger := observability.LoggerFromContext(r.Context()); logger != nil {
			logger.Error("render failed", zap.String("format", string(f)), zap.Error(err))
		}
		writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "Unable to render chart")
		return
	}

	w.Header().Set("Content-Type", f.ContentType())
	w.Header().Set("Cache-Control", "public, max-age=300")
	w.Header().Set("Last-Modified", c.Dataset.FetchedAt.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type layoutResponse struct {
	Source    string                `json:"source"`
	FetchedAt time.Time             `json:"fetchedAt"`
	Stale     bool                  `json:"stale"`
	Width     float64               `json:"width"`
	Height    float64               `json:"height"`
	Margin    heatmap.Margin        `json:"margin"`
	Geometry  heatmap.Geometry      `json:"geometry"`
	Extrema   heatmap.Extrema       `json:"extrema"`
	Quantiles []float64             `json:"quantiles"`
	Colors    []string              `json:"colors"`
	Legend    heatmap.Legend        `json:"legend"`
	Axes      heatmap.Axes          `json:"axes"`
	CellCount int                   `json:"cellCount"`
	Tooltip   heatmap.TooltipConfig `json:"tooltip"`
}

// GetLayout handles GET /heatmap/layout: the computed chart without drawing it.
func (h *Handler) GetLayout(w http.ResponseWriter, r *http.Request) {
	c := h.chart(w, r)
	if c == nil {
		return
	}
	writeJSON(w, http.StatusOK, layoutResponse{
		Source:    h.charts.Source(),
		FetchedAt: c.Dataset.FetchedAt,
		Stale:     c.Dataset.Stale,
		Width:     c.Config.Width,
		Height:    c.Config.Height,
		Margin:    c.Config.Margin,
		Geometry:  c.Geometry,
		Extrema:   c.Extrema,
		Quantiles: c.Scale.Quantiles(),
		Colors:    c.Scale.Colors(),
		Legend:    c.Legend,
		Axes:      c.Axes,
		CellCount: len(c.Cells),
		Tooltip:   c.Config.Tooltip,
	})
}

type tooltipResponse struct {
	Cell    heatmap.Cell        `json:"cell"`
	Text    string              `json:"text"`
	Tooltip heatmap.TooltipView `json:"tooltip"`
}

// GetTooltip handles GET /heatmap/tooltip?year=&month=. It replays a hover
// over the cell's centre in a per-request session and returns what the
// tooltip would show.
func (h *Handler) GetTooltip(w http.ResponseWriter, r *http.Request) {
	year, yerr := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	month, merr := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("month")))
	if yerr != nil || merr != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "year and month must be integers")
		return
	}
	if month < 1 || month > 12 {
		writeError(w, r, http.StatusBadRequest, "INVALID_PARAMETER", "month must be between 1 and 12")
		return
	}

	c := h.chart(w, r)
	if c == nil {
		return
	}
	idx, ok := c.FindCell(year, month)
	if !ok {
		writeError(w, r, http.StatusNotFound, "RECORD_NOT_FOUND", "no record for "+strconv.Itoa(year)+"-"+strconv.Itoa(month))
		return
	}
	cell := c.Cells[idx]

	tip := heatmap.NewTooltip(c.Config, c.Dataset.BaseTemperature)
	session := c.Session()
	tip.Bind(session)
	pointer := heatmap.Point{
		X: c.Config.Margin.Left + cell.X + cell.Width/2,
		Y: c.Config.Margin.Top + cell.Y + cell.Height/2,
	}
	if err := session.Hover(heatmap.HoverEnter, idx, pointer); err != nil {
		writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "Unable to replay hover")
		return
	}
	view := tip.View()
	writeJSON(w, http.StatusOK, tooltipResponse{Cell: cell, Text: view.Content.String(), Tooltip: view})
}

type rangeInt struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

type temperatureStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stdDev"`
}

type summaryResponse struct {
	Source          string           `json:"source"`
	FetchedAt       time.Time        `json:"fetchedAt"`
	Stale           bool             `json:"stale"`
	Records         int              `json:"records"`
	BaseTemperature float64          `json:"baseTemperature"`
	Years           rangeInt         `json:"years"`
	Temperature     temperatureStats `json:"temperature"`
	Variance        temperatureStats `json:"variance"`
}

// GetDatasetSummary handles GET /dataset/summary.
func (h *Handler) GetDatasetSummary(w http.ResponseWriter, r *http.Request) {
	c := h.chart(w, r)
	if c == nil {
		return
	}
	ds := c.Dataset
	temps := ds.Temperatures()
	variances := make([]float64, len(ds.MonthlyVariance))
	for i, rec := range ds.MonthlyVariance {
		variances[i] = rec.Variance
	}
	tMean, tStd := stat.MeanStdDev(temps, nil)
	vMean, vStd := stat.MeanStdDev(variances, nil)

	writeJSON(w, http.StatusOK, summaryResponse{
		Source:          h.charts.Source(),
		FetchedAt:       ds.FetchedAt,
		Stale:           ds.Stale,
		Records:         len(ds.MonthlyVariance),
		BaseTemperature: ds.BaseTemperature,
		Years:           rangeInt{Min: c.Extrema.MinYear, Max: c.Extrema.MaxYear},
		Temperature:     temperatureStats{Min: c.Extrema.MinTemperature, Max: c.Extrema.MaxTemperature, Mean: tMean, StdDev: nanToZero(tStd)},
		Variance:        temperatureStats{Min: c.Extrema.MinVariance, Max: c.Extrema.MaxVariance, Mean: vMean, StdDev: nanToZero(vStd)},
	})
}

// nanToZero maps the undefined sample deviation of a single value to 0 so it
// survives JSON encoding.
func nanToZero(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result, checks := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	writeJSON(w, result.statusCode, map[string]interface{}{
		"status":    result.status,
		"service":   "temperature-heatmap-service",
		"version":   "dev",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// computeHealthStatus evaluates, in order: shutting-down, upstream
// unreachable, overloaded, degraded (error rate), healthy.
func (h *Handler) computeHealthStatus(ctx context.Context) (healthResult, map[string]string) {
	checks := map[string]string{"dataset": "healthy"}
	hc := h.healthConfig
	if hc != nil && hc.CachePing != nil {
		checks["cache"] = "healthy"
		if hc.CachePing() != nil {
			checks["cache"] = "unhealthy"
		}
	}

	if lifecycle.IsShuttingDown() {
		why := lifecycle.Reason()
		if why == "" {
			why = "signal"
		}
		return healthResult{"shutting-down", http.StatusServiceUnavailable, why}, checks
	}
	if hc == nil {
		return healthResult{"healthy", http.StatusOK, ""}, checks
	}
	if hc.UpstreamPing != nil {
		if err := hc.UpstreamPing(ctx); err != nil {
			checks["dataset"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "upstream_unreachable"}, checks
		}
	}
	if hc.RateLimitRPS > 0 && hc.OverloadWindow > 0 {
		threshold := float64(hc.RateLimitRPS) * hc.OverloadWindow.Seconds() * float64(hc.OverloadThresholdPct) / 100
		if float64(traffic.Window(hc.OverloadWindow).Total()) > threshold {
			return healthResult{"overloaded", http.StatusServiceUnavailable, "overload_threshold"}, checks
		}
	}
	if hc.DegradedWindow > 0 && hc.DegradedErrorPct > 0 {
		counts := traffic.Window(hc.DegradedWindow)
		if counts.Success+counts.Errors > 0 && counts.ErrorPercent() >= float64(hc.DegradedErrorPct) {
			checks["dataset"] = "unhealthy"
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}, checks
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}, checks
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the standard error envelope with the request's correlation id.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": observability.CorrelationID(r.Context()),
		},
	})
}

// writeServiceError maps a dataset load failure: an unusable document is a
// bad gateway, anything else means the upstream is unavailable.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := observability.LoggerFromContext(r.Context())
	if service.IsInvalidDataset(err) {
		writeError(w, r, http.StatusBadGateway, "INVALID_DATASET", "Dataset could not be charted")
		if logger != nil {
			logger.Warn("invalid dataset", zap.Error(err))
		}
		return
	}
	writeError(w, r, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE", "Unable to fetch temperature dataset")
	if logger != nil {
		logger.Debug("upstream error", zap.Error(err))
	}
}
