package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kjstillabower/temperature-heatmap-service/internal/observability"
)

// RouterOptions configures the chart routes' middleware.
type RouterOptions struct {
	RequestTimeout time.Duration
	Limiter        *rate.Limiter // nil disables rate limiting
}

// NewRouter mounts every route. Chart and dataset routes are rate limited and
// time-bounded; /health and /metrics are not.
func NewRouter(h *Handler, logger *zap.Logger, opts RouterOptions) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	charts := router.NewRoute().Subrouter()
	charts.Use(RateLimitMiddleware(opts.Limiter))
	if opts.RequestTimeout > 0 {
		charts.Use(TimeoutMiddleware(opts.RequestTimeout))
	}
	charts.HandleFunc("/", h.GetPage).Methods(http.MethodGet)
	charts.HandleFunc("/heatmap", h.GetPage).Methods(http.MethodGet)
	charts.HandleFunc("/heatmap.svg", h.GetSVG).Methods(http.MethodGet)
	charts.HandleFunc("/heatmap.png", h.GetPNG).Methods(http.MethodGet)
	charts.HandleFunc("/heatmap/layout", h.GetLayout).Methods(http.MethodGet)
	charts.HandleFunc("/heatmap/tooltip", h.GetTooltip).Methods(http.MethodGet)
	charts.HandleFunc("/dataset/summary", h.GetDatasetSummary).Methods(http.MethodGet)
	return router
}
