package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"
)

// MetricsHandler serves the Prometheus scrape endpoint. The handler itself
// comes from the observability bootstrap; when the metric exporter is
// disabled the endpoint answers 503 instead of an empty scrape.
type MetricsHandler struct {
	prometheus http.Handler
	logger     *slog.Logger
}

// NewMetricsHandler creates a new metrics handler around the Prometheus
// HTTP handler. A nil handler means metrics export is disabled.
func NewMetricsHandler(prometheus http.Handler, logger *slog.Logger) *MetricsHandler {
	return &MetricsHandler{
		prometheus: prometheus,
		logger:     logger.With(slog.String("handler", "metrics")),
	}
}

// ServeHTTP handles GET /metrics.
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.prometheus == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]interface{}{
			"error": "metrics export disabled",
		})
		return
	}
	h.prometheus.ServeHTTP(w, r)
}
