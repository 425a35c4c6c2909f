package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"divrec/internal/services"
)

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	service *services.HealthService
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(service *services.HealthService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// Routes returns the health routes.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/", h.HealthCheck)
	r.Get("/ready", h.ReadinessCheck)
	r.Get("/live", h.LivenessCheck)
	r.Get("/detailed", h.DetailedHealth)

	return r
}

// HealthCheck handles GET /api/v1/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.HealthCheck(r.Context()))
}

// ReadinessCheck handles GET /api/v1/health/ready. Not-ready answers 503 so
// orchestrators hold traffic until the universe is loaded.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := h.service.ReadinessCheck(r.Context())
	if status.Status != "ready" {
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}

// LivenessCheck handles GET /api/v1/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.LivenessCheck(r.Context()))
}

// DetailedHealth handles GET /api/v1/health/detailed
func (h *HealthHandler) DetailedHealth(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.GetDetailedHealth(r.Context()))
}

// Version handles GET /api/v1/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}

// SystemStats handles GET /api/v1/stats
func (h *HealthHandler) SystemStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.SystemStats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to collect system stats",
			slog.String("error", err.Error()))
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]interface{}{
			"error": err.Error(),
		})
		return
	}
	render.JSON(w, r, stats)
}
