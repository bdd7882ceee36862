package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"retailsales/internal/services"
	api "retailsales/pkg/contracts/api/v1"
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

// HealthCheck handles GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := h.service.HealthCheck(r.Context())

	checks := make(map[string]string, len(status.Services))
	for name, svc := range status.Services {
		if sh, ok := svc.(services.ServiceHealth); ok {
			checks[name] = sh.Status
		}
	}

	render.JSON(w, r, api.HealthResponse{
		Status:  status.Status,
		Version: status.Version,
		Uptime:  h.service.Uptime().Round(time.Second).String(),
		Checks:  checks,
		Details: map[string]interface{}{
			"services": status.Services,
			"stats":    h.service.SystemStats(r.Context()),
		},
		Timestamp: status.Timestamp.UTC().Format(time.RFC3339),
	})
}

// ReadinessCheck handles GET /api/health/ready
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	status := h.service.ReadinessCheck(r.Context())
	if status.Status != "ready" {
		h.logger.WarnContext(r.Context(), "readiness check failed", slog.Any("services", status.Services))
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, status)
}

// LivenessCheck handles GET /api/health/live
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.LivenessCheck(r.Context()))
}

// Version handles GET /api/version
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.service.Version())
}
