package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports store connectivity.
type HealthHandler struct {
	store Pinger
}

// NewHealthHandler creates a HealthHandler.
func NewHealthHandler(store Pinger) *HealthHandler {
	return &HealthHandler{store: store}
}

// RegisterRoutes registers the health route on the /api router.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		slog.Warn("health check failed", "error", err)
		JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
