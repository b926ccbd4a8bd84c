package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/masimlabs/masim/internal/sandbox"
	"github.com/masimlabs/masim/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	repo   store.Repository
	runner sandbox.Runner
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(repo store.Repository, runner sandbox.Runner) *HealthHandler {
	return &HealthHandler{repo: repo, runner: runner}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := "healthy"
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "check", "database", "error", err)
		checks["database"] = "unreachable"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	if err := h.runner.Ping(ctx); err != nil {
		slog.Error("Health check failed", "check", "sandbox", "error", err)
		checks["sandbox"] = "unreachable"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["sandbox"] = "ok"
	}

	JSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"checks":    checks,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
