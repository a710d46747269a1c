package api

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/phrazzld/jobpipe/internal/api/shared"
	"github.com/phrazzld/jobpipe/internal/store"
)

// readinessTimeout bounds each backend ping.
const readinessTimeout = 2 * time.Second

// ReadinessResponse reports per-backend reachability.
type ReadinessResponse struct {
	Status   string            `json:"status"`
	Backends map[string]string `json:"backends"`
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	pingers map[string]store.Pinger
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler. pingers may be empty, in which
// case readiness reflects liveness only.
func NewHealthHandler(pingers map[string]store.Pinger, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		pingers: pingers,
		logger:  logger.With(slog.String("component", "health_handler")),
	}
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("failed to write health check response", "error", err)
	}
}

// Ready handles GET /ready by pinging every configured backend.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.pingers))
	for name := range h.pingers {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := ReadinessResponse{Status: "ok", Backends: make(map[string]string, len(names))}
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		err := h.pingers[name].Ping(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("backend not ready", "backend", name, "error", err)
			resp.Status = "unavailable"
			resp.Backends[name] = "unavailable"
			continue
		}
		resp.Backends[name] = "ok"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	shared.RespondWithJSON(w, r, status, resp)
}
