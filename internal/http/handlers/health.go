package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/mentalcare-crisis-engine/pkg/logging"
)

// HealthCheck is one dependency probe, such as a Postgres or Redis ping.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports process and dependency health.
type HealthHandler struct {
	checks  map[string]HealthCheck
	timeout time.Duration
	logger  *logging.Logger
}

func NewHealthHandler(checks map[string]HealthCheck, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{checks: checks, timeout: 2 * time.Second, logger: logger}
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Check handles GET /health. Any failing probe turns the response into a 503.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK
	if len(h.checks) > 0 {
		resp.Checks = make(map[string]string, len(h.checks))
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				h.logger.Warn("health check failed", "check", name, "error", err)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}
	writeJSON(w, status, resp)
}
