package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agiraud1/radar-fr/internal/adapters/repository"
	"github.com/agiraud1/radar-fr/pkg/metrics"
)

// HealthChecker reports the state of the backing store.
type HealthChecker interface {
	Health(ctx context.Context) repository.Health
}

// HealthHandler serves liveness metrics and readiness.
type HealthHandler struct {
	checker HealthChecker
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(checker HealthChecker) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleMetrics handles GET /healthz with the Prometheus exposition.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

// HandleReady handles GET /readyz; 503 when the store is unreachable.
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	status := h.checker.Health(r.Context())
	code := http.StatusOK
	if !status.Healthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
