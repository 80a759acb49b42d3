package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// DBPinger reports durable store connectivity.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// BrokerChecker reports broker connectivity.
type BrokerChecker interface {
	HealthCheck() error
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	db        DBPinger
	broker    BrokerChecker
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates the probe handler.
func NewHealthHandler(db DBPinger, broker BrokerChecker, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		db:        db,
		broker:    broker,
		startedAt: time.Now(),
		logger:    logger.With("component", "health_handler"),
	}
}

// RegisterRoutes mounts the probe endpoints.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Liveness)
	r.Get("/readyz", h.Readiness)
}

// Liveness reports process uptime. It never checks dependencies.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(h.startedAt).Round(time.Second).String(),
	})
}

// Readiness checks the durable queue store and the broker; any failure turns
// the response into 503 degraded.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{
		"database": "ok",
		"broker":   "ok",
	}
	healthy := true

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			h.logger.WarnContext(ctx, "readiness database check failed", "error", err)
			checks["database"] = err.Error()
			healthy = false
		}
	}
	if h.broker != nil {
		if err := h.broker.HealthCheck(); err != nil {
			h.logger.WarnContext(ctx, "readiness broker check failed", "error", err)
			checks["broker"] = err.Error()
			healthy = false
		}
	}

	status := "ok"
	code := http.StatusOK
	if !healthy {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	respondWithJSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
