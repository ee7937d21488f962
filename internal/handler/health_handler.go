package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const healthCheckTimeout = 2 * time.Second

// DatabaseChecker reports whether the user store is reachable.
type DatabaseChecker interface {
	Health(ctx context.Context) error
}

// CacheChecker reports whether the session cache is reachable.
type CacheChecker interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /health.
type HealthHandler struct {
	db     DatabaseChecker
	cache  CacheChecker
	logger zerolog.Logger
}

// NewHealthHandler creates a new HealthHandler. cache may be nil.
func NewHealthHandler(db DatabaseChecker, cache CacheChecker, logger zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		cache:  cache,
		logger: logger.With().Str("handler", "health").Logger(),
	}
}

// Health pings the store and the cache.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	healthy := true

	if err := h.db.Health(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("database health check failed")
		checks["database"] = "unavailable"
		healthy = false
	}

	if h.cache != nil {
		checks["cache"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn().Err(err).Msg("cache health check failed")
			checks["cache"] = "unavailable"
			healthy = false
		}
	}

	if !healthy {
		writeJSON(w, http.StatusServiceUnavailable, Response{Success: false, Message: "unhealthy", Data: checks})
		return
	}
	writeSuccess(w, http.StatusOK, "healthy", checks)
}
