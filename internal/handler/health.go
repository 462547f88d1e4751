package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	redisinfra "github.com/aryan0dhankhar/identityhub/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/identityhub/internal/respond"
	"github.com/aryan0dhankhar/identityhub/pkg/database"
)

// HealthHandler exposes liveness and readiness probes.
type HealthHandler struct {
	db     *database.ConnectionPool
	redis  *redisinfra.Client
	logger *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.ConnectionPool, redisClient *redisinfra.Client, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		db:     db,
		redis:  redisClient,
		logger: logger,
	}
}

// Liveness handles GET /api/v1/health/liveness
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(map[string]bool{"status": true}).
		SetStatus(respond.StatusSuccess).
		Build()
}

// Readiness handles GET /api/v1/health/readiness. The status flag
// reports dependency health; the HTTP status stays 200 either way.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	ready := true
	if err := h.db.Health(ctx); err != nil {
		h.logger.Warn("database not ready", slog.String("error", err.Error()))
		ready = false
	}
	if err := h.redis.Ping(ctx); err != nil {
		h.logger.Warn("redis not ready", slog.String("error", err.Error()))
		ready = false
	}

	respond.New(w).
		SetMeta(respond.QueryMeta(r)).
		SetResult(map[string]bool{"status": ready}).
		SetStatus(respond.StatusSuccess).
		Build()
}
