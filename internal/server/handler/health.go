package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantpair/pairgate/internal/domain"
)

// HealthInfo describes the runtime facts the health endpoint reports.
type HealthInfo struct {
	AgentRunning bool
	AgentAddress string
}

// StatsSource provides cache statistics for the health report.
type StatsSource interface {
	Stats(ctx context.Context, now time.Time) (domain.CacheStats, error)
}

// Availability reports which optional pipeline stages are configured.
type Availability interface {
	CacheEnabled() bool
	ReasonerAvailable() bool
}

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	avail  Availability
	stats  StatsSource // nil when caching is disabled
	info   HealthInfo
	logger *slog.Logger
}

// NewHealthHandler creates a HealthHandler. stats may be nil when no cache
// store is configured.
func NewHealthHandler(avail Availability, stats StatsSource, info HealthInfo, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		avail:  avail,
		stats:  stats,
		info:   info,
		logger: logger,
	}
}

// HealthCheck reports service liveness plus the state of the optional
// subsystems. Cache statistics failures degrade to a null stats field rather
// than failing the probe.
// GET /health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":             "ok",
		"timestamp":          time.Now().UTC().Format(time.RFC3339),
		"agent_running":      h.info.AgentRunning,
		"agent_address":      h.info.AgentAddress,
		"cache_enabled":      h.avail.CacheEnabled(),
		"reasoner_available": h.avail.ReasonerAvailable(),
		"cache_stats":        nil,
	}

	if h.stats != nil {
		stats, err := h.stats.Stats(r.Context(), time.Now())
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: cache stats failed",
				slog.String("error", err.Error()),
			)
			body["cache_stats"] = nil
		} else {
			body["cache_stats"] = stats
		}
	}

	writeJSON(w, http.StatusOK, body)
}
