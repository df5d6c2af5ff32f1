package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/quantpair/pairgate/internal/domain"
)

// CacheMaintenance defines the store operations the cache handler needs.
type CacheMaintenance interface {
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	Stats(ctx context.Context, now time.Time) (domain.CacheStats, error)
}

// ExpiredArchiver exports expired entries before they are swept.
type ExpiredArchiver interface {
	ArchiveExpired(ctx context.Context, now time.Time) (int64, error)
}

// CacheHandler serves cache maintenance endpoints.
type CacheHandler struct {
	cache    CacheMaintenance // nil when caching is disabled
	archiver ExpiredArchiver  // nil when no blob store is configured
	logger   *slog.Logger
}

// NewCacheHandler creates a CacheHandler. Both the store and the archiver
// may be nil.
func NewCacheHandler(cache CacheMaintenance, archiver ExpiredArchiver, logger *slog.Logger) *CacheHandler {
	return &CacheHandler{
		cache:    cache,
		archiver: archiver,
		logger:   logger,
	}
}

// Cleanup archives (when configured) and deletes all expired cache entries.
// POST /cache/cleanup
func (h *CacheHandler) Cleanup(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		writeError(w, http.StatusServiceUnavailable, domain.ErrCacheDisabled.Error())
		return
	}

	ctx := r.Context()
	now := time.Now()

	var archived int64
	if h.archiver != nil {
		n, err := h.archiver.ArchiveExpired(ctx, now)
		if err != nil {
			// Abort the sweep so no entry is deleted unarchived.
			h.logger.ErrorContext(ctx, "handler: archive expired failed",
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "archive of expired entries failed")
			return
		}
		archived = n
	}

	deleted, err := h.cache.SweepExpired(ctx, now)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: sweep expired failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "cache cleanup failed")
		return
	}

	body := map[string]any{
		"deleted":   deleted,
		"archived":  archived,
		"remaining": nil,
	}
	if stats, err := h.cache.Stats(ctx, now); err == nil {
		body["remaining"] = stats
	} else {
		h.logger.WarnContext(ctx, "handler: cache stats failed",
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusOK, body)
}
