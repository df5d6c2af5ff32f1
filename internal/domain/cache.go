package domain

import (
	"context"
	"time"
)

// CacheEntry is one memoized analysis for a pair key. The key uniquely
// identifies at most one live row; upserts replace the payload in place and
// refresh both timestamps.
type CacheEntry struct {
	PairKey   string
	SymbolA   string
	SymbolB   string
	Metrics   MetricsRecord
	Analysis  AnalysisRecord
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Valid reports whether the entry is still live at the given instant.
// Expired entries stay in storage until an explicit sweep removes them.
func (e CacheEntry) Valid(now time.Time) bool {
	return now.Before(e.ExpiresAt)
}

// CacheStats summarizes the cache table contents.
type CacheStats struct {
	Total   int64 `json:"total_entries"`
	Valid   int64 `json:"valid_entries"`
	Expired int64 `json:"expired_entries"`
}

// AnalysisCacheStore persists analysis results keyed by pair key.
//
// GetIfValid returns ErrNotFound for both missing and expired rows; expired
// rows are never deleted on read. All infrastructure failures are reported
// as *StorageError.
type AnalysisCacheStore interface {
	GetIfValid(ctx context.Context, key string, now time.Time) (CacheEntry, error)
	Upsert(ctx context.Context, entry CacheEntry) error
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	ListExpired(ctx context.Context, now time.Time) ([]CacheEntry, error)
	Stats(ctx context.Context, now time.Time) (CacheStats, error)
}
