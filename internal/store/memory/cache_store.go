// Package memory implements the analysis cache store as a mutex-guarded map.
// It backs the "memory" cache backend and the cache behavior tests; the
// semantics mirror the PostgreSQL store exactly.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/quantpair/pairgate/internal/domain"
)

// AnalysisCacheStore implements domain.AnalysisCacheStore in process memory.
type AnalysisCacheStore struct {
	mu      sync.RWMutex
	entries map[string]domain.CacheEntry
}

// NewAnalysisCacheStore creates an empty in-memory store.
func NewAnalysisCacheStore() *AnalysisCacheStore {
	return &AnalysisCacheStore{entries: make(map[string]domain.CacheEntry)}
}

// GetIfValid returns the entry only when it is unexpired at the given
// instant. Expired entries are treated as absent but remain stored.
func (s *AnalysisCacheStore) GetIfValid(ctx context.Context, key string, now time.Time) (domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	if !ok || !entry.Valid(now) {
		return domain.CacheEntry{}, domain.ErrNotFound
	}
	return entry, nil
}

// Upsert replaces the entry for its key; the map key guarantees uniqueness
// and last writer wins under concurrency.
func (s *AnalysisCacheStore) Upsert(ctx context.Context, entry domain.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.PairKey] = entry
	return nil
}

// SweepExpired removes every entry expired at the given instant and returns
// the count removed.
func (s *AnalysisCacheStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for key, entry := range s.entries {
		if !entry.Valid(now) {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}

// ListExpired returns the entries a sweep would remove.
func (s *AnalysisCacheStore) ListExpired(ctx context.Context, now time.Time) ([]domain.CacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []domain.CacheEntry
	for _, entry := range s.entries {
		if !entry.Valid(now) {
			expired = append(expired, entry)
		}
	}
	return expired, nil
}

// Stats counts total and still-valid entries.
func (s *AnalysisCacheStore) Stats(ctx context.Context, now time.Time) (domain.CacheStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.CacheStats{Total: int64(len(s.entries))}
	for _, entry := range s.entries {
		if entry.Valid(now) {
			stats.Valid++
		}
	}
	stats.Expired = stats.Total - stats.Valid
	return stats, nil
}

// Compile-time interface check.
var _ domain.AnalysisCacheStore = (*AnalysisCacheStore)(nil)
