package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantpair/pairgate/internal/domain"
)

// AnalysisCacheStore implements domain.AnalysisCacheStore on PostgreSQL.
type AnalysisCacheStore struct {
	pool *pgxpool.Pool
}

// NewAnalysisCacheStore creates a store backed by the given connection pool.
func NewAnalysisCacheStore(pool *pgxpool.Pool) *AnalysisCacheStore {
	return &AnalysisCacheStore{pool: pool}
}

func storageErr(op string, err error) error {
	return &domain.StorageError{Op: op, Err: err}
}

// GetIfValid returns the entry for key only when it has not expired at the
// given instant. Expired rows are left in place for the sweep to remove.
func (s *AnalysisCacheStore) GetIfValid(ctx context.Context, key string, now time.Time) (domain.CacheEntry, error) {
	const query = `
		SELECT pair_key, symbol_a, symbol_b, metrics, analysis, created_at, expires_at
		FROM analysis_cache
		WHERE pair_key = $1 AND expires_at > $2`

	var (
		entry        domain.CacheEntry
		metricsJSON  []byte
		analysisJSON []byte
	)
	err := s.pool.QueryRow(ctx, query, key, now).Scan(
		&entry.PairKey, &entry.SymbolA, &entry.SymbolB,
		&metricsJSON, &analysisJSON,
		&entry.CreatedAt, &entry.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.CacheEntry{}, domain.ErrNotFound
		}
		return domain.CacheEntry{}, storageErr("get", err)
	}

	if err := json.Unmarshal(metricsJSON, &entry.Metrics); err != nil {
		return domain.CacheEntry{}, storageErr("get", fmt.Errorf("decode metrics for %s: %w", key, err))
	}
	if err := json.Unmarshal(analysisJSON, &entry.Analysis); err != nil {
		return domain.CacheEntry{}, storageErr("get", fmt.Errorf("decode analysis for %s: %w", key, err))
	}
	return entry, nil
}

// Upsert inserts or replaces the row for entry.PairKey in a single
// statement. The UNIQUE constraint plus ON CONFLICT keeps concurrent writers
// from creating duplicate rows; last writer wins.
func (s *AnalysisCacheStore) Upsert(ctx context.Context, entry domain.CacheEntry) error {
	metricsJSON, err := json.Marshal(entry.Metrics)
	if err != nil {
		return storageErr("upsert", fmt.Errorf("encode metrics for %s: %w", entry.PairKey, err))
	}
	analysisJSON, err := json.Marshal(entry.Analysis)
	if err != nil {
		return storageErr("upsert", fmt.Errorf("encode analysis for %s: %w", entry.PairKey, err))
	}

	const query = `
		INSERT INTO analysis_cache (pair_key, symbol_a, symbol_b, metrics, analysis, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (pair_key) DO UPDATE SET
			symbol_a   = EXCLUDED.symbol_a,
			symbol_b   = EXCLUDED.symbol_b,
			metrics    = EXCLUDED.metrics,
			analysis   = EXCLUDED.analysis,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at`

	_, err = s.pool.Exec(ctx, query,
		entry.PairKey, entry.SymbolA, entry.SymbolB,
		metricsJSON, analysisJSON,
		entry.CreatedAt, entry.ExpiresAt,
	)
	if err != nil {
		return storageErr("upsert", err)
	}
	return nil
}

// SweepExpired deletes every row whose expiry is at or before now and
// returns the number removed. Safe to run concurrently with reads/writes.
func (s *AnalysisCacheStore) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM analysis_cache WHERE expires_at <= $1", now)
	if err != nil {
		return 0, storageErr("sweep", err)
	}
	return tag.RowsAffected(), nil
}

// ListExpired returns the rows a sweep would remove, for archival.
func (s *AnalysisCacheStore) ListExpired(ctx context.Context, now time.Time) ([]domain.CacheEntry, error) {
	const query = `
		SELECT pair_key, symbol_a, symbol_b, metrics, analysis, created_at, expires_at
		FROM analysis_cache
		WHERE expires_at <= $1
		ORDER BY expires_at`

	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, storageErr("list expired", err)
	}
	defer rows.Close()

	var entries []domain.CacheEntry
	for rows.Next() {
		var (
			entry        domain.CacheEntry
			metricsJSON  []byte
			analysisJSON []byte
		)
		if err := rows.Scan(
			&entry.PairKey, &entry.SymbolA, &entry.SymbolB,
			&metricsJSON, &analysisJSON,
			&entry.CreatedAt, &entry.ExpiresAt,
		); err != nil {
			return nil, storageErr("list expired", err)
		}
		if err := json.Unmarshal(metricsJSON, &entry.Metrics); err != nil {
			return nil, storageErr("list expired", fmt.Errorf("decode metrics for %s: %w", entry.PairKey, err))
		}
		if err := json.Unmarshal(analysisJSON, &entry.Analysis); err != nil {
			return nil, storageErr("list expired", fmt.Errorf("decode analysis for %s: %w", entry.PairKey, err))
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list expired", err)
	}
	return entries, nil
}

// Stats counts total and still-valid rows in one query.
func (s *AnalysisCacheStore) Stats(ctx context.Context, now time.Time) (domain.CacheStats, error) {
	const query = `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE expires_at > $1)
		FROM analysis_cache`

	var stats domain.CacheStats
	if err := s.pool.QueryRow(ctx, query, now).Scan(&stats.Total, &stats.Valid); err != nil {
		return domain.CacheStats{}, storageErr("stats", err)
	}
	stats.Expired = stats.Total - stats.Valid
	return stats, nil
}

// Compile-time interface check.
var _ domain.AnalysisCacheStore = (*AnalysisCacheStore)(nil)
