package analyzer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpair/pairgate/internal/domain"
	"github.com/quantpair/pairgate/internal/store/memory"
)

type fakeFetcher struct {
	rec   domain.MetricsRecord
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _, _ string, _ int) (domain.MetricsRecord, error) {
	f.calls++
	return f.rec, f.err
}

type fakeReasoner struct {
	rec   domain.AnalysisRecord
	err   error
	calls int
}

func (f *fakeReasoner) AnalyzePair(_ context.Context, _, _ string, _ domain.MetricsRecord, _ float64) (domain.AnalysisRecord, error) {
	f.calls++
	return f.rec, f.err
}

// brokenStore fails every operation with a storage error.
type brokenStore struct{}

func (brokenStore) GetIfValid(context.Context, string, time.Time) (domain.CacheEntry, error) {
	return domain.CacheEntry{}, &domain.StorageError{Op: "get", Err: errors.New("connection refused")}
}
func (brokenStore) Upsert(context.Context, domain.CacheEntry) error {
	return &domain.StorageError{Op: "upsert", Err: errors.New("connection refused")}
}
func (brokenStore) SweepExpired(context.Context, time.Time) (int64, error) {
	return 0, &domain.StorageError{Op: "sweep", Err: errors.New("connection refused")}
}
func (brokenStore) ListExpired(context.Context, time.Time) ([]domain.CacheEntry, error) {
	return nil, &domain.StorageError{Op: "list", Err: errors.New("connection refused")}
}
func (brokenStore) Stats(context.Context, time.Time) (domain.CacheStats, error) {
	return domain.CacheStats{}, &domain.StorageError{Op: "stats", Err: errors.New("connection refused")}
}

// writeOnlyBrokenStore misses on reads but fails writes.
type writeOnlyBrokenStore struct{ brokenStore }

func (writeOnlyBrokenStore) GetIfValid(context.Context, string, time.Time) (domain.CacheEntry, error) {
	return domain.CacheEntry{}, domain.ErrNotFound
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() domain.MetricsRecord {
	return domain.MetricsRecord{ZScore: 2.1, Correlation: 0.9, SpreadStd: 0.004, Beta: 1.1, Volatility: 0.02}
}

func testAnalysis() domain.AnalysisRecord {
	return domain.AnalysisRecord{
		Signal: domain.SignalLong, Confidence: 0.8, Reasoning: "spread stretched",
		RiskLevel: domain.RiskMedium, KeyFactors: []string{"z-score"},
		EntryRecommendation: "scale in",
	}
}

func TestAnalyze_CacheMissThenHit(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAnalysisCacheStore()
	fetcher := &fakeFetcher{rec: testMetrics()}
	reasoner := &fakeReasoner{rec: testAnalysis()}

	o := New(Config{TTL: 24 * time.Hour}, store, fetcher, reasoner, nil, discardLogger())
	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return base }

	first, err := o.Analyze(ctx, "BTC", "ETH", 0)
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, "BTC-PERP", first.SymbolA)
	assert.Equal(t, "ETH-PERP", first.SymbolB)
	assert.Nil(t, first.CachedAt)
	assert.Equal(t, 1, reasoner.calls)

	o.now = func() time.Time { return base.Add(time.Hour) }
	second, err := o.Analyze(ctx, "BTC", "ETH", 0)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, 1, reasoner.calls, "cache hit must not re-run the reasoner")
	assert.Equal(t, 1, fetcher.calls, "cache hit must not re-fetch metrics")
	require.NotNil(t, second.CachedAt)
	assert.Equal(t, base, *second.CachedAt)
	require.NotNil(t, second.ExpiresAt)
	assert.Equal(t, base.Add(24*time.Hour), *second.ExpiresAt)
	assert.Equal(t, first.Analysis, second.Analysis)
}

func TestAnalyze_ExpiredEntryTriggersRecompute(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAnalysisCacheStore()
	fetcher := &fakeFetcher{rec: testMetrics()}
	reasoner := &fakeReasoner{rec: testAnalysis()}

	o := New(Config{TTL: time.Hour}, store, fetcher, reasoner, nil, discardLogger())
	base := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return base }

	_, err := o.Analyze(ctx, "SOL", "ETH", 0)
	require.NoError(t, err)

	o.now = func() time.Time { return base.Add(2 * time.Hour) }
	res, err := o.Analyze(ctx, "SOL", "ETH", 0)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, reasoner.calls)
}

func TestAnalyze_UnsupportedPairShortCircuits(t *testing.T) {
	fetcher := &fakeFetcher{rec: testMetrics()}
	reasoner := &fakeReasoner{rec: testAnalysis()}
	o := New(Config{}, memory.NewAnalysisCacheStore(), fetcher, reasoner, nil, discardLogger())

	_, err := o.Analyze(context.Background(), "DOGE", "SHIB", 0)

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "DOGE/SHIB", verr.Requested)
	assert.Equal(t, 0, fetcher.calls)
	assert.Equal(t, 0, reasoner.calls)
}

func TestAnalyze_KeyIsOrderSensitive(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAnalysisCacheStore()
	reasoner := &fakeReasoner{rec: testAnalysis()}
	o := New(Config{}, store, &fakeFetcher{rec: testMetrics()}, reasoner, nil, discardLogger())

	_, err := o.Analyze(ctx, "BTC", "ETH", 0)
	require.NoError(t, err)
	res, err := o.Analyze(ctx, "ETH", "BTC", 0)
	require.NoError(t, err)

	assert.False(t, res.Cached, "(B,A) must not hit the (A,B) cache entry")
	assert.Equal(t, 2, reasoner.calls)
}

func TestAnalyze_CacheReadFailure(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{rec: testMetrics()}
	reasoner := &fakeReasoner{rec: testAnalysis()}

	t.Run("degrade continues without cache", func(t *testing.T) {
		o := New(Config{Policy: FailDegrade}, brokenStore{}, fetcher, reasoner, nil, discardLogger())
		res, err := o.Analyze(ctx, "BTC", "ETH", 0)
		require.NoError(t, err)
		assert.False(t, res.Cached)
	})

	t.Run("strict surfaces the storage error", func(t *testing.T) {
		o := New(Config{Policy: FailStrict}, brokenStore{}, fetcher, reasoner, nil, discardLogger())
		_, err := o.Analyze(ctx, "BTC", "ETH", 0)
		var serr *domain.StorageError
		require.ErrorAs(t, err, &serr)
	})
}

func TestAnalyze_CacheWriteFailure(t *testing.T) {
	ctx := context.Background()
	fetcher := &fakeFetcher{rec: testMetrics()}
	reasoner := &fakeReasoner{rec: testAnalysis()}

	t.Run("degrade serves the uncached result", func(t *testing.T) {
		o := New(Config{Policy: FailDegrade}, writeOnlyBrokenStore{}, fetcher, reasoner, nil, discardLogger())
		res, err := o.Analyze(ctx, "BTC", "ETH", 0)
		require.NoError(t, err)
		assert.False(t, res.Cached)
		assert.Equal(t, domain.SignalLong, res.Analysis.Signal)
	})

	t.Run("strict surfaces the storage error", func(t *testing.T) {
		o := New(Config{Policy: FailStrict}, writeOnlyBrokenStore{}, fetcher, reasoner, nil, discardLogger())
		_, err := o.Analyze(ctx, "BTC", "ETH", 0)
		var serr *domain.StorageError
		require.ErrorAs(t, err, &serr)
	})
}

func TestAnalyze_NoReasonerConfigured(t *testing.T) {
	o := New(Config{}, nil, &fakeFetcher{rec: testMetrics()}, nil, nil, discardLogger())

	_, err := o.Analyze(context.Background(), "BTC", "ETH", 0)
	require.ErrorIs(t, err, domain.ErrReasonerUnavailable)
	assert.False(t, o.ReasonerAvailable())
	assert.False(t, o.CacheEnabled())
}

func TestAnalyze_ReasonerFailurePropagates(t *testing.T) {
	store := memory.NewAnalysisCacheStore()
	reasoner := &fakeReasoner{err: &domain.ReasoningError{Guidance: "check the key", Err: errors.New("401")}}
	o := New(Config{}, store, &fakeFetcher{rec: testMetrics()}, reasoner, nil, discardLogger())

	_, err := o.Analyze(context.Background(), "BTC", "ETH", 0)
	var rerr *domain.ReasoningError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "check the key", rerr.Guidance)

	// A failed run must not leave a cache entry behind.
	stats, err := store.Stats(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total)
}

func TestAnalyzeProvided_SkipsFetchAndCache(t *testing.T) {
	ctx := context.Background()
	store := memory.NewAnalysisCacheStore()
	fetcher := &fakeFetcher{rec: testMetrics()}
	reasoner := &fakeReasoner{rec: testAnalysis()}
	o := New(Config{}, store, fetcher, reasoner, nil, discardLogger())

	provided := domain.MetricsRecord{ZScore: -1.4, Correlation: 0.7, SpreadStd: 0.002, Beta: 0.9, Volatility: 0.015}
	res, err := o.AnalyzeProvided(ctx, "sol", "btc", provided)
	require.NoError(t, err)

	assert.Equal(t, "SOL-PERP", res.SymbolA)
	assert.Equal(t, provided, res.Metrics)
	assert.False(t, res.Cached)
	assert.Equal(t, 0, fetcher.calls)
	assert.Equal(t, 1, reasoner.calls)

	stats, err := store.Stats(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Total, "provided-metrics results must not be cached")
}

func TestAnalyzeProvided_ValidatesPair(t *testing.T) {
	o := New(Config{}, nil, &fakeFetcher{}, &fakeReasoner{rec: testAnalysis()}, nil, discardLogger())

	_, err := o.AnalyzeProvided(context.Background(), "DOGE", "BTC", domain.MetricsRecord{})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
}
