// Package analyzer coordinates the analysis pipeline: pair validation, cache
// lookup, metrics fetch, reasoning call, cache write-back, and signal
// publication.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quantpair/pairgate/internal/domain"
	"github.com/quantpair/pairgate/internal/pairs"
)

const (
	// reasoningTemperature is fixed for reproducible recommendations.
	reasoningTemperature = 0.3

	// analysisChannel is the bus channel and stream completed analyses are
	// published to.
	analysisChannel = "analysis"

	defaultTTL   = 24 * time.Hour
	defaultLimit = 100
)

// FailPolicy controls how the pipeline reacts to cache storage failures.
type FailPolicy string

const (
	// FailDegrade logs storage failures and continues without the cache.
	FailDegrade FailPolicy = "degrade"

	// FailStrict surfaces storage failures to the caller.
	FailStrict FailPolicy = "strict"
)

// MetricsFetcher produces a metrics record for a normalized symbol pair.
type MetricsFetcher interface {
	Fetch(ctx context.Context, symbolA, symbolB string, limit int) (domain.MetricsRecord, error)
}

// Reasoner turns a metrics record into a structured recommendation.
type Reasoner interface {
	AnalyzePair(ctx context.Context, symbolA, symbolB string, m domain.MetricsRecord, temperature float64) (domain.AnalysisRecord, error)
}

// Config holds orchestrator tunables.
type Config struct {
	// TTL is how long a cached analysis stays valid.
	TTL time.Duration

	// DefaultLimit is the data-point window requested from the metrics
	// provider.
	DefaultLimit int

	// Policy selects strict or degraded handling of cache failures.
	Policy FailPolicy

	// DedupeInFlight collapses concurrent requests for the same pair key
	// into a single pipeline run.
	DedupeInFlight bool
}

// Orchestrator runs the multi-stage analysis pipeline. The cache store,
// reasoner, and signal bus are all optional: a nil cache disables caching, a
// nil reasoner makes Analyze fail with ErrReasonerUnavailable, and a nil bus
// disables publication.
type Orchestrator struct {
	cfg      Config
	cache    domain.AnalysisCacheStore
	fetcher  MetricsFetcher
	reasoner Reasoner
	bus      domain.SignalBus
	logger   *slog.Logger

	group singleflight.Group

	// now is swappable for tests.
	now func() time.Time
}

// New creates an Orchestrator.
func New(cfg Config, cache domain.AnalysisCacheStore, fetcher MetricsFetcher, reasoner Reasoner, bus domain.SignalBus, logger *slog.Logger) *Orchestrator {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaultLimit
	}
	if cfg.Policy == "" {
		cfg.Policy = FailDegrade
	}
	return &Orchestrator{
		cfg:      cfg,
		cache:    cache,
		fetcher:  fetcher,
		reasoner: reasoner,
		bus:      bus,
		logger:   logger.With(slog.String("component", "analyzer")),
		now:      time.Now,
	}
}

// CacheEnabled reports whether a cache store is configured.
func (o *Orchestrator) CacheEnabled() bool { return o.cache != nil }

// ReasonerAvailable reports whether a reasoning backend is configured.
func (o *Orchestrator) ReasonerAvailable() bool { return o.reasoner != nil }

// Analyze runs the full pipeline for a pair request: validate, check the
// cache, fetch metrics, call the reasoner, write back, publish. Symbols are
// accepted in either bare ("BTC") or market ("BTC-PERP") form. A
// non-positive limit falls back to the configured default window.
func (o *Orchestrator) Analyze(ctx context.Context, symbolA, symbolB string, limit int) (domain.AnalysisResult, error) {
	if err := pairs.Check(symbolA, symbolB); err != nil {
		return domain.AnalysisResult{}, err
	}
	if limit <= 0 {
		limit = o.cfg.DefaultLimit
	}

	normA := pairs.Normalize(symbolA)
	normB := pairs.Normalize(symbolB)
	key := pairs.Key(symbolA, symbolB)

	if !o.cfg.DedupeInFlight {
		return o.analyze(ctx, key, normA, normB, limit)
	}

	v, err, _ := o.group.Do(key, func() (any, error) {
		res, err := o.analyze(ctx, key, normA, normB, limit)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return v.(domain.AnalysisResult), nil
}

func (o *Orchestrator) analyze(ctx context.Context, key, normA, normB string, limit int) (domain.AnalysisResult, error) {
	now := o.now()

	if o.cache != nil {
		entry, err := o.cache.GetIfValid(ctx, key, now)
		switch {
		case err == nil:
			return cachedResult(entry), nil
		case errors.Is(err, domain.ErrNotFound):
			// cache miss
		case o.cfg.Policy == FailStrict:
			return domain.AnalysisResult{}, fmt.Errorf("analyzer: cache read %s: %w", key, err)
		default:
			o.logger.WarnContext(ctx, "cache read failed; continuing without cache",
				slog.String("pair_key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	metrics, err := o.fetcher.Fetch(ctx, normA, normB, limit)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	if o.reasoner == nil {
		return domain.AnalysisResult{}, domain.ErrReasonerUnavailable
	}

	analysis, err := o.reasoner.AnalyzePair(ctx, normA, normB, metrics, reasoningTemperature)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	if o.cache != nil {
		entry := domain.CacheEntry{
			PairKey:   key,
			SymbolA:   normA,
			SymbolB:   normB,
			Metrics:   metrics,
			Analysis:  analysis,
			CreatedAt: now,
			ExpiresAt: now.Add(o.cfg.TTL),
		}
		if err := o.cache.Upsert(ctx, entry); err != nil {
			if o.cfg.Policy == FailStrict {
				return domain.AnalysisResult{}, fmt.Errorf("analyzer: cache write %s: %w", key, err)
			}
			o.logger.WarnContext(ctx, "cache write failed; serving uncached result",
				slog.String("pair_key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	result := domain.AnalysisResult{
		SymbolA:  normA,
		SymbolB:  normB,
		Metrics:  metrics,
		Analysis: analysis,
		Cached:   false,
	}

	o.publish(ctx, result)

	return result, nil
}

// AnalyzeProvided validates the pair and runs the reasoner over
// caller-supplied metrics. It skips the fetch and cache stages: the caller
// already holds fresher metrics than the provider would return, and results
// derived from them must not shadow provider-derived cache entries.
func (o *Orchestrator) AnalyzeProvided(ctx context.Context, symbolA, symbolB string, metrics domain.MetricsRecord) (domain.AnalysisResult, error) {
	if err := pairs.Check(symbolA, symbolB); err != nil {
		return domain.AnalysisResult{}, err
	}
	if o.reasoner == nil {
		return domain.AnalysisResult{}, domain.ErrReasonerUnavailable
	}

	normA := pairs.Normalize(symbolA)
	normB := pairs.Normalize(symbolB)

	analysis, err := o.reasoner.AnalyzePair(ctx, normA, normB, metrics, reasoningTemperature)
	if err != nil {
		return domain.AnalysisResult{}, err
	}

	result := domain.AnalysisResult{
		SymbolA:  normA,
		SymbolB:  normB,
		Metrics:  metrics,
		Analysis: analysis,
		Cached:   false,
	}

	o.publish(ctx, result)

	return result, nil
}

// publish sends a completed analysis to the signal bus, best effort. Bus
// failures never fail the request.
func (o *Orchestrator) publish(ctx context.Context, result domain.AnalysisResult) {
	if o.bus == nil {
		return
	}

	payload, err := json.Marshal(result)
	if err != nil {
		o.logger.WarnContext(ctx, "marshal analysis for publication failed",
			slog.String("error", err.Error()))
		return
	}

	if err := o.bus.Publish(ctx, analysisChannel, payload); err != nil {
		o.logger.WarnContext(ctx, "publish analysis failed",
			slog.String("error", err.Error()))
	}
	if err := o.bus.StreamAppend(ctx, analysisChannel, payload); err != nil {
		o.logger.WarnContext(ctx, "stream append failed",
			slog.String("error", err.Error()))
	}
}

// cachedResult converts a live cache entry into a response envelope.
func cachedResult(entry domain.CacheEntry) domain.AnalysisResult {
	createdAt := entry.CreatedAt
	expiresAt := entry.ExpiresAt
	return domain.AnalysisResult{
		SymbolA:   entry.SymbolA,
		SymbolB:   entry.SymbolB,
		Metrics:   entry.Metrics,
		Analysis:  entry.Analysis,
		Cached:    true,
		CachedAt:  &createdAt,
		ExpiresAt: &expiresAt,
	}
}
