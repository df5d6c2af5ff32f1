// Package upstream fetches precomputed pair statistics from the metrics
// provider and derives the final MetricsRecord, applying the documented
// fallback rules for missing or invalid fields.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/quantpair/pairgate/internal/domain"
)

const (
	defaultTimeout = 30 * time.Second

	// defaultVolatility is used when neither the provider volatility nor the
	// spread standard deviation yields a usable value.
	defaultVolatility = 0.02

	// defaultSpreadStd replaces a missing or non-positive provider
	// spreadStd. Intentionally separate from the volatility fallback.
	defaultSpreadStd = 1.0
)

// Config holds the metrics provider connection parameters.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Fetcher calls the upstream metrics provider. Under the degrade policy an
// upstream failure never surfaces: the fetcher substitutes a synthetic
// record so the pipeline always produces a result. Synthetic records are
// flagged as such in the output.
type Fetcher struct {
	baseURL string
	client  *http.Client
	strict  bool
	logger  *slog.Logger
}

// NewFetcher creates a Fetcher. When strict is true, upstream failures are
// returned as errors instead of being replaced with synthetic data.
func NewFetcher(cfg Config, strict bool, logger *slog.Logger) *Fetcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Fetcher{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: timeout},
		strict:  strict,
		logger:  logger.With(slog.String("component", "upstream")),
	}
}

// analyzeRequest is the provider request body.
type analyzeRequest struct {
	SymbolA string `json:"symbolA"`
	SymbolB string `json:"symbolB"`
	Limit   int    `json:"limit"`
}

// analyzeResponse is the provider response envelope. All statistical fields
// are optional pointers so that absent values can be told apart from zeros.
type analyzeResponse struct {
	Analysis   *providerAnalysis `json:"analysis"`
	DataPoints *int              `json:"dataPoints"`
}

type providerAnalysis struct {
	ZScore              *float64 `json:"zScore"`
	Correlation         *float64 `json:"correlation"`
	SpreadMean          *float64 `json:"spreadMean"`
	SpreadStd           *float64 `json:"spreadStd"`
	Beta                *float64 `json:"beta"`
	Volatility          *float64 `json:"volatility"`
	CurrentSpread       *float64 `json:"currentSpread"`
	HalfLife            *float64 `json:"halfLife"`
	CointegrationPValue *float64 `json:"cointegrationPValue"`
	IsCointegrated      *bool    `json:"isCointegrated"`
	Sharpe              *float64 `json:"sharpe"`
	SignalType          *string  `json:"signalType"`
}

// Fetch requests metrics for a normalized symbol pair with a fixed per-call
// timeout and no retries. A single failed attempt resolves to the synthetic
// fallback (degrade policy) or an error (strict policy).
func (f *Fetcher) Fetch(ctx context.Context, symbolA, symbolB string, limit int) (domain.MetricsRecord, error) {
	rec, err := f.fetch(ctx, symbolA, symbolB, limit)
	if err == nil {
		return rec, nil
	}
	if f.strict {
		return domain.MetricsRecord{}, fmt.Errorf("upstream: fetch %s/%s: %w", symbolA, symbolB, err)
	}

	f.logger.WarnContext(ctx, "upstream fetch failed; falling back to synthetic metrics",
		slog.String("symbol_a", symbolA),
		slog.String("symbol_b", symbolB),
		slog.String("error", err.Error()),
	)
	return synthetic(limit), nil
}

func (f *Fetcher) fetch(ctx context.Context, symbolA, symbolB string, limit int) (domain.MetricsRecord, error) {
	body, err := json.Marshal(analyzeRequest{SymbolA: symbolA, SymbolB: symbolB, Limit: limit})
	if err != nil {
		return domain.MetricsRecord{}, fmt.Errorf("marshal request: %w", err)
	}

	url := f.baseURL + "/api/analyze"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return domain.MetricsRecord{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return domain.MetricsRecord{}, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return domain.MetricsRecord{}, fmt.Errorf("post %s: unexpected status %d", url, resp.StatusCode)
	}

	var decoded analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.MetricsRecord{}, fmt.Errorf("decode response: %w", err)
	}
	if decoded.Analysis == nil {
		return domain.MetricsRecord{}, fmt.Errorf("response has no analysis payload")
	}

	return derive(decoded), nil
}

// derive maps the provider payload onto a MetricsRecord, applying the two
// independent fallback chains for volatility and spreadStd.
func derive(resp analyzeResponse) domain.MetricsRecord {
	a := resp.Analysis

	rec := domain.MetricsRecord{
		ZScore:              floatOr(a.ZScore, 0),
		Correlation:         floatOr(a.Correlation, 0),
		SpreadMean:          floatOr(a.SpreadMean, 0),
		SpreadStd:           DeriveSpreadStd(a.SpreadStd),
		Beta:                floatOr(a.Beta, 1.0),
		Volatility:          DeriveVolatility(a.Volatility, floatOr(a.SpreadStd, 0)),
		CurrentSpread:       a.CurrentSpread,
		HalfLife:            a.HalfLife,
		CointegrationPValue: a.CointegrationPValue,
		IsCointegrated:      a.IsCointegrated,
		Sharpe:              a.Sharpe,
		SignalType:          a.SignalType,
	}
	if resp.DataPoints != nil {
		rec.DataPoints = resp.DataPoints
	}
	return rec
}

// DeriveVolatility prefers the provider's explicit volatility when it is
// finite and non-negative, then a strictly positive spreadStd, then a fixed
// non-zero default.
func DeriveVolatility(vol *float64, spreadStd float64) float64 {
	if vol != nil && finite(*vol) && *vol >= 0 {
		return *vol
	}
	if finite(spreadStd) && spreadStd > 0 {
		return spreadStd
	}
	return defaultVolatility
}

// DeriveSpreadStd replaces a missing or non-positive provider value with the
// fixed default. Runs independently of the volatility derivation.
func DeriveSpreadStd(v *float64) float64 {
	if v != nil && finite(*v) && *v > 0 {
		return *v
	}
	return defaultSpreadStd
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func floatOr(v *float64, def float64) float64 {
	if v != nil && finite(*v) {
		return *v
	}
	return def
}

// synthetic generates a pseudo-random metrics record within documented
// ranges. It keeps the pipeline producing results when the provider is down;
// the Synthetic flag makes the substitution observable to callers.
func synthetic(limit int) domain.MetricsRecord {
	uniform := func(lo, hi float64) float64 {
		return lo + rand.Float64()*(hi-lo)
	}
	dataPoints := limit
	return domain.MetricsRecord{
		ZScore:      uniform(-3.0, 3.0),
		Correlation: uniform(0.5, 0.95),
		SpreadMean:  uniform(-0.01, 0.01),
		SpreadStd:   uniform(0.001, 0.01),
		Beta:        uniform(0.8, 1.5),
		Volatility:  uniform(0.01, 0.05),
		DataPoints:  &dataPoints,
		Synthetic:   true,
	}
}
