package upstream

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fptr(v float64) *float64 { return &v }

func TestDeriveVolatility(t *testing.T) {
	tests := []struct {
		name      string
		vol       *float64
		spreadStd float64
		want      float64
	}{
		{"provider value wins", fptr(0.03), 0.02, 0.03},
		{"zero provider value is valid", fptr(0), 0.02, 0},
		{"missing falls back to spreadStd", nil, 0.02, 0.02},
		{"negative falls back to spreadStd", fptr(-1), 0.02, 0.02},
		{"nan falls back to spreadStd", fptr(math.NaN()), 0.02, 0.02},
		{"both unusable falls back to default", nil, 0, defaultVolatility},
		{"negative spreadStd falls back to default", fptr(-1), -0.5, defaultVolatility},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveVolatility(tt.vol, tt.spreadStd))
		})
	}
}

func TestDeriveSpreadStd(t *testing.T) {
	assert.Equal(t, 0.0045, DeriveSpreadStd(fptr(0.0045)))
	assert.Equal(t, defaultSpreadStd, DeriveSpreadStd(nil))
	assert.Equal(t, defaultSpreadStd, DeriveSpreadStd(fptr(0)))
	assert.Equal(t, defaultSpreadStd, DeriveSpreadStd(fptr(-0.1)))
}

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/analyze", r.URL.Path)

		var req analyzeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "BTC-PERP", req.SymbolA)
		assert.Equal(t, 200, req.Limit)

		json.NewEncoder(w).Encode(map[string]any{
			"analysis": map[string]any{
				"zScore":      2.5,
				"correlation": 0.85,
				"spreadMean":  0.0012,
				"spreadStd":   0.0045,
				"beta":        1.15,
				"halfLife":    12.5,
			},
			"dataPoints": 200,
		})
	}))
	defer srv.Close()

	f := NewFetcher(Config{BaseURL: srv.URL}, false, discardLogger())
	rec, err := f.Fetch(context.Background(), "BTC-PERP", "ETH-PERP", 200)
	require.NoError(t, err)

	assert.Equal(t, 2.5, rec.ZScore)
	assert.Equal(t, 0.85, rec.Correlation)
	assert.Equal(t, 0.0012, rec.SpreadMean)
	assert.Equal(t, 0.0045, rec.SpreadStd)
	assert.Equal(t, 1.15, rec.Beta)
	// No provider volatility: falls back to the positive spreadStd.
	assert.Equal(t, 0.0045, rec.Volatility)
	require.NotNil(t, rec.HalfLife)
	assert.Equal(t, 12.5, *rec.HalfLife)
	require.NotNil(t, rec.DataPoints)
	assert.Equal(t, 200, *rec.DataPoints)
	assert.False(t, rec.Synthetic)
}

func TestFetch_MissingSpreadStdUsesDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"analysis": map[string]any{"zScore": 1.0, "correlation": 0.7},
		})
	}))
	defer srv.Close()

	f := NewFetcher(Config{BaseURL: srv.URL}, false, discardLogger())
	rec, err := f.Fetch(context.Background(), "BTC-PERP", "ETH-PERP", 100)
	require.NoError(t, err)

	// The stored spreadStd and the derived volatility fall back separately.
	assert.Equal(t, defaultSpreadStd, rec.SpreadStd)
	assert.Equal(t, defaultVolatility, rec.Volatility)
	assert.Equal(t, 1.0, rec.Beta)
}

func TestFetch_UpstreamFailureYieldsSynthetic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := NewFetcher(Config{BaseURL: srv.URL}, false, discardLogger())
	rec, err := f.Fetch(context.Background(), "BTC-PERP", "ETH-PERP", 150)
	require.NoError(t, err)

	assert.True(t, rec.Synthetic)
	assert.GreaterOrEqual(t, rec.ZScore, -3.0)
	assert.LessOrEqual(t, rec.ZScore, 3.0)
	assert.GreaterOrEqual(t, rec.Correlation, 0.5)
	assert.LessOrEqual(t, rec.Correlation, 0.95)
	assert.GreaterOrEqual(t, rec.Volatility, 0.01)
	assert.LessOrEqual(t, rec.Volatility, 0.05)
	require.NotNil(t, rec.DataPoints)
	assert.Equal(t, 150, *rec.DataPoints)
}

func TestFetch_MalformedBodyYieldsSynthetic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "not json")
	}))
	defer srv.Close()

	f := NewFetcher(Config{BaseURL: srv.URL}, false, discardLogger())
	rec, err := f.Fetch(context.Background(), "BTC-PERP", "ETH-PERP", 10)
	require.NoError(t, err)
	assert.True(t, rec.Synthetic)
}

func TestFetch_StrictPolicyPropagatesError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewFetcher(Config{BaseURL: srv.URL}, true, discardLogger())
	_, err := f.Fetch(context.Background(), "BTC-PERP", "ETH-PERP", 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}
