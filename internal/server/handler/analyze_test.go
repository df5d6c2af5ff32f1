package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpair/pairgate/internal/domain"
)

type stubAnalyzer struct {
	result domain.AnalysisResult
	err    error
}

func (s *stubAnalyzer) Analyze(context.Context, string, string, int) (domain.AnalysisResult, error) {
	return s.result, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func postAnalyze(t *testing.T, h *AnalyzeHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Analyze(rec, req)
	return rec
}

func TestAnalyze_Success(t *testing.T) {
	result := domain.AnalysisResult{
		SymbolA: "BTC-PERP",
		SymbolB: "ETH-PERP",
		Analysis: domain.AnalysisRecord{
			Signal: domain.SignalShort, Confidence: 0.62,
			RiskLevel: domain.RiskLow, KeyFactors: []string{},
		},
	}
	h := NewAnalyzeHandler(&stubAnalyzer{result: result}, discardLogger())

	rec := postAnalyze(t, h, `{"symbolA":"BTC","symbolB":"ETH"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.AnalysisResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "BTC-PERP", got.SymbolA)
	assert.Equal(t, domain.SignalShort, got.Analysis.Signal)
	assert.False(t, got.Cached)
}

func TestAnalyze_BadRequestBodies(t *testing.T) {
	h := NewAnalyzeHandler(&stubAnalyzer{}, discardLogger())

	assert.Equal(t, http.StatusBadRequest, postAnalyze(t, h, `{not json`).Code)
	assert.Equal(t, http.StatusBadRequest, postAnalyze(t, h, `{"symbolA":"BTC"}`).Code)
}

func TestAnalyze_ValidationErrorIncludesAllowList(t *testing.T) {
	verr := &domain.ValidationError{
		Requested: "DOGE/SHIB",
		Allowed:   []string{"SOL/BTC", "BTC/SOL"},
	}
	h := NewAnalyzeHandler(&stubAnalyzer{err: verr}, discardLogger())

	rec := postAnalyze(t, h, `{"symbolA":"DOGE","symbolB":"SHIB"}`)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error        string   `json:"error"`
		AllowedPairs []string `json:"allowed_pairs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body.Error, "DOGE/SHIB")
	assert.Equal(t, []string{"SOL/BTC", "BTC/SOL"}, body.AllowedPairs)
}

func TestAnalyze_ReasoningErrorIsBadGateway(t *testing.T) {
	rerr := &domain.ReasoningError{Guidance: "check the reasoning API key", Err: errors.New("401")}
	h := NewAnalyzeHandler(&stubAnalyzer{err: rerr}, discardLogger())

	rec := postAnalyze(t, h, `{"symbolA":"BTC","symbolB":"ETH"}`)

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var body struct {
		Guidance string `json:"guidance"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "check the reasoning API key", body.Guidance)
}

func TestAnalyze_ReasonerUnavailable(t *testing.T) {
	h := NewAnalyzeHandler(&stubAnalyzer{err: domain.ErrReasonerUnavailable}, discardLogger())

	rec := postAnalyze(t, h, `{"symbolA":"BTC","symbolB":"ETH"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAnalyze_UnknownErrorIsInternal(t *testing.T) {
	h := NewAnalyzeHandler(&stubAnalyzer{err: errors.New("boom")}, discardLogger())

	rec := postAnalyze(t, h, `{"symbolA":"BTC","symbolB":"ETH"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
