package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/quantpair/pairgate/internal/domain"
)

// AnalyzeService defines what the analyze handler requires from the
// orchestration layer.
type AnalyzeService interface {
	Analyze(ctx context.Context, symbolA, symbolB string, limit int) (domain.AnalysisResult, error)
}

// AnalyzeHandler serves the pair-analysis endpoint.
type AnalyzeHandler struct {
	analyzer AnalyzeService
	logger   *slog.Logger
}

// NewAnalyzeHandler creates an AnalyzeHandler.
func NewAnalyzeHandler(analyzer AnalyzeService, logger *slog.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyzer: analyzer,
		logger:   logger,
	}
}

// analyzeRequest is the request body for POST /api/analyze. Limit is the
// optional data-point window; zero means the configured default.
type analyzeRequest struct {
	SymbolA string `json:"symbolA"`
	SymbolB string `json:"symbolB"`
	Limit   int    `json:"limit"`
}

// Analyze runs the analysis pipeline for a requested pair.
// POST /api/analyze
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.SymbolA == "" || req.SymbolB == "" {
		writeError(w, http.StatusBadRequest, "symbolA and symbolB are required")
		return
	}
	if req.Limit < 0 {
		writeError(w, http.StatusBadRequest, "limit must not be negative")
		return
	}

	result, err := h.analyzer.Analyze(r.Context(), req.SymbolA, req.SymbolB, req.Limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// respondError maps pipeline errors onto HTTP statuses: validation failures
// are client errors, reasoning backend failures are bad-gateway with
// remediation guidance, a missing reasoner is service-unavailable, and
// everything else is a plain 500.
func (h *AnalyzeHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":         verr.Error(),
			"allowed_pairs": verr.Allowed,
		})
		return
	}

	var rerr *domain.ReasoningError
	if errors.As(err, &rerr) {
		h.logger.ErrorContext(r.Context(), "handler: reasoning failed",
			slog.String("error", rerr.Error()),
		)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":    "reasoning backend failed",
			"guidance": rerr.Guidance,
		})
		return
	}

	if errors.Is(err, domain.ErrReasonerUnavailable) {
		writeError(w, http.StatusServiceUnavailable, "reasoning backend not configured")
		return
	}

	h.logger.ErrorContext(r.Context(), "handler: analyze failed",
		slog.String("error", err.Error()),
	)
	writeError(w, http.StatusInternalServerError, "analysis failed")
}
