package reasoning

import (
	"encoding/json"
	"strings"

	"github.com/quantpair/pairgate/internal/domain"
)

// Defaults substituted per missing or invalid field. A malformed response
// degrades to a neutral record instead of failing the request.
const (
	defaultConfidence  = 0.5
	defaultReasoning   = "No reasoning available"
	defaultEntryRec    = "Consult additional sources"
	unparsableEntryRec = "Manual review recommended"
)

// ParseAnalysis decodes the model's raw text into an AnalysisRecord. The
// model is asked for fenced JSON but does not always comply, so the parser
// extracts the first code block when present and fills documented defaults
// for anything missing or unrecognized. Confidence is not clamped.
func ParseAnalysis(raw string) domain.AnalysisRecord {
	payload := extractJSON(raw)

	var parsed struct {
		Signal              *string  `json:"signal"`
		Confidence          *float64 `json:"confidence"`
		Reasoning           *string  `json:"reasoning"`
		RiskLevel           *string  `json:"risk_level"`
		KeyFactors          []string `json:"key_factors"`
		EntryRecommendation *string  `json:"entry_recommendation"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		// Keep the raw text as reasoning so the caller can see what the
		// model actually said.
		return domain.AnalysisRecord{
			Signal:              domain.SignalNeutral,
			Confidence:          defaultConfidence,
			Reasoning:           strings.TrimSpace(raw),
			RiskLevel:           domain.RiskMedium,
			KeyFactors:          []string{},
			EntryRecommendation: unparsableEntryRec,
		}
	}

	rec := domain.AnalysisRecord{
		Signal:              domain.SignalNeutral,
		Confidence:          defaultConfidence,
		Reasoning:           defaultReasoning,
		RiskLevel:           domain.RiskMedium,
		KeyFactors:          []string{},
		EntryRecommendation: defaultEntryRec,
	}

	if parsed.Signal != nil {
		if s := domain.Signal(strings.ToUpper(strings.TrimSpace(*parsed.Signal))); domain.ValidSignal(s) {
			rec.Signal = s
		}
	}
	if parsed.Confidence != nil {
		rec.Confidence = *parsed.Confidence
	}
	if parsed.Reasoning != nil && strings.TrimSpace(*parsed.Reasoning) != "" {
		rec.Reasoning = *parsed.Reasoning
	}
	if parsed.RiskLevel != nil {
		if r := domain.RiskLevel(strings.ToUpper(strings.TrimSpace(*parsed.RiskLevel))); domain.ValidRiskLevel(r) {
			rec.RiskLevel = r
		}
	}
	if parsed.KeyFactors != nil {
		rec.KeyFactors = parsed.KeyFactors
	}
	if parsed.EntryRecommendation != nil && strings.TrimSpace(*parsed.EntryRecommendation) != "" {
		rec.EntryRecommendation = *parsed.EntryRecommendation
	}
	return rec
}

// extractJSON pulls the contents of the first ```json (or plain ```) fenced
// block, falling back to the whole trimmed text.
func extractJSON(raw string) string {
	for _, fence := range []string{"```json", "```"} {
		start := strings.Index(raw, fence)
		if start < 0 {
			continue
		}
		rest := raw[start+len(fence):]
		end := strings.Index(rest, "```")
		if end < 0 {
			break
		}
		return strings.TrimSpace(rest[:end])
	}
	return strings.TrimSpace(raw)
}
