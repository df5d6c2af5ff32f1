package reasoning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpair/pairgate/internal/domain"
)

func TestParseAnalysis_FencedJSON(t *testing.T) {
	raw := "Here is my analysis:\n```json\n" + `{
		"signal": "LONG",
		"confidence": 0.78,
		"reasoning": "Z-score of 2.5 indicates a strong mean reversion setup",
		"risk_level": "MEDIUM",
		"key_factors": ["high z-score", "strong correlation"],
		"entry_recommendation": "Enter on next spread widening"
	}` + "\n```\nGood luck."

	rec := ParseAnalysis(raw)
	assert.Equal(t, domain.SignalLong, rec.Signal)
	assert.Equal(t, 0.78, rec.Confidence)
	assert.Equal(t, domain.RiskMedium, rec.RiskLevel)
	assert.Equal(t, []string{"high z-score", "strong correlation"}, rec.KeyFactors)
	assert.Equal(t, "Enter on next spread widening", rec.EntryRecommendation)
}

func TestParseAnalysis_BareJSON(t *testing.T) {
	rec := ParseAnalysis(`{"signal":"short","confidence":0.6,"reasoning":"divergence","risk_level":"high"}`)
	assert.Equal(t, domain.SignalShort, rec.Signal)
	assert.Equal(t, domain.RiskHigh, rec.RiskLevel)
}

func TestParseAnalysis_MissingKeyFactors(t *testing.T) {
	rec := ParseAnalysis(`{"signal":"LONG","confidence":0.7,"reasoning":"ok","risk_level":"LOW"}`)
	require.NotNil(t, rec.KeyFactors)
	assert.Empty(t, rec.KeyFactors)
	assert.Equal(t, defaultEntryRec, rec.EntryRecommendation)
}

func TestParseAnalysis_UnparsableBody(t *testing.T) {
	rec := ParseAnalysis("I am unable to produce JSON today, sorry.")
	assert.Equal(t, domain.SignalNeutral, rec.Signal)
	assert.Equal(t, defaultConfidence, rec.Confidence)
	assert.Equal(t, domain.RiskMedium, rec.RiskLevel)
	assert.Empty(t, rec.KeyFactors)
	assert.Equal(t, unparsableEntryRec, rec.EntryRecommendation)
	assert.Equal(t, "I am unable to produce JSON today, sorry.", rec.Reasoning)
}

func TestParseAnalysis_UnknownEnumsFallBack(t *testing.T) {
	rec := ParseAnalysis(`{"signal":"HODL","confidence":0.9,"reasoning":"??","risk_level":"EXTREME"}`)
	assert.Equal(t, domain.SignalNeutral, rec.Signal)
	assert.Equal(t, domain.RiskMedium, rec.RiskLevel)
	assert.Equal(t, 0.9, rec.Confidence)
}

func TestParseAnalysis_ConfidenceNotClamped(t *testing.T) {
	// The pipeline passes confidence through untouched, even out of range.
	rec := ParseAnalysis(`{"signal":"LONG","confidence":1.7,"reasoning":"r","risk_level":"LOW"}`)
	assert.Equal(t, 1.7, rec.Confidence)
}

func TestExtractJSON_PrefersJSONFence(t *testing.T) {
	raw := "prefix ```json\n{\"a\":1}\n``` suffix"
	assert.Equal(t, `{"a":1}`, extractJSON(raw))

	raw = "prefix ```\n{\"b\":2}\n``` suffix"
	assert.Equal(t, `{"b":2}`, extractJSON(raw))

	assert.Equal(t, `{"c":3}`, extractJSON(`  {"c":3}  `))
}
