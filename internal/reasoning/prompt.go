package reasoning

import (
	"fmt"
	"strings"

	"github.com/quantpair/pairgate/internal/domain"
)

// buildPrompt renders the structured analyst prompt for one metrics
// snapshot. The output-format block pins the JSON shape the parser expects.
func buildPrompt(symbolA, symbolB string, m domain.MetricsRecord) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are an expert cryptocurrency pairs trading analyst. Analyze the following trading pair metrics and provide detailed reasoning.

**Trading Pair:** %s / %s

**Statistical Metrics:**
- Z-Score: %.4f
- Correlation: %.4f
- Spread Mean: %.6f
- Spread Std Dev: %.6f
- Beta (hedge ratio): %.4f
- Volatility: %.4f
`, symbolA, symbolB, m.ZScore, m.Correlation, m.SpreadMean, m.SpreadStd, m.Beta, m.Volatility)

	extended := extendedLines(m)
	if len(extended) > 0 {
		b.WriteString("\n**Additional Metrics:**\n")
		for _, line := range extended {
			b.WriteString(line)
			b.WriteByte('\n')
		}
	}

	b.WriteString(`
**Analysis Requirements:**
1. **Signal Strength**: Evaluate if the Z-score indicates a trading opportunity (typically |Z| > 2.0 suggests mean reversion opportunity)
2. **Pair Suitability**: Assess correlation strength (>0.7 is good for pairs trading)
3. **Risk Assessment**: Consider volatility and spread characteristics
4. **Trading Recommendation**: Provide a clear LONG/SHORT/NEUTRAL recommendation with confidence level
5. **Reasoning**: Explain the statistical rationale step-by-step

**Output Format (JSON):**
` + "```json" + `
{
  "signal": "LONG" | "SHORT" | "NEUTRAL",
  "confidence": 0.0-1.0,
  "reasoning": "detailed explanation with statistical justification",
  "risk_level": "LOW" | "MEDIUM" | "HIGH",
  "key_factors": ["factor1", "factor2", ...],
  "entry_recommendation": "specific guidance on entry timing"
}
` + "```" + `

Provide your analysis now:`)

	return b.String()
}

func extendedLines(m domain.MetricsRecord) []string {
	var lines []string
	if m.CurrentSpread != nil {
		lines = append(lines, fmt.Sprintf("- Current Spread: %.6f", *m.CurrentSpread))
	}
	if m.HalfLife != nil {
		lines = append(lines, fmt.Sprintf("- Half-life: %.2f", *m.HalfLife))
	}
	if m.CointegrationPValue != nil {
		lines = append(lines, fmt.Sprintf("- Cointegration p-value: %.4f", *m.CointegrationPValue))
	}
	if m.IsCointegrated != nil {
		lines = append(lines, fmt.Sprintf("- Cointegrated: %t", *m.IsCointegrated))
	}
	if m.Sharpe != nil {
		lines = append(lines, fmt.Sprintf("- Sharpe: %.4f", *m.Sharpe))
	}
	if m.SignalType != nil {
		lines = append(lines, "- Upstream signal: "+*m.SignalType)
	}
	return lines
}
