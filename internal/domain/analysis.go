package domain

// Signal is the trade direction recommended by the reasoning backend.
type Signal string

const (
	SignalLong    Signal = "LONG"
	SignalShort   Signal = "SHORT"
	SignalNeutral Signal = "NEUTRAL"
)

// ValidSignal reports whether s is one of the three recognized signals.
func ValidSignal(s Signal) bool {
	return s == SignalLong || s == SignalShort || s == SignalNeutral
}

// RiskLevel grades the risk of acting on a signal.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// ValidRiskLevel reports whether r is a recognized risk level.
func ValidRiskLevel(r RiskLevel) bool {
	return r == RiskLow || r == RiskMedium || r == RiskHigh
}

// AnalysisRecord is the structured recommendation produced by the reasoning
// backend for one metrics snapshot. Confidence is reported as-is; the
// pipeline does not clamp it to [0,1].
type AnalysisRecord struct {
	Signal              Signal    `json:"signal"`
	Confidence          float64   `json:"confidence"`
	Reasoning           string    `json:"reasoning"`
	RiskLevel           RiskLevel `json:"risk_level"`
	KeyFactors          []string  `json:"key_factors"`
	EntryRecommendation string    `json:"entry_recommendation"`
}
