package domain

// MetricsRecord is the statistical snapshot for a trading pair as derived
// from the upstream metrics provider. The pointer fields are optional
// extended metrics that pass through untouched when the provider supplies
// them.
type MetricsRecord struct {
	ZScore      float64 `json:"zScore"`
	Correlation float64 `json:"correlation"`
	SpreadMean  float64 `json:"spreadMean"`
	SpreadStd   float64 `json:"spreadStd"`
	Beta        float64 `json:"beta"`
	Volatility  float64 `json:"volatility"`

	CurrentSpread       *float64 `json:"currentSpread,omitempty"`
	HalfLife            *float64 `json:"halfLife,omitempty"`
	CointegrationPValue *float64 `json:"cointegrationPValue,omitempty"`
	IsCointegrated      *bool    `json:"isCointegrated,omitempty"`
	Sharpe              *float64 `json:"sharpe,omitempty"`
	SignalType          *string  `json:"signalType,omitempty"`
	DataPoints          *int     `json:"dataPoints,omitempty"`

	// Synthetic marks records generated locally after an upstream failure.
	// Callers must be able to tell degraded data from real provider output.
	Synthetic bool `json:"synthetic,omitempty"`
}
