package domain

import "time"

// AnalysisResult is the response envelope assembled by the orchestrator and
// returned by both gateway adapters. CachedAt/ExpiresAt are populated only
// for cache hits.
type AnalysisResult struct {
	SymbolA   string         `json:"symbolA"`
	SymbolB   string         `json:"symbolB"`
	Metrics   MetricsRecord  `json:"metrics"`
	Analysis  AnalysisRecord `json:"analysis"`
	Cached    bool           `json:"cached"`
	CachedAt  *time.Time     `json:"cached_at,omitempty"`
	ExpiresAt *time.Time     `json:"expires_at,omitempty"`
}
