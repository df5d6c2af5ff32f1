package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpair/pairgate/internal/domain"
)

type stubAvailability struct {
	cache    bool
	reasoner bool
}

func (s stubAvailability) CacheEnabled() bool      { return s.cache }
func (s stubAvailability) ReasonerAvailable() bool { return s.reasoner }

func getHealth(t *testing.T, h *HealthHandler) map[string]json.RawMessage {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.HealthCheck(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthCheck_ReportsStats(t *testing.T) {
	stats := &stubMaintenance{stats: domain.CacheStats{Total: 4, Valid: 3, Expired: 1}}
	h := NewHealthHandler(stubAvailability{cache: true, reasoner: true}, stats,
		HealthInfo{AgentRunning: true, AgentAddress: "hub-1"}, discardLogger())

	body := getHealth(t, h)

	assert.JSONEq(t, `"ok"`, string(body["status"]))
	assert.JSONEq(t, `true`, string(body["cache_enabled"]))

	var got domain.CacheStats
	require.NoError(t, json.Unmarshal(body["cache_stats"], &got))
	assert.Equal(t, int64(4), got.Total)
	assert.Equal(t, int64(1), got.Expired)
}

func TestHealthCheck_CacheStatsAlwaysPresent(t *testing.T) {
	// No stats source configured: the key stays in the body, null.
	h := NewHealthHandler(stubAvailability{}, nil, HealthInfo{}, discardLogger())

	body := getHealth(t, h)

	require.Contains(t, body, "cache_stats")
	assert.Equal(t, "null", string(body["cache_stats"]))
}
