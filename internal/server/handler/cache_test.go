package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpair/pairgate/internal/domain"
)

type stubMaintenance struct {
	deleted  int64
	sweepErr error
	stats    domain.CacheStats
	statsErr error
}

func (s *stubMaintenance) SweepExpired(context.Context, time.Time) (int64, error) {
	return s.deleted, s.sweepErr
}

func (s *stubMaintenance) Stats(context.Context, time.Time) (domain.CacheStats, error) {
	return s.stats, s.statsErr
}

type stubArchiver struct {
	archived int64
	err      error
	calls    int
}

func (s *stubArchiver) ArchiveExpired(context.Context, time.Time) (int64, error) {
	s.calls++
	return s.archived, s.err
}

func postCleanup(t *testing.T, h *CacheHandler) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/cache/cleanup", nil)
	rec := httptest.NewRecorder()
	h.Cleanup(rec, req)
	return rec
}

func TestCleanup_RemainingIsStatsObject(t *testing.T) {
	maint := &stubMaintenance{
		deleted: 3,
		stats:   domain.CacheStats{Total: 5, Valid: 5, Expired: 0},
	}
	h := NewCacheHandler(maint, nil, discardLogger())

	rec := postCleanup(t, h)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Deleted   int64              `json:"deleted"`
		Archived  int64              `json:"archived"`
		Remaining *domain.CacheStats `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, int64(3), body.Deleted)
	require.NotNil(t, body.Remaining)
	assert.Equal(t, int64(5), body.Remaining.Total)
	assert.Equal(t, int64(5), body.Remaining.Valid)
	assert.Equal(t, int64(0), body.Remaining.Expired)
}

func TestCleanup_StatsFailureLeavesRemainingNull(t *testing.T) {
	maint := &stubMaintenance{deleted: 1, statsErr: errors.New("stats down")}
	h := NewCacheHandler(maint, nil, discardLogger())

	rec := postCleanup(t, h)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body, "remaining")
	assert.Equal(t, "null", string(body["remaining"]))
}

func TestCleanup_ArchiveFailureAbortsSweep(t *testing.T) {
	maint := &stubMaintenance{deleted: 7}
	arch := &stubArchiver{err: errors.New("bucket unreachable")}
	h := NewCacheHandler(maint, arch, discardLogger())

	rec := postCleanup(t, h)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, 1, arch.calls)
}

func TestCleanup_CacheDisabled(t *testing.T) {
	h := NewCacheHandler(nil, nil, discardLogger())

	rec := postCleanup(t, h)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
