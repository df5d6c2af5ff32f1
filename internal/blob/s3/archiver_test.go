package s3blob

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantpair/pairgate/internal/domain"
)

type fakeLister struct {
	entries []domain.CacheEntry
}

func (f *fakeLister) ListExpired(_ context.Context, _ time.Time) ([]domain.CacheEntry, error) {
	return f.entries, nil
}

type capturingWriter struct {
	path        string
	contentType string
	body        string
	calls       int
}

func (w *capturingWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.path = path
	w.contentType = contentType
	w.body = string(b)
	w.calls++
	return nil
}

func TestArchiveExpired_UploadsJSONL(t *testing.T) {
	now := time.Date(2026, 8, 27, 6, 0, 0, 0, time.UTC)
	lister := &fakeLister{entries: []domain.CacheEntry{
		{PairKey: "BTC-PERP:ETH-PERP", SymbolA: "BTC-PERP", SymbolB: "ETH-PERP"},
		{PairKey: "SOL-PERP:BTC-PERP", SymbolA: "SOL-PERP", SymbolB: "BTC-PERP"},
	}}
	writer := &capturingWriter{}

	count, err := NewArchiver(writer, lister).ArchiveExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "archive/analysis/2026-08-27.jsonl", writer.path)
	assert.Equal(t, "application/x-ndjson", writer.contentType)

	lines := strings.Split(strings.TrimRight(writer.body, "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"BTC-PERP:ETH-PERP"`)
	assert.Contains(t, lines[1], `"SOL-PERP:BTC-PERP"`)
}

func TestArchiveExpired_NothingToArchive(t *testing.T) {
	writer := &capturingWriter{}

	count, err := NewArchiver(writer, &fakeLister{}).ArchiveExpired(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Equal(t, 0, writer.calls, "no object should be written when nothing expired")
}
