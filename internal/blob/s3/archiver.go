package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/quantpair/pairgate/internal/domain"
)

// ExpiredLister provides read access to expired cache entries for archival.
// The archiver only needs this one query, not the full cache store interface.
type ExpiredLister interface {
	ListExpired(ctx context.Context, now time.Time) ([]domain.CacheEntry, error)
}

// Archiver exports expired analysis cache entries to S3 as JSONL before they
// are swept from the primary store.
//
// Deletion of the archived entries is intentionally NOT performed here --
// the sweep is a separate, explicit step run after the archive upload
// succeeds.
type Archiver struct {
	writer domain.BlobWriter
	cache  ExpiredLister
}

// NewArchiver creates a new Archiver.
func NewArchiver(writer domain.BlobWriter, cache ExpiredLister) *Archiver {
	return &Archiver{
		writer: writer,
		cache:  cache,
	}
}

// ArchiveExpired queries all entries expired as of now, serializes them to
// JSONL, and uploads the file to archive/analysis/YYYY-MM-DD.jsonl. It
// returns the number of entries archived. When nothing has expired, no
// object is written.
func (a *Archiver) ArchiveExpired(ctx context.Context, now time.Time) (int64, error) {
	entries, err := a.cache.ListExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive expired query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive expired marshal: %w", err)
	}

	path := archivePath(now)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive expired upload: %w", err)
	}

	return int64(len(entries)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by day:
//
//	archive/analysis/2026-08-27.jsonl
func archivePath(now time.Time) string {
	return fmt.Sprintf("archive/analysis/%s.jsonl", now.UTC().Format("2006-01-02"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
