package domain

import (
	"context"
	"io"
	"time"
)

// SignalBus distributes completed analyses to interested consumers, both as
// ephemeral pub/sub messages and as a durable ordered stream.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
}

// RateLimiter provides distributed request rate limiting for the HTTP
// gateway.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads objects to blob storage. Used by the expiry archiver.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
