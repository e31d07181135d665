package domain

import (
	"context"
	"io"
	"time"
)

// EventBus publishes ETL lifecycle events. Pub/Sub delivery feeds live
// dashboard clients; stream delivery keeps a short durable history.
type EventBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// StreamMessage is a single durable event read back from a stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// LockManager provides distributed advisory locks. Acquire returns an unlock
// function on success and ErrLockHeld when another party holds the lock.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles calls against a shared budget identified by key.
// Allow counts the request when it is admitted; callers poll when denied.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// BlobWriter uploads objects to cold storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}
