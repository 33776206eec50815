package ports

import (
	"context"
	"time"
)

// StateStore is a durable key-value store for serialized component state.
// Get returns (nil, nil) when the key does not exist.
type StateStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
