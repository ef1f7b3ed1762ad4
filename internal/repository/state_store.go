package repository

import (
	"context"
	"time"
)

// StateStore abstracts ephemeral key-value state shared between instances.
// Implementations: Redis (production) or in-memory (local dev / single instance).
type StateStore interface {
	// SetIfAbsent stores value under key only when the key does not exist yet and reports whether it did.
	SetIfAbsent(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}
