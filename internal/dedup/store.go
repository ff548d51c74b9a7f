// Package dedup records recently completed requests so repeats inside a
// short window can be answered from cache.
package dedup

import (
	"context"
	"time"
)

// Store keeps values under a key until their TTL expires.
type Store interface {
	// Get returns the value for key, or ok=false when absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// SetNX stores value under key for ttl unless an unexpired value exists.
	// It reports whether the value was stored.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Evictor is implemented by stores that need explicit expiry sweeps.
type Evictor interface {
	EvictExpired(ctx context.Context) (int, error)
}
