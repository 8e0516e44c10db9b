package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys that were already handled so that a second
// attempt within the TTL can be skipped. The billing cron uses it to keep
// concurrent instances from dispatching the same order twice.
type IdempotencyStore interface {
	// MarkProcessed records the key with a TTL.
	// Returns true if the key was newly recorded, false if it already existed.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been recorded
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Release forgets the key so the work can be recorded again
	Release(ctx context.Context, key string) error

	// Close closes the store and releases resources
	Close() error
}
