// Package lock implements billing.OrderLocker so that two workers never
// close or renew the same recurring order at the same time.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces order lock keys in Redis
const DefaultKeyPrefix = "billing:lock:order:"

// Deletes the lock only if it still holds our token, so a worker whose lock
// expired cannot release a lock taken over by another worker.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisOrderLocker locks orders with SET NX PX and a random token
type RedisOrderLocker struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisOrderLocker creates a locker on client. An empty prefix uses DefaultKeyPrefix.
func NewRedisOrderLocker(client redis.UniversalClient, prefix string) *RedisOrderLocker {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisOrderLocker{client: client, prefix: prefix}
}

// Acquire takes the order lock without blocking. It returns
// billing.ErrOrderLocked when another holder has it.
func (l *RedisOrderLocker) Acquire(ctx context.Context, orderID uuid.UUID, ttl time.Duration) (func(context.Context) error, error) {
	key := l.prefix + orderID.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock for order %s: %w", orderID, err)
	}
	if !ok {
		return nil, billing.ErrOrderLocked
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("release lock for order %s: %w", orderID, err)
		}
		return nil
	}
	return release, nil
}

var _ billing.OrderLocker = (*RedisOrderLocker)(nil)
