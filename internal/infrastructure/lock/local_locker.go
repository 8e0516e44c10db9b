package lock

import (
	"context"
	"sync"
	"time"

	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/google/uuid"
)

type localEntry struct {
	token     uint64
	expiresAt time.Time
}

// LocalOrderLocker locks orders within one process. Locks expire after their
// TTL like the Redis locks do.
type LocalOrderLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]localEntry
	next  uint64
	now   func() time.Time
}

// NewLocalOrderLocker creates an empty locker
func NewLocalOrderLocker() *LocalOrderLocker {
	return &LocalOrderLocker{
		locks: make(map[uuid.UUID]localEntry),
		now:   time.Now,
	}
}

// Acquire takes the order lock without blocking. It returns
// billing.ErrOrderLocked when another holder has an unexpired lock.
func (l *LocalOrderLocker) Acquire(_ context.Context, orderID uuid.UUID, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if held, ok := l.locks[orderID]; ok && now.Before(held.expiresAt) {
		return nil, billing.ErrOrderLocked
	}

	l.next++
	token := l.next
	l.locks[orderID] = localEntry{token: token, expiresAt: now.Add(ttl)}

	release := func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if held, ok := l.locks[orderID]; ok && held.token == token {
			delete(l.locks, orderID)
		}
		return nil
	}
	return release, nil
}

var _ billing.OrderLocker = (*LocalOrderLocker)(nil)
