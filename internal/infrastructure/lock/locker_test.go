package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/erp/recurring-billing/internal/domain/billing"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisLocker(t *testing.T) (*RedisOrderLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisOrderLocker(client, ""), mr
}

func TestRedisOrderLocker(t *testing.T) {
	ctx := context.Background()

	t.Run("acquire and release", func(t *testing.T) {
		locker, mr := newTestRedisLocker(t)
		orderID := uuid.New()

		release, err := locker.Acquire(ctx, orderID, time.Minute)
		require.NoError(t, err)
		assert.True(t, mr.Exists(DefaultKeyPrefix+orderID.String()))

		require.NoError(t, release(ctx))
		assert.False(t, mr.Exists(DefaultKeyPrefix+orderID.String()))

		release, err = locker.Acquire(ctx, orderID, time.Minute)
		require.NoError(t, err)
		require.NoError(t, release(ctx))
	})

	t.Run("held lock is reported", func(t *testing.T) {
		locker, _ := newTestRedisLocker(t)
		orderID := uuid.New()

		release, err := locker.Acquire(ctx, orderID, time.Minute)
		require.NoError(t, err)
		defer release(ctx)

		_, err = locker.Acquire(ctx, orderID, time.Minute)
		assert.ErrorIs(t, err, billing.ErrOrderLocked)

		other, err := locker.Acquire(ctx, uuid.New(), time.Minute)
		require.NoError(t, err, "locks are per order")
		require.NoError(t, other(ctx))
	})

	t.Run("lock expires with its TTL", func(t *testing.T) {
		locker, mr := newTestRedisLocker(t)
		orderID := uuid.New()

		_, err := locker.Acquire(ctx, orderID, time.Minute)
		require.NoError(t, err)
		mr.FastForward(2 * time.Minute)

		release, err := locker.Acquire(ctx, orderID, time.Minute)
		require.NoError(t, err)
		require.NoError(t, release(ctx))
	})

	t.Run("stale release does not free another holder's lock", func(t *testing.T) {
		locker, mr := newTestRedisLocker(t)
		orderID := uuid.New()

		stale, err := locker.Acquire(ctx, orderID, time.Minute)
		require.NoError(t, err)
		mr.FastForward(2 * time.Minute)

		_, err = locker.Acquire(ctx, orderID, time.Minute)
		require.NoError(t, err)

		require.NoError(t, stale(ctx))
		assert.True(t, mr.Exists(DefaultKeyPrefix+orderID.String()))
		_, err = locker.Acquire(ctx, orderID, time.Minute)
		assert.ErrorIs(t, err, billing.ErrOrderLocked)
	})

	t.Run("redis errors are not reported as held locks", func(t *testing.T) {
		locker, mr := newTestRedisLocker(t)
		mr.SetError("LOADING")

		_, err := locker.Acquire(ctx, uuid.New(), time.Minute)
		require.Error(t, err)
		assert.NotErrorIs(t, err, billing.ErrOrderLocked)
	})
}

func TestLocalOrderLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	locker := NewLocalOrderLocker()
	locker.now = func() time.Time { return now }
	orderID := uuid.New()

	release, err := locker.Acquire(ctx, orderID, time.Minute)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, orderID, time.Minute)
	assert.ErrorIs(t, err, billing.ErrOrderLocked)

	require.NoError(t, release(ctx))
	require.NoError(t, release(ctx), "release is idempotent")

	stale, err := locker.Acquire(ctx, orderID, time.Minute)
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	fresh, err := locker.Acquire(ctx, orderID, time.Minute)
	require.NoError(t, err, "expired locks can be taken over")

	require.NoError(t, stale(ctx))
	_, err = locker.Acquire(ctx, orderID, time.Minute)
	assert.ErrorIs(t, err, billing.ErrOrderLocked, "stale release leaves the new lock")
	require.NoError(t, fresh(ctx))
}
