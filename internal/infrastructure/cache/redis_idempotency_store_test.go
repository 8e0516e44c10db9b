package cache

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/erp/recurring-billing/internal/infrastructure/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func miniredisConfig(t *testing.T, mr *miniredis.Miniredis) config.RedisConfig {
	t.Helper()
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	return config.RedisConfig{Host: mr.Host(), Port: port}
}

func TestRedisIdempotencyStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := NewRedisIdempotencyStoreWithClient(client, "")

	t.Run("records a key once", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "billing:cron:a:1714521600", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)

		isNew, err = store.MarkProcessed(ctx, "billing:cron:a:1714521600", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)

		assert.True(t, mr.Exists(DefaultIdempotencyKeyPrefix+"billing:cron:a:1714521600"))
	})

	t.Run("keys expire with their TTL", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "short", time.Minute)
		require.NoError(t, err)

		processed, err := store.IsProcessed(ctx, "short")
		require.NoError(t, err)
		assert.True(t, processed)

		mr.FastForward(2 * time.Minute)

		processed, err = store.IsProcessed(ctx, "short")
		require.NoError(t, err)
		assert.False(t, processed)

		isNew, err := store.MarkProcessed(ctx, "short", time.Minute)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("released keys can be recorded again", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "released", time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Release(ctx, "released"))
		assert.False(t, mr.Exists(DefaultIdempotencyKeyPrefix+"released"))

		isNew, err := store.MarkProcessed(ctx, "released", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
		assert.NoError(t, store.Release(ctx, "never-recorded"))
	})

	t.Run("reports redis errors", func(t *testing.T) {
		mr.SetError("LOADING")
		defer mr.SetError("")

		_, err := store.MarkProcessed(ctx, "k", time.Minute)
		assert.Error(t, err)
		_, err = store.IsProcessed(ctx, "k")
		assert.Error(t, err)
		assert.Error(t, store.Release(ctx, "k"))
	})

	t.Run("does not close a borrowed client", func(t *testing.T) {
		require.NoError(t, store.Close())
		assert.NoError(t, client.Ping(ctx).Err())
	})
}

func TestIdempotencyStoreFactory_CreateStore(t *testing.T) {
	ctx := context.Background()

	t.Run("uses redis when reachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		f := NewIdempotencyStoreFactory(miniredisConfig(t, mr), WithLogger(zap.NewNop()))

		store, err := f.CreateStore(ctx)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &RedisIdempotencyStore{}, store)
	})

	t.Run("falls back to memory when redis is down", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := miniredisConfig(t, mr)
		mr.Close()

		store, err := NewIdempotencyStoreFactory(cfg).CreateStore(ctx)
		require.NoError(t, err)
		defer store.Close()
		assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	})

	t.Run("fails without fallback", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := miniredisConfig(t, mr)
		mr.Close()

		_, err := NewIdempotencyStoreFactory(cfg, WithInMemoryFallback(false)).CreateStore(ctx)
		assert.Error(t, err)
	})
}
