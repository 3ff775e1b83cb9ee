//go:build integration

package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/GTDGit/gtd_auth/internal/cache"
)

func setupRedis(t *testing.T) *cache.RedisClient {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.Run(ctx, "redis:7-alpine",
		testcontainers.WithExposedPorts("6379/tcp"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := cache.NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: addr}))
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(ctx))
	return client
}

func TestRedisClient(t *testing.T) {
	ctx := context.Background()
	client := setupRedis(t)

	t.Run("increment sets ttl once", func(t *testing.T) {
		for want := int64(1); want <= 3; want++ {
			n, err := client.Increment(ctx, "ratelimit:test", 500*time.Millisecond)
			require.NoError(t, err)
			assert.Equal(t, want, n)
		}
		time.Sleep(700 * time.Millisecond)
		n, err := client.Increment(ctx, "ratelimit:test", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})

	t.Run("set if absent", func(t *testing.T) {
		ok, err := client.SetIfAbsent(ctx, "auth:revoked:x", "u", time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = client.SetIfAbsent(ctx, "auth:revoked:x", "u", time.Minute)
		require.NoError(t, err)
		assert.False(t, ok)

		exists, err := client.Exists(ctx, "auth:revoked:x")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("get miss", func(t *testing.T) {
		_, err := client.Get(ctx, "nope")
		assert.ErrorIs(t, err, cache.ErrCacheMiss)
	})
}
