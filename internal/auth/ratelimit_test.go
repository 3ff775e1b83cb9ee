package auth_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/gtd_auth/internal/auth"
	"github.com/GTDGit/gtd_auth/internal/utils"
)

func TestRateLimiterFixedWindow(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	limiter := auth.NewRateLimiter(newMemoryCache(clk), map[auth.RateAction]auth.Rule{
		auth.RateLogin: {Limit: 3, Window: time.Minute},
	}, auth.WithClock(clk.Now))

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Allow(ctx, auth.RateLogin, "alice|10.0.0.1"), "attempt %d", i+1)
	}

	clk.Advance(20 * time.Second)
	err := limiter.Allow(ctx, auth.RateLogin, "alice|10.0.0.1")
	require.ErrorIs(t, err, utils.ErrRateLimited)

	var limited *utils.RateLimitedError
	require.True(t, errors.As(err, &limited))
	assert.Equal(t, 40*time.Second, limited.RetryAfter)
	assert.Equal(t, string(auth.RateLogin), limited.Action)

	t.Run("other identities have their own budget", func(t *testing.T) {
		assert.NoError(t, limiter.Allow(ctx, auth.RateLogin, "bob|10.0.0.1"))
	})

	t.Run("next window starts fresh", func(t *testing.T) {
		clk.Advance(40 * time.Second)
		assert.NoError(t, limiter.Allow(ctx, auth.RateLogin, "alice|10.0.0.1"))
	})

	t.Run("actions without a rule are allowed", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			assert.NoError(t, limiter.Allow(ctx, auth.RateRegister, "10.0.0.1"))
		}
	})
}

func TestRateLimiterCheckAndIncrement(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	limiter := auth.NewRateLimiter(newMemoryCache(clk), nil, auth.WithClock(clk.Now))

	require.NoError(t, limiter.CheckAndIncrement(ctx, "reset:10.0.0.9", time.Hour, 1))
	assert.ErrorIs(t, limiter.CheckAndIncrement(ctx, "reset:10.0.0.9", time.Hour, 1), utils.ErrRateLimited)

	t.Run("zero limit disables the check", func(t *testing.T) {
		assert.NoError(t, limiter.CheckAndIncrement(ctx, "any", time.Hour, 0))
	})
}

func TestRateLimiterConcurrent(t *testing.T) {
	ctx := context.Background()
	clk := newFakeClock()
	limiter := auth.NewRateLimiter(newMemoryCache(clk), map[auth.RateAction]auth.Rule{
		auth.RateLoginIP: {Limit: 10, Window: time.Minute},
	}, auth.WithClock(clk.Now))

	var allowed, rejected atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Allow(ctx, auth.RateLoginIP, "10.0.0.1"); err != nil {
				rejected.Add(1)
				return
			}
			allowed.Add(1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), allowed.Load())
	assert.Equal(t, int64(40), rejected.Load())
}

func TestRateLimiterCacheFailure(t *testing.T) {
	boom := utils.Unavailable("redis increment", errors.New("connection refused"))
	limiter := auth.NewRateLimiter(failingCache{err: boom}, map[auth.RateAction]auth.Rule{
		auth.RateLogin: {Limit: 1, Window: time.Minute},
	})

	err := limiter.Allow(context.Background(), auth.RateLogin, "alice")
	assert.ErrorIs(t, err, utils.ErrUnavailable)
	assert.NotErrorIs(t, err, utils.ErrRateLimited)
}
