package auth_test

import (
	"sync"
	"time"

	"github.com/GTDGit/gtd_auth/internal/cache"
	"github.com/GTDGit/gtd_auth/internal/config"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		JWTSecret:  "test-secret-test-secret-test-secret",
		Issuer:     "gtd_auth_test",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
		ResetTTL:   30 * time.Minute,
		VerifyTTL:  24 * time.Hour,
	}
}

func newMemoryCache(clk *fakeClock) *cache.MemoryStore {
	return cache.NewMemoryStore(cache.WithClock(clk.Now))
}
