package cache

import (
	"context"
	"time"

	"github.com/GTDGit/gtd_auth/internal/config"
)

// Store is the key-value-with-TTL service shared by the rate limiter and the
// token revocation set.
type Store interface {
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*RedisClient)(nil)
	_ Store = (*MemoryStore)(nil)
)

// New connects to Redis, or returns an in-process store when no host is
// configured.
func New(cfg *config.RedisConfig) (Store, error) {
	if cfg.Host == "" {
		return NewMemoryStore(), nil
	}
	return NewRedisClient(cfg)
}
