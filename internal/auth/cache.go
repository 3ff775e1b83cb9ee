package auth

import (
	"context"
	"time"
)

// Cache is the key-value-with-TTL service the primitives depend on.
// Implementations must make Increment and SetIfAbsent atomic.
type Cache interface {
	// Increment adds one to key and returns the new count. The TTL is set
	// when the key is created and left untouched afterwards.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// SetIfAbsent stores value only if key does not exist and reports
	// whether it did.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
}

// Option configures a primitive.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
