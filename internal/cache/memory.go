package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// sweepEvery bounds how many writes may pass between expiry sweeps.
const sweepEvery = 1024

type entry struct {
	value     string
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process key-value store with TTLs. It serves
// single-node deployments and tests; all operations are atomic under one lock.
type MemoryStore struct {
	mu     sync.Mutex
	items  map[string]entry
	now    func() time.Time
	writes int
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces time.Now for expiry decisions.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *MemoryStore) { m.now = now }
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{items: make(map[string]entry), now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Increment adds one to key, creating it with ttl when absent or expired.
func (m *MemoryStore) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.items[key]
	if !ok || e.expired(now) {
		m.setLocked(key, "1", ttl, now)
		return 1, nil
	}

	n, err := strconv.ParseInt(e.value, 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	e.value = strconv.FormatInt(n, 10)
	m.items[key] = e
	return n, nil
}

// SetIfAbsent stores value unless a live entry exists.
func (m *MemoryStore) SetIfAbsent(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if e, ok := m.items[key]; ok && !e.expired(now) {
		return false, nil
	}
	m.setLocked(key, value, ttl, now)
	return true, nil
}

// Exists reports whether a live entry exists for key.
func (m *MemoryStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	return ok && !e.expired(m.now()), nil
}

// Set stores value under key. A zero ttl never expires.
func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.setLocked(key, value, ttl, m.now())
	return nil
}

// Get returns the value for key or ErrCacheMiss.
func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[key]
	if !ok || e.expired(m.now()) {
		return "", ErrCacheMiss
	}
	return e.value, nil
}

// Delete removes keys.
func (m *MemoryStore) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.items, k)
	}
	return nil
}

// Len returns the number of live entries.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(m.now())
	return len(m.items)
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) setLocked(key, value string, ttl time.Duration, now time.Time) {
	e := entry{value: value}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}
	m.items[key] = e

	m.writes++
	if m.writes >= sweepEvery {
		m.writes = 0
		m.sweepLocked(now)
	}
}

func (m *MemoryStore) sweepLocked(now time.Time) {
	for k, e := range m.items {
		if e.expired(now) {
			delete(m.items, k)
		}
	}
}
