// Package cache provides the time-bounded, process-local caches used by the sync engine:
// the addon manifest and metadata caches, the freshness memo and the search side table.
//
// Callers depend on the Cache interface so tests can inject a TTL cache driven by a ManualClock.
package cache

import (
	"sync"
	"time"
)

// Cache is a swappable key/value port with per-entry expiry.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Purge()
}

// Clock abstracts time for expiry decisions
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock that only moves when told to
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts a manual clock at t
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// TTL is an in-memory Cache whose entries expire a fixed duration after Set.
// A non-positive ttl keeps entries until deleted.
type TTL[K comparable, V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	clock Clock
	items map[K]item[V]
}

var _ Cache[string, int] = (*TTL[string, int])(nil)

// NewTTL creates a TTL cache. A nil clock uses the wall clock.
func NewTTL[K comparable, V any](ttl time.Duration, clock Clock) *TTL[K, V] {
	if clock == nil {
		clock = SystemClock{}
	}
	return &TTL[K, V]{ttl: ttl, clock: clock, items: make(map[K]item[V])}
}

func (c *TTL[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		var zero V
		return zero, false
	}
	if !it.expiresAt.IsZero() && !c.clock.Now().Before(it.expiresAt) {
		c.mu.Lock()
		// Re-check so a concurrent Set is not dropped
		if cur, ok := c.items[key]; ok && cur.expiresAt.Equal(it.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return it.value, true
}

func (c *TTL[K, V]) Set(key K, value V) {
	var expiresAt time.Time
	if c.ttl > 0 {
		expiresAt = c.clock.Now().Add(c.ttl)
	}
	c.mu.Lock()
	c.items[key] = item[V]{value: value, expiresAt: expiresAt}
	c.mu.Unlock()
}

func (c *TTL[K, V]) Delete(key K) {
	c.mu.Lock()
	delete(c.items, key)
	c.mu.Unlock()
}

func (c *TTL[K, V]) Purge() {
	c.mu.Lock()
	c.items = make(map[K]item[V])
	c.mu.Unlock()
}

// Len returns the number of stored entries, expired ones included until they are read
func (c *TTL[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Nop is a Cache that stores nothing
type Nop[K comparable, V any] struct{}

func (Nop[K, V]) Get(K) (V, bool) {
	var zero V
	return zero, false
}
func (Nop[K, V]) Set(K, V) {}
func (Nop[K, V]) Delete(K) {}
func (Nop[K, V]) Purge() {}
