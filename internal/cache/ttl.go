package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/onnwee/menulive/internal/metrics"
)

// DefaultTTL is how long an entry is served after it was stored.
const DefaultTTL = 30 * time.Second

// Option customises a TTL cache.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, letting tests move time deterministically.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// TTL memoizes payloads of type T for a bounded time window.
// An entry is served only while now-StoredAt <= ttl.
type TTL[T any] struct {
	name    string
	ttl     time.Duration
	now     func() time.Time
	backend Backend

	mu    sync.Mutex
	stats Stats
}

// NewTTL creates a cache named name (used as the metrics label) over backend.
// A non-positive ttl means DefaultTTL.
func NewTTL[T any](name string, backend Backend, ttl time.Duration, opts ...Option) *TTL[T] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if backend == nil {
		backend = NewMemory()
	}
	return &TTL[T]{
		name:    name,
		ttl:     ttl,
		now:     o.now,
		backend: backend,
	}
}

// Get returns the payload stored under key if it is still fresh. Stale entries
// are evicted and reported as a miss.
func (c *TTL[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.liveLocked(key)
	if !ok {
		c.stats.Misses++
		metrics.CacheMisses.WithLabelValues(c.name).Inc()
		return zero, false
	}
	c.stats.Hits++
	metrics.CacheHits.WithLabelValues(c.name).Inc()
	return e.Payload.(T), true
}

// Peek is Get without touching hit/miss statistics.
func (c *TTL[T]) Peek(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.liveLocked(key)
	if !ok {
		return zero, false
	}
	return e.Payload.(T), true
}

// liveLocked loads key and drops it when expired or of the wrong type.
func (c *TTL[T]) liveLocked(key string) (*Entry, bool) {
	e, ok := c.backend.Load(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(e.StoredAt) > c.ttl {
		c.backend.Delete(key)
		c.stats.Expirations++
		metrics.CacheExpirations.WithLabelValues(c.name).Inc()
		return nil, false
	}
	if _, ok := e.Payload.(T); !ok {
		c.backend.Delete(key)
		return nil, false
	}
	return e, true
}

// Put stores payload under key with StoredAt=now, replacing any previous entry.
func (c *TTL[T]) Put(key string, payload T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backend.Store(&Entry{Key: key, Payload: payload, StoredAt: c.now()})
}

// Update patches a fresh entry in place. fn receives the current payload and
// returns the replacement and whether anything changed. StoredAt is preserved:
// a patch does not extend the entry's lifetime. Update reports whether a change
// was stored.
func (c *TTL[T]) Update(key string, fn func(T) (T, bool)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.liveLocked(key)
	if !ok {
		return false
	}
	next, changed := fn(e.Payload.(T))
	if !changed {
		return false
	}
	c.backend.Store(&Entry{Key: key, Payload: next, StoredAt: e.StoredAt})
	return true
}

// Invalidate removes key and reports whether it was present.
func (c *TTL[T]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.backend.Delete(key) {
		return false
	}
	c.countInvalidations(1)
	return true
}

// InvalidatePrefix removes every key starting with prefix and returns the count.
func (c *TTL[T]) InvalidatePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, k := range c.backend.Keys() {
		if strings.HasPrefix(k, prefix) && c.backend.Delete(k) {
			n++
		}
	}
	c.countInvalidations(n)
	return n
}

// InvalidateAll empties the cache and returns how many entries were dropped.
func (c *TTL[T]) InvalidateAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.backend.Clear()
	c.countInvalidations(n)
	return n
}

func (c *TTL[T]) countInvalidations(n int) {
	if n == 0 {
		return
	}
	c.stats.Invalidations += uint64(n)
	metrics.CacheInvalidations.WithLabelValues(c.name).Add(float64(n))
}

// Keys lists the keys currently held. Expired entries may still be listed until read.
func (c *TTL[T]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Keys()
}

// Len returns the number of entries held.
func (c *TTL[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backend.Len()
}

// Name returns the metrics label of the cache.
func (c *TTL[T]) Name() string { return c.name }

// TTL returns the configured time-to-live.
func (c *TTL[T]) TTL() time.Duration { return c.ttl }

// Stats returns cache statistics.
func (c *TTL[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Items = c.backend.Len()
	return s
}
