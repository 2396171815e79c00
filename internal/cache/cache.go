// Package cache provides a small time-boxed in-memory cache used by source
// adapters for search results and directory listings.
package cache

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"
)

// TTL is a concurrency-safe map whose entries expire after a fixed duration.
// A read after an entry expires reports a miss and evicts the entry.
type TTL[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries *expirable.LRU[string, V]
}

// New creates a cache with the given entry lifetime. A non-positive ttl
// disables caching: Set is a no-op and Get always misses.
func New[V any](ttl time.Duration) *TTL[V] {
	return &TTL[V]{ttl: ttl}
}

// add stores value under key, creating the LRU on first use so adapters that
// never cache (connection probes) do not start its expiry sweeper. c.mu must
// be held.
func (c *TTL[V]) add(key string, value V) {
	if c.ttl <= 0 {
		return
	}
	if c.entries == nil {
		c.entries = expirable.NewLRU[string, V](0, nil, c.ttl)
	}
	c.entries.Add(key, value)
}

// Get returns the live value stored under key.
func (c *TTL[V]) Get(key string) (V, bool) {
	var zero V
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		return zero, false
	}

	v, ok := c.entries.Get(key)
	if !ok {
		// Expired entries linger until the next sweep.
		c.entries.Remove(key)
		return zero, false
	}
	return v, true
}

// Set stores value under key.
func (c *TTL[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.add(key, value)
}

// Invalidate drops every entry.
func (c *TTL[V]) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries != nil {
		c.entries.Purge()
	}
}

// Len returns the number of stored entries.
func (c *TTL[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.entries == nil {
		return 0
	}
	return c.entries.Len()
}

// Loader pairs a TTL cache with a singleflight group so concurrent misses for
// the same key run the load function once.
//
// Invalidate starts a new generation: loads begun before it neither store
// their result nor are shared with callers that arrive after it.
type Loader[V any] struct {
	group   singleflight.Group
	gen     atomic.Uint64
	entries *TTL[V]
}

// NewLoader creates a Loader whose successful loads live for ttl.
func NewLoader[V any](ttl time.Duration) *Loader[V] {
	return &Loader[V]{entries: New[V](ttl)}
}

// Get returns the cached value for key or runs load. Errors are not cached.
func (l *Loader[V]) Get(key string, load func() (V, error)) (V, error) {
	gen := l.gen.Load()
	if v, ok := l.entries.Get(key); ok {
		return v, nil
	}
	res, err, _ := l.group.Do(strconv.FormatUint(gen, 10)+"\x00"+key, func() (any, error) {
		v, err := load()
		if err != nil {
			return v, err
		}
		l.store(gen, key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}

func (l *Loader[V]) store(gen uint64, key string, v V) {
	l.entries.mu.Lock()
	defer l.entries.mu.Unlock()
	if l.gen.Load() != gen {
		return
	}
	l.entries.add(key, v)
}

// Invalidate drops every cached value.
func (l *Loader[V]) Invalidate() {
	l.entries.mu.Lock()
	l.gen.Add(1)
	if l.entries.entries != nil {
		l.entries.entries.Purge()
	}
	l.entries.mu.Unlock()
}
