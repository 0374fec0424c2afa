// Package cache memoizes enrichment results per (text, target) pair with a
// time-to-live and a capacity bound.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"arlens/internal/logger"
)

// Key identifies a cached enrichment.
type Key struct {
	Text   string
	Target string
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Size        int    `json:"size"`
	Capacity    int    `json:"capacity"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Evictions   uint64 `json:"evictions"`
	Expirations uint64 `json:"expirations"`
	RemoteHits  uint64 `json:"remote_hits"`
}

type entry struct {
	value     string
	createdAt time.Time
}

// Cache is a TTL-aware, capacity-bounded map from Key to derived value.
// Reads never refresh an entry, so capacity eviction removes the entry that
// was stored longest ago. All methods are safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	lru      *expirable.LRU[Key, entry]
	capacity int
	ttl      time.Duration
	remote   RemoteStore
	logger   *logger.Logger
	now      func() time.Time

	hits        atomic.Uint64
	misses      atomic.Uint64
	evictions   atomic.Uint64
	expirations atomic.Uint64
	remoteHits  atomic.Uint64
}

// New creates a cache. capacity is clamped to at least 1; expired entries are
// also swept in the background by the underlying LRU.
func New(capacity int, ttl time.Duration, log *logger.Logger) *Cache {
	if capacity < 1 {
		capacity = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Cache{
		lru:      expirable.NewLRU[Key, entry](capacity, nil, ttl),
		capacity: capacity,
		ttl:      ttl,
		logger:   log,
		now:      time.Now,
	}
}

// WithRemote attaches a shared second tier consulted on local misses.
func (c *Cache) WithRemote(remote RemoteStore) *Cache {
	c.remote = remote
	return c
}

// Get returns the derived value for key if a live entry exists. An expired
// entry found here is removed and reported as a miss.
func (c *Cache) Get(ctx context.Context, key Key) (string, bool) {
	if value, ok := c.getLocal(key); ok {
		c.hits.Add(1)
		return value, true
	}

	if c.remote != nil {
		remote, ok, err := c.remote.Get(ctx, key)
		if err != nil {
			c.logger.Warning("Remote cache lookup failed: %v", err)
		} else if ok {
			c.remoteHits.Add(1)
			c.hits.Add(1)
			// The local copy keeps the remote entry's age so it expires
			// when the remote one does. Without a known lifetime it is
			// not copied.
			if remote.TTL > 0 {
				age := max(c.ttl-remote.TTL, 0)
				c.putLocal(key, remote.Value, c.now().Add(-age))
			}
			return remote.Value, true
		}
	}

	c.misses.Add(1)
	return "", false
}

// Put stores value under key with a fresh creation time, evicting the oldest
// entry when the cache is at capacity.
func (c *Cache) Put(ctx context.Context, key Key, value string) {
	c.putLocal(key, value, c.now())

	if c.remote != nil {
		if err := c.remote.Set(ctx, key, value, c.ttl); err != nil {
			c.logger.Warning("Remote cache store failed: %v", err)
		}
	}
}

// Len returns the number of entries held locally, including any expired
// entries not yet purged.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Purge drops every local entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	return Stats{
		Size:        c.Len(),
		Capacity:    c.capacity,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evictions.Load(),
		Expirations: c.expirations.Load(),
		RemoteHits:  c.remoteHits.Load(),
	}
}

// getLocal returns a hit only while now-createdAt < ttl. The age is checked
// here because the LRU's own expiry still reports an entry at exactly its
// expiry instant and knows nothing of entries copied from the remote tier.
func (c *Cache) getLocal(key Key) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.lru.Peek(key); ok && c.now().Sub(e.createdAt) < c.ttl {
		return e.value, true
	}
	// Peek hides expired entries that the sweeper has not reached yet.
	if c.lru.Contains(key) {
		c.lru.Remove(key)
		c.expirations.Add(1)
	}
	return "", false
}

func (c *Cache) putLocal(key Key, value string, createdAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-adding an existing key must restart its lifetime and move it to
	// the newest position, so drop it first.
	c.lru.Remove(key)
	if evicted := c.lru.Add(key, entry{value: value, createdAt: createdAt}); evicted {
		c.evictions.Add(1)
	}
}
