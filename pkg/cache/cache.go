// Package cache memoizes primary resolution results by canonical input.
package cache

import (
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/hazyhaar/combine-registry/pkg/match"
)

// DefaultTTL is how long a cached result stays valid.
const DefaultTTL = 24 * time.Hour

// Options configure a Cache.
type Options struct {
	TTL time.Duration
	// MaxEntries bounds the cache. 0 means unbounded. The bound is soft under
	// concurrent writers.
	MaxEntries int
	// Now supplies the clock used for expiry. Defaults to time.Now.
	Now func() time.Time
}

type entry struct {
	result     match.Result
	insertedAt time.Time
}

// Cache maps canonical input to the primary result resolved for it.
// It is safe for concurrent use.
type Cache struct {
	items *gocache.Cache
	ttl   time.Duration
	max   int
	now   func() time.Time
	// gen counts invalidations and flushes.
	gen atomic.Uint64
}

// New returns an empty cache. The go-cache janitor sweeps expired items every
// TTL/4.
func New(opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Cache{
		items: gocache.New(opts.TTL, opts.TTL/4),
		ttl:   opts.TTL,
		max:   opts.MaxEntries,
		now:   opts.Now,
	}
}

// TTL returns the configured time to live.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the cached primary result for key. An entry at or past its TTL
// is evicted and reported as a miss.
func (c *Cache) Get(key string) (match.Result, bool) {
	v, ok := c.items.Get(key)
	if !ok {
		return match.Result{}, false
	}
	e := v.(entry)
	if c.expired(e) {
		c.items.Delete(key)
		return match.Result{}, false
	}
	return e.result.Clone(), true
}

// Put stores the primary result for key, replacing any previous entry.
// Alternatives are not cached. When the cache is full and nothing has
// expired, the put is dropped.
func (c *Cache) Put(key string, r match.Result) bool {
	if c.max > 0 && c.items.ItemCount() >= c.max {
		if _, exists := c.items.Get(key); !exists {
			c.purge()
			if c.items.ItemCount() >= c.max {
				return false
			}
		}
	}
	r = r.Clone()
	r.Alternatives = nil
	c.items.Set(key, entry{result: r, insertedAt: c.now()}, gocache.DefaultExpiration)
	return true
}

// Generation returns a counter that moves on every Invalidate and Flush.
// Read it before resolving and hand it to PutIfCurrent.
func (c *Cache) Generation() uint64 { return c.gen.Load() }

// PutIfCurrent is Put for a result computed after Generation returned gen.
// If anything was invalidated since, the result may predate that change and
// is not stored.
func (c *Cache) PutIfCurrent(key string, r match.Result, gen uint64) bool {
	if c.gen.Load() != gen {
		return false
	}
	if !c.Put(key, r) {
		return false
	}
	// An invalidation between the check and the store.
	if c.gen.Load() != gen {
		c.items.Delete(key)
		return false
	}
	return true
}

// Invalidate removes key.
func (c *Cache) Invalidate(key string) {
	c.gen.Add(1)
	c.items.Delete(key)
}

// Flush removes every entry.
func (c *Cache) Flush() {
	c.gen.Add(1)
	c.items.Flush()
}

// Len returns the number of stored entries, expired ones included until they
// are swept.
func (c *Cache) Len() int { return c.items.ItemCount() }

func (c *Cache) expired(e entry) bool {
	return c.now().Sub(e.insertedAt) >= c.ttl
}

func (c *Cache) purge() {
	c.items.DeleteExpired()
	for k, it := range c.items.Items() {
		if e, ok := it.Object.(entry); ok && c.expired(e) {
			c.items.Delete(k)
		}
	}
}
