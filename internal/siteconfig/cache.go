// internal/siteconfig/cache.go
//
// Read-through cache for public domain lookups.
//
// Context
// -------
// The editor front end resolves every page view through GetByDomain, so
// that path gets a small TTL cache with singleflight collapse: a burst of
// lookups for a cold domain performs one query, not N.  Writes that touch
// a domain call Invalidate so editors see their own saves immediately.
//
// Entries are evicted by a background ticker on TTL, and the whole map is
// dropped when it outgrows maxEntries; at the sizes involved (one pointer
// per domain) a full reset is cheaper than LRU bookkeeping.

package siteconfig

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/siteforge/siteforge/internal/metrics"
)

const evictInterval = time.Minute

type cacheEntry struct {
	rec      *Record
	err      error // ErrNotFound is cached too; absent domains are the hot case
	loadedAt int64 // unix nanos
}

// Cache wraps a Store with TTL-bounded domain lookups.
type Cache struct {
	store      *Store
	sfg        singleflight.Group
	m          sync.Map // domain → *cacheEntry
	ttl        time.Duration
	maxEntries int
	count      atomic.Int64
	done       chan struct{}
}

// NewCache starts the background evictor.  Call Close on shutdown.
func NewCache(store *Store, ttl time.Duration, maxEntries int) *Cache {
	c := &Cache{
		store:      store,
		ttl:        ttl,
		maxEntries: maxEntries,
		done:       make(chan struct{}),
	}
	go c.evictLoop()
	return c
}

// GetByDomain returns the active record for domain, serving from cache
// within the TTL.  Concurrent misses for the same domain collapse into a
// single store query.
func (c *Cache) GetByDomain(ctx context.Context, domain string) (*Record, error) {
	if v, ok := c.m.Load(domain); ok {
		ent := v.(*cacheEntry)
		if time.Since(time.Unix(0, ent.loadedAt)) < c.ttl {
			metrics.ConfigCacheHitsTotal.Inc()
			return ent.rec, ent.err
		}
	}

	v, err, _ := c.sfg.Do(domain, func() (any, error) {
		rec, err := c.store.GetByDomain(ctx, domain)
		if err != nil && err != ErrNotFound {
			// Storage trouble is never cached.
			return nil, err
		}
		ent := &cacheEntry{rec: rec, err: err, loadedAt: time.Now().UnixNano()}
		if _, loaded := c.m.Swap(domain, ent); !loaded {
			metrics.ConfigCacheEntries.Set(float64(c.count.Add(1)))
		}
		return ent, nil
	})
	if err != nil {
		return nil, err
	}
	ent := v.(*cacheEntry)
	return ent.rec, ent.err
}

// Invalidate drops the cached entry for domain.  Called after any write
// that can change what the domain resolves to.
func (c *Cache) Invalidate(domain string) {
	if _, loaded := c.m.LoadAndDelete(domain); loaded {
		metrics.ConfigCacheEntries.Set(float64(c.count.Add(-1)))
	}
}

// Close stops the evictor goroutine.
func (c *Cache) Close() { close(c.done) }

func (c *Cache) evictLoop() {
	t := time.NewTicker(evictInterval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
		}

		if int(c.count.Load()) > c.maxEntries {
			c.m.Range(func(k, _ any) bool {
				c.m.Delete(k)
				return true
			})
			c.count.Store(0)
			metrics.ConfigCacheEntries.Set(0)
			continue
		}

		now := time.Now()
		c.m.Range(func(k, v any) bool {
			ent := v.(*cacheEntry)
			if now.Sub(time.Unix(0, ent.loadedAt)) > c.ttl {
				if _, loaded := c.m.LoadAndDelete(k); loaded {
					metrics.ConfigCacheEntries.Set(float64(c.count.Add(-1)))
				}
			}
			return true
		})
	}
}
