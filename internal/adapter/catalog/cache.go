package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/tsunami-alert-service/internal/domain"
	"github.com/couchcryptid/tsunami-alert-service/internal/observability"
)

// CachedCatalog wraps an AftershockCatalog with an in-memory LRU cache keyed
// by event id. Entries expire after ttl since aftershock counts keep growing.
type CachedCatalog struct {
	inner   domain.AftershockCatalog
	cache   *lruCache
	ttl     time.Duration
	clock   clockwork.Clock
	metrics *observability.Metrics
}

// NewCachedCatalog creates a cache decorator around a catalog.
func NewCachedCatalog(inner domain.AftershockCatalog, maxEntries int, ttl time.Duration, clock clockwork.Clock, metrics *observability.Metrics) *CachedCatalog {
	return &CachedCatalog{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		ttl:     ttl,
		clock:   clock,
		metrics: metrics,
	}
}

func (c *CachedCatalog) Name() string { return c.inner.Name() }

func (c *CachedCatalog) Aftershocks(ctx context.Context, src domain.EarthquakeSource) (domain.HistoricalSummary, error) {
	now := c.clock.Now()
	if summary, ok := c.cache.get(src.ID, now); ok {
		c.metrics.CatalogCache.WithLabelValues("hit").Inc()
		return summary, nil
	}
	c.metrics.CatalogCache.WithLabelValues("miss").Inc()

	summary, err := c.inner.Aftershocks(ctx, src)
	if err != nil {
		// Failures are not cached so the next event retries.
		return summary, err
	}
	c.cache.put(src.ID, summary, now.Add(c.ttl))
	return summary, nil
}

// lruCache is a thread-safe LRU cache of HistoricalSummary values with
// per-entry expiry.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key       string
	value     domain.HistoricalSummary
	expiresAt time.Time
	prev      *entry
	next      *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string, now time.Time) (domain.HistoricalSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return domain.HistoricalSummary{}, false
	}
	if !now.Before(e.expiresAt) {
		delete(c.entries, key)
		c.remove(e)
		return domain.HistoricalSummary{}, false
	}
	c.moveToFront(e)
	return e.value, true
}

func (c *lruCache) put(key string, value domain.HistoricalSummary, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = expiresAt
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value, expiresAt: expiresAt}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
