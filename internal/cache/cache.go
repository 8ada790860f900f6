// Package cache implements the Schema Version Cache: a bounded, TTL'd,
// single-flighted lookup cache keyed by schema name and version.
// No ready-made LRU library appears anywhere in the example corpus, so
// eviction is hand-rolled; golang.org/x/sync/singleflight supplies the
// in-flight request collapsing, the one caching primitive the corpus
// does carry.
package cache

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Key identifies one cached entry.
type Key struct {
	Name    string
	Version int
}

// Loader fetches the value for a cache miss.
type Loader func(ctx context.Context, key Key) (any, error)

// Stats is a point-in-time snapshot of cache activity, exposed for the
// metrics and admin-cache-stats surfaces.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

type entry struct {
	key       Key
	value     any
	expiresAt time.Time
}

// Cache is a bounded, TTL'd, single-flighted cache of arbitrary values
// keyed by Key. It is safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	items    map[Key]*list.Element // -> *entry
	order    *list.List            // most-recently-used at the front

	group singleflight.Group

	hits      int64
	misses    int64
	evictions int64
}

// New creates a cache bounded to capacity entries, each valid for ttl
// after insertion. A non-positive capacity or ttl disables bounding or
// expiry respectively.
func New(capacity int, ttl time.Duration) *Cache {
	return &Cache{
		capacity: capacity,
		ttl:      ttl,
		items:    make(map[Key]*list.Element),
		order:    list.New(),
	}
}

// Get returns the cached value for key, loading it via load on a miss.
// Concurrent Get calls for the same key that miss together share a
// single load call.
func (c *Cache) Get(ctx context.Context, key Key, load Loader) (any, error) {
	if v, ok := c.lookup(key, true); ok {
		return v, nil
	}

	groupKey := key.Name + "\x00" + strconv.Itoa(key.Version)
	v, err, _ := c.group.Do(groupKey, func() (any, error) {
		// Recheck without counting: the miss was already recorded above.
		if v, ok := c.lookup(key, false); ok {
			return v, nil
		}
		v, err := load(ctx, key)
		if err != nil {
			return nil, err
		}
		c.insert(key, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Invalidate removes any cached entry for key. The engine does not call
// it: version rows are immutable, so entries are only dropped by expiry
// or eviction.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
		delete(c.items, key)
	}
}

// Stats returns a snapshot of cache activity counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Size:      len(c.items),
	}
}

func (c *Cache) lookup(key Key, count bool) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		if count {
			c.misses++
		}
		return nil, false
	}
	e := el.Value.(*entry)
	if c.ttl > 0 && time.Now().After(e.expiresAt) {
		c.order.Remove(el)
		delete(c.items, key)
		c.evictions++
		if count {
			c.misses++
		}
		return nil, false
	}
	c.order.MoveToFront(el)
	if count {
		c.hits++
	}
	return e.value, true
}

func (c *Cache) insert(key Key, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Time{}
	if c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = value
		el.Value.(*entry).expiresAt = expiresAt
		c.order.MoveToFront(el)
		return
	}

	el := c.order.PushFront(&entry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = el

	if c.capacity > 0 {
		for len(c.items) > c.capacity {
			oldest := c.order.Back()
			if oldest == nil {
				break
			}
			c.order.Remove(oldest)
			delete(c.items, oldest.Value.(*entry).key)
			c.evictions++
		}
	}
}
