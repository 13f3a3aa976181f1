package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// LRUCache implements Cache with a fixed capacity and TTL-based expiry.
// Expired entries are removed lazily on Get; when an insert exceeds capacity
// the least recently used entry is evicted. Safe for concurrent use.
type LRUCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List // front = most recently used

	// onEvict, when set, is called (outside no locks held guarantees; keep it
	// cheap) for each capacity eviction. Used to feed the eviction metric.
	onEvict func(key string)
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// NewLRUCache creates a bounded in-memory cache. Capacity must be positive;
// values <= 0 fall back to 1024 entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &LRUCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// OnEvict registers a callback invoked for each capacity eviction.
func (c *LRUCache) OnEvict(fn func(key string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvict = fn
}

// Get returns the cached value for key if present and not expired. An expired
// entry is removed and reported as a miss.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	entry := elem.Value.(*lruEntry)
	if time.Now().After(entry.expiresAt) {
		c.order.Remove(elem)
		delete(c.entries, key)
		return nil, false, nil
	}
	c.order.MoveToFront(elem)
	return entry.value, true, nil
}

// Set stores value under key with the given TTL, overwriting any previous
// entry. Inserting past capacity evicts the least recently used entry.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := time.Now().Add(ttl)
	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		c.order.MoveToFront(elem)
		return nil
	}

	elem := c.order.PushFront(&lruEntry{key: key, value: value, expiresAt: expiresAt})
	c.entries[key] = elem

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			evicted := oldest.Value.(*lruEntry)
			c.order.Remove(oldest)
			delete(c.entries, evicted.key)
			if c.onEvict != nil {
				c.onEvict(evicted.key)
			}
		}
	}
	return nil
}

// Len returns the number of physically present entries, expired included.
func (c *LRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
