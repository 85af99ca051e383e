package memorycache

import (
	"container/list"
	"sync"

	"github.com/asakaida/kankei/pkg/cache"
)

// entry represents a cache entry
type entry[K comparable, V any] struct {
	key   K
	value V
}

// Cache implements a fixed-capacity LRU cache.
type Cache[K comparable, V any] struct {
	mu sync.Mutex

	// LRU tracking
	items     map[K]*list.Element // key -> list element
	evictList *list.List          // LRU list (front = most recent, back = least recent)

	maxEntries int

	metrics *cacheMetrics
}

type cacheMetrics struct {
	hits        uint64
	misses      uint64
	keysAdded   uint64
	keysEvicted uint64
}

// Config holds configuration for the memory cache.
type Config struct {
	// MaxEntries is the maximum number of entries.
	// When this limit is exceeded, least recently used entries are evicted.
	// Zero means unbounded.
	MaxEntries int

	// EnableMetrics enables collection of cache metrics.
	EnableMetrics bool
}

// New creates a new memory cache with the given configuration.
func New[K comparable, V any](config *Config) *Cache[K, V] {
	c := &Cache[K, V]{
		items:     make(map[K]*list.Element),
		evictList: list.New(),
	}
	if config != nil {
		c.maxEntries = config.MaxEntries
		if config.EnableMetrics {
			c.metrics = &cacheMetrics{}
		}
	}
	return c
}

// Get retrieves a value from cache and marks it most recently used.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, exists := c.items[key]
	if !exists {
		if c.metrics != nil {
			c.metrics.misses++
		}
		var zero V
		return zero, false
	}

	c.evictList.MoveToFront(elem)
	if c.metrics != nil {
		c.metrics.hits++
	}
	return elem.Value.(*entry[K, V]).value, true
}

// Set stores a value in cache.
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		elem.Value.(*entry[K, V]).value = value
		c.evictList.MoveToFront(elem)
		return
	}

	elem := c.evictList.PushFront(&entry[K, V]{key: key, value: value})
	c.items[key] = elem
	if c.metrics != nil {
		c.metrics.keysAdded++
	}

	// Evict LRU items if over capacity
	for c.maxEntries > 0 && c.evictList.Len() > c.maxEntries {
		c.removeElement(c.evictList.Back())
		if c.metrics != nil {
			c.metrics.keysEvicted++
		}
	}
}

// Delete removes a value from cache.
func (c *Cache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.items[key]; exists {
		c.removeElement(elem)
	}
}

// Clear removes all entries from cache.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*list.Element)
	c.evictList.Init()
}

// Len returns the current number of entries in cache.
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictList.Len()
}

// Metrics returns cache statistics.
func (c *Cache[K, V]) Metrics() *cache.Metrics {
	if c.metrics == nil {
		return &cache.Metrics{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return &cache.Metrics{
		Hits:        c.metrics.hits,
		Misses:      c.metrics.misses,
		KeysAdded:   c.metrics.keysAdded,
		KeysEvicted: c.metrics.keysEvicted,
	}
}

// ResetMetrics resets cache statistics.
func (c *Cache[K, V]) ResetMetrics() {
	if c.metrics == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.metrics.hits = 0
	c.metrics.misses = 0
	c.metrics.keysAdded = 0
	c.metrics.keysEvicted = 0
}

// removeElement removes an element from cache (must be called with lock held).
func (c *Cache[K, V]) removeElement(elem *list.Element) {
	c.evictList.Remove(elem)
	delete(c.items, elem.Value.(*entry[K, V]).key)
}

var _ cache.Cache[string, int] = (*Cache[string, int])(nil)
