package cache

// Cache is a bounded key/value cache.
// Implementations must be safe for concurrent use.
type Cache[K comparable, V any] interface {
	// Get retrieves a value from cache.
	// Returns the value and true if found, or the zero value and false if not found.
	Get(key K) (V, bool)

	// Set stores a value, evicting older entries when the cache is full.
	Set(key K, value V)

	// Delete removes a value from cache.
	Delete(key K)

	// Clear removes all entries from cache.
	Clear()

	// Len returns the current number of entries.
	Len() int

	// Metrics returns cache statistics.
	Metrics() *Metrics
}

// Metrics holds cache performance statistics.
type Metrics struct {
	// Hits is the number of cache hits
	Hits uint64

	// Misses is the number of cache misses
	Misses uint64

	// KeysAdded is the number of keys added to cache
	KeysAdded uint64

	// KeysEvicted is the number of keys evicted from cache
	KeysEvicted uint64
}

// HitRate returns the cache hit rate (0.0 to 1.0).
func (m *Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total)
}
