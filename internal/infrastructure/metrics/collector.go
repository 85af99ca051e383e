package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/asakaida/kankei/pkg/cache"
)

// CacheSource exposes statistics of a cache, e.g. the compiled condition programs
type CacheSource interface {
	CacheMetrics() *cache.Metrics
	CacheLen() int
}

// Collector collects and aggregates metrics of the relationship engine.
// It is safe for concurrent use.
type Collector struct {
	// Relationship metrics, keyed by relationship kind
	resolutions sync.Map // map[string]*uint64 - kind -> count
	durations   sync.Map // map[string]*durationValue - kind -> total duration in seconds
	cacheHits   sync.Map // map[string]*uint64 - kind -> instance cache hits
	cacheMisses sync.Map // map[string]*uint64 - kind -> instance cache misses

	// Cascade metrics, keyed by phase ("pre", "post")
	cascadeSaves sync.Map // map[string]*uint64

	// Errors, keyed by operation ("get", "set", "append", "save")
	errors sync.Map // map[string]*uint64

	// Condition program cache (optional)
	conditions CacheSource

	// Exporter mirroring counters into Prometheus (optional)
	exporter *PrometheusExporter
}

// durationValue holds duration with mutex for thread-safe updates.
type durationValue struct {
	mu           sync.Mutex
	totalSeconds float64
}

// CacheMetrics holds cache performance metrics.
type CacheMetrics struct {
	Hits        uint64
	Misses      uint64
	HitRate     float64
	Evictions   uint64
	KeysCurrent int64
}

// EngineMetrics holds a snapshot of relationship engine metrics.
type EngineMetrics struct {
	Resolutions          map[string]uint64
	TotalDurationSeconds map[string]float64
	CacheHits            map[string]uint64
	CacheMisses          map[string]uint64
	CascadeSaves         map[string]uint64
	Errors               map[string]uint64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{}
}

// SetConditionCache sets the source of condition program cache metrics.
func (c *Collector) SetConditionCache(source CacheSource) {
	c.conditions = source
}

// SetExporter forwards every recorded counter to the exporter as well.
func (c *Collector) SetExporter(exporter *PrometheusExporter) {
	c.exporter = exporter
}

// RecordResolution records a relationship resolution that reached the repositories.
func (c *Collector) RecordResolution(kind string, durationSeconds float64) {
	atomic.AddUint64(c.getOrCreateCounter(&c.resolutions, kind), 1)

	val, _ := c.durations.LoadOrStore(kind, &durationValue{})
	dv := val.(*durationValue)
	dv.mu.Lock()
	dv.totalSeconds += durationSeconds
	dv.mu.Unlock()

	if c.exporter != nil {
		c.exporter.RecordResolution(kind, durationSeconds)
	}
}

// RecordCacheHit records a relationship served from the instance cache.
func (c *Collector) RecordCacheHit(kind string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.cacheHits, kind), 1)
	if c.exporter != nil {
		c.exporter.RecordCacheHit(kind)
	}
}

// RecordCacheMiss records a relationship that had to be resolved.
func (c *Collector) RecordCacheMiss(kind string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.cacheMisses, kind), 1)
	if c.exporter != nil {
		c.exporter.RecordCacheMiss(kind)
	}
}

// RecordCascadeSave records a related record saved during a cascade phase.
func (c *Collector) RecordCascadeSave(phase string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.cascadeSaves, phase), 1)
	if c.exporter != nil {
		c.exporter.RecordCascadeSave(phase)
	}
}

// RecordError records a failed engine operation.
func (c *Collector) RecordError(operation string) {
	atomic.AddUint64(c.getOrCreateCounter(&c.errors, operation), 1)
	if c.exporter != nil {
		c.exporter.RecordError(operation)
	}
}

// GetCacheMetrics returns current condition program cache metrics.
func (c *Collector) GetCacheMetrics() *CacheMetrics {
	if c.conditions == nil {
		return &CacheMetrics{}
	}

	metrics := c.conditions.CacheMetrics()
	if metrics == nil {
		return &CacheMetrics{}
	}

	return &CacheMetrics{
		Hits:        metrics.Hits,
		Misses:      metrics.Misses,
		HitRate:     metrics.HitRate(),
		Evictions:   metrics.KeysEvicted,
		KeysCurrent: int64(c.conditions.CacheLen()),
	}
}

// GetEngineMetrics returns current engine metrics.
func (c *Collector) GetEngineMetrics() *EngineMetrics {
	result := &EngineMetrics{
		Resolutions:          loadCounters(&c.resolutions),
		TotalDurationSeconds: make(map[string]float64),
		CacheHits:            loadCounters(&c.cacheHits),
		CacheMisses:          loadCounters(&c.cacheMisses),
		CascadeSaves:         loadCounters(&c.cascadeSaves),
		Errors:               loadCounters(&c.errors),
	}

	// Collect duration totals
	c.durations.Range(func(key, value interface{}) bool {
		dv := value.(*durationValue)
		dv.mu.Lock()
		result.TotalDurationSeconds[key.(string)] = dv.totalSeconds
		dv.mu.Unlock()
		return true
	})

	return result
}

func loadCounters(m *sync.Map) map[string]uint64 {
	out := make(map[string]uint64)
	m.Range(func(key, value interface{}) bool {
		out[key.(string)] = atomic.LoadUint64(value.(*uint64))
		return true
	})
	return out
}

// getOrCreateCounter gets or creates a counter for the given key.
func (c *Collector) getOrCreateCounter(m *sync.Map, key string) *uint64 {
	val, _ := m.LoadOrStore(key, new(uint64))
	return val.(*uint64)
}
