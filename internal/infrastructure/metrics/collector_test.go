package metrics

import (
	"sync"
	"testing"

	"github.com/asakaida/kankei/pkg/cache"
)

type fakeCacheSource struct {
	metrics *cache.Metrics
	size    int
}

func (f *fakeCacheSource) CacheMetrics() *cache.Metrics { return f.metrics }
func (f *fakeCacheSource) CacheLen() int                { return f.size }

func TestCollector_RecordResolution(t *testing.T) {
	collector := NewCollector()

	collector.RecordResolution("OneToMany", 0.25)
	collector.RecordResolution("OneToMany", 0.5)
	collector.RecordResolution("OneToOne", 0.1)

	metrics := collector.GetEngineMetrics()
	if got := metrics.Resolutions["OneToMany"]; got != 2 {
		t.Errorf("expected 2 OneToMany resolutions, got %d", got)
	}
	if got := metrics.Resolutions["OneToOne"]; got != 1 {
		t.Errorf("expected 1 OneToOne resolution, got %d", got)
	}
	if got := metrics.TotalDurationSeconds["OneToMany"]; got != 0.75 {
		t.Errorf("expected total duration 0.75, got %f", got)
	}
}

func TestCollector_CountersByLabel(t *testing.T) {
	collector := NewCollector()

	collector.RecordCacheHit("OneToOne")
	collector.RecordCacheHit("OneToOne")
	collector.RecordCacheMiss("OneToOne")
	collector.RecordCascadeSave("pre")
	collector.RecordCascadeSave("post")
	collector.RecordCascadeSave("post")
	collector.RecordError("save")

	metrics := collector.GetEngineMetrics()
	tests := []struct {
		name string
		got  uint64
		want uint64
	}{
		{"cache hits", metrics.CacheHits["OneToOne"], 2},
		{"cache misses", metrics.CacheMisses["OneToOne"], 1},
		{"pre cascade", metrics.CascadeSaves["pre"], 1},
		{"post cascade", metrics.CascadeSaves["post"], 2},
		{"save errors", metrics.Errors["save"], 1},
		{"get errors", metrics.Errors["get"], 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("expected %d, got %d", tt.want, tt.got)
			}
		})
	}
}

func TestCollector_GetCacheMetrics(t *testing.T) {
	collector := NewCollector()

	// Without a source every value is zero
	if m := collector.GetCacheMetrics(); m.Hits != 0 || m.KeysCurrent != 0 {
		t.Errorf("expected empty metrics, got %+v", m)
	}

	collector.SetConditionCache(&fakeCacheSource{
		metrics: &cache.Metrics{Hits: 3, Misses: 1, KeysAdded: 4, KeysEvicted: 2},
		size:    2,
	})

	m := collector.GetCacheMetrics()
	if m.Hits != 3 || m.Misses != 1 {
		t.Errorf("expected 3 hits and 1 miss, got %d and %d", m.Hits, m.Misses)
	}
	if m.HitRate != 0.75 {
		t.Errorf("expected hit rate 0.75, got %f", m.HitRate)
	}
	if m.Evictions != 2 {
		t.Errorf("expected 2 evictions, got %d", m.Evictions)
	}
	if m.KeysCurrent != 2 {
		t.Errorf("expected 2 current keys, got %d", m.KeysCurrent)
	}
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordResolution("ManyToMany", 0.01)
			collector.RecordCacheMiss("ManyToMany")
		}()
	}
	wg.Wait()

	metrics := collector.GetEngineMetrics()
	if got := metrics.Resolutions["ManyToMany"]; got != 50 {
		t.Errorf("expected 50 resolutions, got %d", got)
	}
	if got := metrics.CacheMisses["ManyToMany"]; got != 50 {
		t.Errorf("expected 50 misses, got %d", got)
	}
}
