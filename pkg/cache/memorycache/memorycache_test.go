package memorycache

import (
	"fmt"
	"sync"
	"testing"
)

func TestCache_SetAndGet(t *testing.T) {
	cache := New[string, string](&Config{EnableMetrics: true})

	cache.Set("key1", "value1")

	value, found := cache.Get("key1")
	if !found {
		t.Error("expected to find key1")
	}
	if value != "value1" {
		t.Errorf("expected value1, got %v", value)
	}

	// Get non-existent key
	_, found = cache.Get("nonexistent")
	if found {
		t.Error("expected not to find nonexistent key")
	}
}

func TestCache_LRUEviction(t *testing.T) {
	cache := New[string, int](&Config{MaxEntries: 3, EnableMetrics: true})

	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)

	// Touch "a" so "b" becomes least recently used
	if _, found := cache.Get("a"); !found {
		t.Fatal("expected to find a")
	}
	cache.Set("d", 4)

	if cache.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", cache.Len())
	}
	if _, found := cache.Get("b"); found {
		t.Error("expected b to be evicted")
	}
	for _, key := range []string{"a", "c", "d"} {
		if _, found := cache.Get(key); !found {
			t.Errorf("expected to find %s", key)
		}
	}
	if got := cache.Metrics().KeysEvicted; got != 1 {
		t.Errorf("expected 1 eviction, got %d", got)
	}
}

func TestCache_Unbounded(t *testing.T) {
	cache := New[int, int](nil)
	for i := 0; i < 100; i++ {
		cache.Set(i, i)
	}
	if cache.Len() != 100 {
		t.Errorf("expected 100 entries, got %d", cache.Len())
	}
}

func TestCache_Delete(t *testing.T) {
	cache := New[string, string](&Config{})

	cache.Set("key1", "value1")
	cache.Delete("key1")

	if _, found := cache.Get("key1"); found {
		t.Error("expected not to find deleted key")
	}

	// Deleting a missing key is a no-op
	cache.Delete("missing")
}

func TestCache_Clear(t *testing.T) {
	cache := New[string, int](&Config{})
	for i := 0; i < 5; i++ {
		cache.Set(fmt.Sprintf("key%d", i), i)
	}

	cache.Clear()

	if cache.Len() != 0 {
		t.Errorf("expected empty cache after clear, got %d", cache.Len())
	}
	if _, found := cache.Get("key0"); found {
		t.Error("expected not to find key0 after clear")
	}
}

func TestCache_Metrics(t *testing.T) {
	cache := New[string, string](&Config{EnableMetrics: true})

	cache.Set("key1", "value1")
	cache.Get("key1")
	cache.Get("key1")
	cache.Get("missing")

	m := cache.Metrics()
	if m.Hits != 2 {
		t.Errorf("expected 2 hits, got %d", m.Hits)
	}
	if m.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", m.Misses)
	}
	if m.KeysAdded != 1 {
		t.Errorf("expected 1 key added, got %d", m.KeysAdded)
	}
	if rate := m.HitRate(); rate < 0.66 || rate > 0.67 {
		t.Errorf("expected hit rate ~0.667, got %f", rate)
	}

	cache.ResetMetrics()
	if m := cache.Metrics(); m.Hits != 0 || m.Misses != 0 {
		t.Errorf("expected metrics to be reset, got %+v", m)
	}
}

func TestCache_MetricsDisabled(t *testing.T) {
	cache := New[string, string](&Config{})
	cache.Get("missing")

	if m := cache.Metrics(); m.Misses != 0 {
		t.Errorf("expected no metrics when disabled, got %+v", m)
	}
}

func TestCache_UpdateExisting(t *testing.T) {
	cache := New[string, string](&Config{MaxEntries: 2, EnableMetrics: true})

	cache.Set("key1", "value1")
	cache.Set("key1", "value2")

	value, _ := cache.Get("key1")
	if value != "value2" {
		t.Errorf("expected value2, got %v", value)
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", cache.Len())
	}
	if got := cache.Metrics().KeysAdded; got != 1 {
		t.Errorf("expected update not to count as an added key, got %d", got)
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	cache := New[string, int](&Config{MaxEntries: 50, EnableMetrics: true})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j%10)
				cache.Set(key, j)
				cache.Get(key)
			}
		}(i)
	}
	wg.Wait()

	if cache.Len() > 50 {
		t.Errorf("expected at most 50 entries, got %d", cache.Len())
	}
}
