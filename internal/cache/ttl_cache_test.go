package cache

import (
	"sync"
	"testing"
	"time"
)

func TestTTLCacheSetGet(t *testing.T) {
	cache := NewTTLCache[string, int](2, time.Second)
	cache.Set("a", 1)

	value, ok := cache.Get("a")
	if !ok {
		t.Fatalf("expected value")
	}
	if value != 1 {
		t.Fatalf("expected 1, got %d", value)
	}
}

func TestTTLCacheEvictsOldest(t *testing.T) {
	cache := NewTTLCache[string, int](2, time.Second)
	cache.Set("a", 1)
	cache.Set("b", 2)
	cache.Set("c", 3)

	if _, ok := cache.Get("a"); ok {
		t.Fatalf("expected key 'a' to be evicted")
	}
	if value, ok := cache.Get("b"); !ok || value != 2 {
		t.Fatalf("expected key 'b' to remain")
	}
	if value, ok := cache.Get("c"); !ok || value != 3 {
		t.Fatalf("expected key 'c' to remain")
	}
	if stats := cache.Stats(); stats.Evictions != 1 || stats.Hits != 2 || stats.Misses != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestTTLCacheExpires(t *testing.T) {
	cache := NewTTLCache[string, int](2, time.Minute)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }
	cache.Set("a", 1)

	now = now.Add(2 * time.Minute)
	if _, ok := cache.Get("a"); ok {
		t.Fatalf("expected key 'a' to expire")
	}
	if cache.Len() != 0 {
		t.Fatalf("expected expired entry to be removed")
	}
}

func TestTTLCacheModify(t *testing.T) {
	cache := NewTTLCache[string, int](4, time.Minute)

	value, ok := cache.Modify("k", func(current int, exists bool) int {
		if exists {
			t.Fatalf("unexpected existing entry")
		}
		return current + 1
	})
	if !ok || value != 1 {
		t.Fatalf("unexpected first modify: %d %v", value, ok)
	}

	value, _ = cache.Modify("k", func(current int, exists bool) int { return current + 1 })
	if value != 2 {
		t.Fatalf("expected 2, got %d", value)
	}

	if _, ok := cache.Modify("k", nil); ok {
		t.Fatalf("nil fn must not modify")
	}
}

func TestTTLCacheModifyConcurrent(t *testing.T) {
	cache := NewTTLCache[string, int](4, time.Minute)
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cache.Modify("n", func(current int, _ bool) int { return current + 1 })
		}()
	}
	wg.Wait()

	if value, _ := cache.Get("n"); value != 50 {
		t.Fatalf("expected 50, got %d", value)
	}
}
