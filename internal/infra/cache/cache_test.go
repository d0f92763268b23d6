package cache_test

import (
	"testing"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	val, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if val != "value1" {
		t.Errorf("expected 'value1', got '%s'", val)
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	_, ok := c.Get("nonexistent")
	if ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_Delete(t *testing.T) {
	c := cache.New[string](5 * time.Minute)

	c.Set("key1", "value1")
	c.Delete("key1")

	_, ok := c.Get("key1")
	if ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestCache_SetRefreshesTTL(t *testing.T) {
	c := cache.New[string](100 * time.Millisecond)

	c.Set("key1", "value1")
	time.Sleep(60 * time.Millisecond)
	c.Set("key1", "value1")
	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get("key1")
	if !ok {
		t.Fatal("expected re-set entry to still be live")
	}
}

func TestCache_RangeSkipsExpired(t *testing.T) {
	c := cache.New[string](80 * time.Millisecond)

	c.Set("live", "a")
	c.Set("dead", "b")
	time.Sleep(100 * time.Millisecond)
	c.Set("live", "a")

	seen := make(map[string]string)
	c.Range(func(key, value string) {
		seen[key] = value
	})

	if len(seen) != 1 {
		t.Fatalf("expected 1 live entry, got %d", len(seen))
	}
	if seen["live"] != "a" {
		t.Errorf("expected live entry to survive, got %v", seen)
	}
}

func TestCache_Len(t *testing.T) {
	c := cache.New[int](5 * time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Delete("a")

	if got := c.Len(); got != 1 {
		t.Errorf("expected Len 1, got %d", got)
	}
}
