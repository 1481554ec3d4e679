package cache_test

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"
	"github.com/boddenberg/impots-bj-estimator/internal/infra/cache"
)

func TestCache_SetAndGet(t *testing.T) {
	c := cache.New[domain.Constants](5 * time.Minute)
	defer c.Close()

	c.Set("TPS_2025", domain.Constants{"TAUX_TPS": json.RawMessage(`0.05`)})
	val, ok := c.Get("TPS_2025")
	if !ok {
		t.Fatal("expected key to exist")
	}
	if string(val["TAUX_TPS"]) != "0.05" {
		t.Errorf("expected 0.05, got %s", val["TAUX_TPS"])
	}
}

func TestCache_GetMiss(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	if _, ok := c.Get("nonexistent"); ok {
		t.Fatal("expected cache miss for nonexistent key")
	}
}

func TestCache_Expiration(t *testing.T) {
	c := cache.New[string](50 * time.Millisecond)
	defer c.Close()

	c.Set("key1", "value1")
	time.Sleep(100 * time.Millisecond)

	if _, ok := c.Get("key1"); ok {
		t.Fatal("expected cache entry to be expired")
	}
}

func TestCache_LastWriterWins(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("IS_2025", "a")
	c.Set("IS_2025", "b")
	if v, _ := c.Get("IS_2025"); v != "b" {
		t.Errorf("expected b, got %q", v)
	}
}

func TestCache_DeletePrefix(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("IS_2024", "x")
	c.Set("IS_2025", "x")
	c.Set("ITS_2025", "x")

	if n := c.DeletePrefix("IS_"); n != 2 {
		t.Errorf("expected 2 deletions, got %d", n)
	}
	if _, ok := c.Get("ITS_2025"); !ok {
		t.Error("ITS_2025 should survive an IS_ prefix delete")
	}
}

func TestCache_Clear(t *testing.T) {
	c := cache.New[string](5 * time.Minute)
	defer c.Close()

	c.Set("a", "1")
	c.Set("b", "2")
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := cache.New[int](5 * time.Minute)
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Set("k", i)
			c.Get("k")
			if i%10 == 0 {
				c.Clear()
			}
		}(i)
	}
	wg.Wait()
}

func TestCache_CloseIsIdempotent(t *testing.T) {
	c := cache.New[string](time.Minute)
	c.Close()
	c.Close()
}
