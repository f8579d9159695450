package cache

import (
	"fmt"
	"sync"
	"testing"
)

func TestLRU_GetPut(t *testing.T) {
	c := New[string, int](2)

	if _, ok := c.Get("a"); ok {
		t.Error("Get() on empty cache should miss")
	}

	c.Put("a", 1)
	c.Put("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRU_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // b is now the oldest
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("%s should still be cached", k)
		}
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestLRU_PutOverwrites(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Put("a", 10) // refreshes a
	c.Put("c", 3)

	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("Get(a) = %d, want 10", v)
	}
	if _, ok := c.Get("b"); ok {
		t.Error("b should have been evicted")
	}
}

func TestLRU_InvalidateAll(t *testing.T) {
	c := New[int, string](4)
	for i := 0; i < 4; i++ {
		c.Put(i, fmt.Sprint(i))
	}
	c.InvalidateAll()

	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
	if _, ok := c.Get(0); ok {
		t.Error("Get() after InvalidateAll should miss")
	}

	c.Put(9, "9")
	if v, ok := c.Get(9); !ok || v != "9" {
		t.Errorf("cache unusable after InvalidateAll: %q, %v", v, ok)
	}
}

func TestLRU_ZeroCapacityDisables(t *testing.T) {
	c := New[string, int](0)
	c.Put("a", 1)
	if _, ok := c.Get("a"); ok {
		t.Error("zero-capacity cache should never hit")
	}
	if c.Len() != 0 {
		t.Errorf("Len() = %d, want 0", c.Len())
	}
}

func TestLRU_StructKey(t *testing.T) {
	type key struct {
		kind string
		text string
		th   float64
	}
	c := New[key, []string](8)
	c.Put(key{"image", "cat", 36}, []string{"x"})

	if _, ok := c.Get(key{"image", "cat", 36}); !ok {
		t.Error("identical struct key should hit")
	}
	if _, ok := c.Get(key{"image", "cat", 40}); ok {
		t.Error("different threshold should miss")
	}
}

func TestLRU_Concurrent(t *testing.T) {
	c := New[int, int](16)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Put(i%32, g)
				c.Get(i % 32)
				if i%50 == 0 {
					c.InvalidateAll()
				}
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 16 {
		t.Errorf("Len() = %d exceeds capacity", c.Len())
	}
}
