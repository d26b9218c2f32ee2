package optimizer

import (
	"fmt"
	"testing"
	"time"
)

func TestQueryCache_PutGet(t *testing.T) {
	c := newQueryCache(time.Minute, 10)
	want := &Rows{Columns: []string{"id"}, Values: [][]any{{int64(1)}}}

	c.put("key", want)

	got, ok := c.get("key")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got != want {
		t.Error("expected the same result pointer back")
	}

	hits, misses, size := c.stats()
	if hits != 1 || misses != 0 || size != 1 {
		t.Errorf("stats = (%d, %d, %d), want (1, 0, 1)", hits, misses, size)
	}
}

func TestQueryCache_Miss(t *testing.T) {
	c := newQueryCache(time.Minute, 10)

	if _, ok := c.get("absent"); ok {
		t.Error("expected miss for absent key")
	}
	_, misses, _ := c.stats()
	if misses != 1 {
		t.Errorf("expected 1 miss, got %d", misses)
	}
}

func TestQueryCache_TTLExpiry(t *testing.T) {
	c := newQueryCache(50*time.Millisecond, 10)
	c.put("key", &Rows{})

	if _, ok := c.get("key"); !ok {
		t.Fatal("expected hit before expiry")
	}

	time.Sleep(80 * time.Millisecond)

	if _, ok := c.get("key"); ok {
		t.Error("expected miss after TTL expiry")
	}
	if _, _, size := c.stats(); size != 0 {
		t.Errorf("expected expired entry removed, size %d", size)
	}
}

func TestQueryCache_EvictsOldestInsertion(t *testing.T) {
	c := newQueryCache(time.Minute, 3)

	for i := 0; i < 3; i++ {
		c.put(fmt.Sprintf("key%d", i), &Rows{})
	}
	// Full; inserting a fourth evicts key0.
	c.put("key3", &Rows{})

	if _, ok := c.get("key0"); ok {
		t.Error("expected oldest insertion to be evicted")
	}
	for _, key := range []string{"key1", "key2", "key3"} {
		if _, ok := c.get(key); !ok {
			t.Errorf("expected %s to survive eviction", key)
		}
	}
}

func TestQueryCache_ReinsertRefreshesOrder(t *testing.T) {
	c := newQueryCache(time.Minute, 2)

	c.put("a", &Rows{})
	c.put("b", &Rows{})
	// Refresh "a" so "b" becomes the oldest insertion.
	c.put("a", &Rows{})
	c.put("c", &Rows{})

	if _, ok := c.get("b"); ok {
		t.Error("expected refreshed order to evict b, not a")
	}
	if _, ok := c.get("a"); !ok {
		t.Error("expected a to survive after refresh")
	}
}

func TestQueryCache_Clear(t *testing.T) {
	c := newQueryCache(time.Minute, 10)
	c.put("key", &Rows{})

	c.clear()

	if _, _, size := c.stats(); size != 0 {
		t.Errorf("expected empty cache after clear, size %d", size)
	}
}

func TestQueryCache_ParamBoundariesIsolateEntries(t *testing.T) {
	c := newQueryCache(time.Minute, 10)
	query := "SELECT v FROM t WHERE a = ? AND b = ?"
	cached := &Rows{Columns: []string{"v"}, Values: [][]any{{"value-for-a-b"}}}

	c.put(cacheKey(query, []any{"a", "b"}), cached)

	if got, ok := c.get(cacheKey(query, []any{"ab", ""})); ok {
		t.Fatalf("expected miss for different params, got %v", got.Values)
	}
	if _, ok := c.get(cacheKey(query, []any{"a", "b"})); !ok {
		t.Error("expected hit for the original params")
	}
}

func TestCacheKey(t *testing.T) {
	tests := []struct {
		name string
		a    string
		ap   []any
		b    string
		bp   []any
		same bool
	}{
		{name: "whitespace normalised", a: "SELECT  *\nFROM t", b: "SELECT * FROM t", same: true},
		{name: "params distinguish", a: "SELECT * FROM t WHERE id = ?", ap: []any{1}, b: "SELECT * FROM t WHERE id = ?", bp: []any{2}, same: false},
		{name: "same params match", a: "SELECT ?", ap: []any{"x"}, b: "SELECT ?", bp: []any{"x"}, same: true},

		// String params must keep their boundaries: splitting or
		// shifting characters between adjacent values is a different key.
		{name: "adjacent strings keep boundaries", a: "SELECT ?, ?", ap: []any{"a", "b"}, b: "SELECT ?, ?", bp: []any{"ab"}, same: false},
		{name: "shifted boundary", a: "SELECT ?, ?", ap: []any{"ab", ""}, b: "SELECT ?, ?", bp: []any{"a", "b"}, same: false},
		{name: "param count matters", a: "SELECT ?", ap: []any{"x"}, b: "SELECT ?", bp: []any{"x", ""}, same: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := cacheKey(tt.a, tt.ap)
			kb := cacheKey(tt.b, tt.bp)
			if (ka == kb) != tt.same {
				t.Errorf("cacheKey equality = %v, want %v (%q vs %q)", ka == kb, tt.same, ka, kb)
			}
		})
	}
}
