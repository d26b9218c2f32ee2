package optimizer

import (
	"container/list"
	"fmt"
	"strings"
	"sync"
	"time"
)

// queryCache holds read results keyed by normalized SQL plus bound
// parameters. Entries expire after the TTL; when the cache is full the
// oldest insertion is evicted first. Writes never invalidate entries,
// so staleness is bounded only by the TTL.
type queryCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	order      *list.List // of string keys, oldest at front
	ttl        time.Duration
	maxEntries int

	hits   uint64
	misses uint64
}

type cacheEntry struct {
	result     *Rows
	insertedAt time.Time
	elem       *list.Element
}

// newQueryCache builds a cache; maxEntries <= 0 disables bounding.
func newQueryCache(ttl time.Duration, maxEntries int) *queryCache {
	return &queryCache{
		entries:    make(map[string]*cacheEntry),
		order:      list.New(),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// cacheKey derives the lookup key from normalized SQL and parameters.
// Each parameter is length-prefixed so adjacent values cannot run
// together ("a","b" must never collide with "ab").
func cacheKey(query string, params []any) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if len(params) == 0 {
		return normalized
	}

	var b strings.Builder
	b.WriteString(normalized)
	for _, p := range params {
		v := fmt.Sprintf("%v", p)
		fmt.Fprintf(&b, "|%d:%s", len(v), v)
	}
	return b.String()
}

// get returns the cached result if present and within the TTL.
func (c *queryCache) get(key string) (*Rows, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if time.Since(entry.insertedAt) > c.ttl {
		c.order.Remove(entry.elem)
		delete(c.entries, key)
		c.misses++
		return nil, false
	}

	c.hits++
	return entry.result, true
}

// put stores a result, evicting the oldest insertion when full.
// Re-inserting an existing key refreshes its TTL and insertion order.
func (c *queryCache) put(key string, result *Rows) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok {
		c.order.Remove(existing.elem)
		delete(c.entries, key)
	}

	if c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		oldest := c.order.Front()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(string))
		}
	}

	entry := &cacheEntry{
		result:     result,
		insertedAt: time.Now(),
	}
	entry.elem = c.order.PushBack(key)
	c.entries[key] = entry
}

// stats returns hit/miss counters and the current size.
func (c *queryCache) stats() (hits, misses uint64, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, len(c.entries)
}

// clear empties the cache.
func (c *queryCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.order.Init()
}
