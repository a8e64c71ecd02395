package tagquery

import (
	"strings"
	"sync"
	"time"
)

// filterCacheEntry pairs a memoized evaluation result with its
// bookkeeping for LRU + access-count tiebreak eviction.
type filterCacheEntry struct {
	result      bool
	lastAccess  time.Time
	accessCount int
}

// FilterCache memoizes Evaluate results keyed by (expression, tag set).
// Evaluate is pure, so a cached result never goes stale on its own; the
// TTL sweep only bounds memory for expressions that stop being asked
// about. Bounded LRU with access-count tiebreak, same eviction rule as
// the capability schema cache.
type FilterCache struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[string]*filterCacheEntry
}

// NewFilterCache constructs a cache bounded to maxEntries.
func NewFilterCache(maxEntries int) *FilterCache {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	return &FilterCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*filterCacheEntry),
	}
}

// Evaluate is the memoizing wrapper over the package-level Evaluate. The
// nil (matches-nothing) and Any (matches-everything) expressions are
// answered inline without touching the cache.
func (c *FilterCache) Evaluate(expr Expr, tags []string) bool {
	if expr == nil {
		return false
	}
	if _, isAny := expr.(Any); isAny {
		return true
	}

	key := cacheKey(expr, tags)

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		e.lastAccess = time.Now()
		e.accessCount++
		result := e.result
		c.mu.Unlock()
		return result
	}
	c.mu.Unlock()

	result := expr.Evaluate(NewSet(tags))

	c.mu.Lock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = &filterCacheEntry{result: result, lastAccess: time.Now(), accessCount: 1}
	c.mu.Unlock()
	return result
}

func cacheKey(expr Expr, tags []string) string {
	sorted := SortedTags(NewSet(tags))
	return expr.String() + "\x00" + strings.Join(sorted, ",")
}

func (c *FilterCache) evictLocked() {
	var victim string
	var victimEntry *filterCacheEntry
	for k, e := range c.entries {
		if victimEntry == nil ||
			e.lastAccess.Before(victimEntry.lastAccess) ||
			(e.lastAccess.Equal(victimEntry.lastAccess) && e.accessCount < victimEntry.accessCount) {
			victim, victimEntry = k, e
		}
	}
	if victimEntry != nil {
		delete(c.entries, victim)
	}
}

// Sweep removes entries untouched for longer than ttl, run periodically
// alongside the schema cache's own sweep.
func (c *FilterCache) Sweep(ttl time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := time.Now().Add(-ttl)
	removed := 0
	for k, e := range c.entries {
		if e.lastAccess.Before(cutoff) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len reports the number of cached entries, for tests and diagnostics.
func (c *FilterCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
