package assets

import (
	"sort"
	"sync"
	"time"
)

// URLCache is a bounded, time-limited cache of resolved drawing URLs,
// keyed by user+session. Expired entries count as misses; eviction
// removes expired entries first, then the oldest while over capacity.
type URLCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	maxEntries int
	maxAge     time.Duration
	now        func() time.Time
}

type cacheEntry struct {
	url     string
	addedAt time.Time
}

// NewURLCache creates a cache. Non-positive bounds fall back to the
// defaults of 100 entries and 30 minutes.
func NewURLCache(maxEntries int, maxAge time.Duration) *URLCache {
	if maxEntries <= 0 {
		maxEntries = 100
	}
	if maxAge <= 0 {
		maxAge = 30 * time.Minute
	}
	return &URLCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Get returns the cached URL for key, or "" on a miss. An entry older
// than maxAge is dropped and reported as a miss.
func (c *URLCache) Get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().Sub(entry.addedAt) > c.maxAge {
		delete(c.entries, key)
		return "", false
	}
	return entry.url, true
}

// Put stores a URL under key, evicting as needed.
func (c *URLCache) Put(key, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry{url: url, addedAt: c.now()}
	c.evictLocked()
}

// Invalidate removes key from the cache.
func (c *URLCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the current entry count.
func (c *URLCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// evictLocked drops expired entries, then the oldest until the cache
// fits maxEntries. Caller holds the lock.
func (c *URLCache) evictLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.Sub(entry.addedAt) > c.maxAge {
			delete(c.entries, key)
		}
	}

	if len(c.entries) <= c.maxEntries {
		return
	}

	type aged struct {
		key     string
		addedAt time.Time
	}
	ordered := make([]aged, 0, len(c.entries))
	for key, entry := range c.entries {
		ordered = append(ordered, aged{key, entry.addedAt})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].addedAt.Before(ordered[j].addedAt)
	})

	for _, e := range ordered {
		if len(c.entries) <= c.maxEntries {
			break
		}
		delete(c.entries, e.key)
	}
}
