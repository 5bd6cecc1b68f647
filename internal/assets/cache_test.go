// Package assets provides unit tests for the drawing URL cache.
package assets

import (
	"fmt"
	"testing"
	"time"
)

// TestCacheHitAndMiss checks basic Get/Put behaviour.
func TestCacheHitAndMiss(t *testing.T) {
	cache := NewURLCache(10, time.Minute)

	if _, ok := cache.Get("u1/s1"); ok {
		t.Error("expected miss on empty cache")
	}

	cache.Put("u1/s1", "https://cdn.example/u1/s1.jpg")
	url, ok := cache.Get("u1/s1")
	if !ok || url != "https://cdn.example/u1/s1.jpg" {
		t.Errorf("expected hit, got %q ok=%v", url, ok)
	}
}

// TestCacheExpiredEntryIsMiss checks that an entry older than maxAge is
// dropped on lookup.
func TestCacheExpiredEntryIsMiss(t *testing.T) {
	cache := NewURLCache(10, 30*time.Minute)

	current := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return current }

	cache.Put("u1/s1", "https://cdn.example/u1/s1.jpg")

	current = current.Add(29 * time.Minute)
	if _, ok := cache.Get("u1/s1"); !ok {
		t.Error("expected hit before expiry")
	}

	current = current.Add(2 * time.Minute)
	if _, ok := cache.Get("u1/s1"); ok {
		t.Error("expected expired entry to miss")
	}
	if cache.Len() != 0 {
		t.Errorf("expected expired entry removed, len=%d", cache.Len())
	}
}

// TestCacheEvictsOldestAtCapacity checks that adding beyond capacity
// drops the oldest entries first.
func TestCacheEvictsOldestAtCapacity(t *testing.T) {
	cache := NewURLCache(3, time.Hour)

	current := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return current }

	for i := 0; i < 4; i++ {
		cache.Put(fmt.Sprintf("u1/s%d", i), fmt.Sprintf("https://cdn.example/u1/s%d.jpg", i))
		current = current.Add(time.Second)
	}

	if cache.Len() != 3 {
		t.Fatalf("expected capacity held at 3, len=%d", cache.Len())
	}
	if _, ok := cache.Get("u1/s0"); ok {
		t.Error("expected oldest entry evicted")
	}
	for i := 1; i < 4; i++ {
		if _, ok := cache.Get(fmt.Sprintf("u1/s%d", i)); !ok {
			t.Errorf("expected entry s%d kept", i)
		}
	}
}

// TestCacheEvictsExpiredBeforeOldest checks the eviction order: expired
// entries go first even when a fresher entry is older by insertion.
func TestCacheEvictsExpiredBeforeOldest(t *testing.T) {
	cache := NewURLCache(2, 10*time.Minute)

	current := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return current }

	cache.Put("u1/stale", "https://cdn.example/u1/stale.jpg")
	current = current.Add(11 * time.Minute)
	cache.Put("u1/fresh", "https://cdn.example/u1/fresh.jpg")
	cache.Put("u1/newer", "https://cdn.example/u1/newer.jpg")

	if _, ok := cache.Get("u1/stale"); ok {
		t.Error("expected stale entry evicted")
	}
	if _, ok := cache.Get("u1/fresh"); !ok {
		t.Error("expected fresh entry kept over the expired one")
	}
	if _, ok := cache.Get("u1/newer"); !ok {
		t.Error("expected newest entry kept")
	}
}

// TestCacheInvalidate checks explicit removal.
func TestCacheInvalidate(t *testing.T) {
	cache := NewURLCache(10, time.Minute)
	cache.Put("u1/s1", "https://cdn.example/u1/s1.jpg")
	cache.Invalidate("u1/s1")
	if _, ok := cache.Get("u1/s1"); ok {
		t.Error("expected invalidated entry to miss")
	}
}
