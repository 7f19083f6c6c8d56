package cache

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/draftcache/draftcache/pkg/cacheerr"
)

// TestNewBoundedLRUCache tests cache creation with various capacities
func TestNewBoundedLRUCache(t *testing.T) {
	tests := []struct {
		name     string
		capacity int64
		want     int64
	}{
		{name: "explicit capacity", capacity: 1024, want: 1024},
		{name: "zero capacity uses default", capacity: 0, want: DefaultCapacity},
		{name: "negative capacity uses default", capacity: -1, want: DefaultCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewBoundedLRUCache(tt.capacity)
			if c == nil {
				t.Fatal("NewBoundedLRUCache returned nil")
			}
			if c.Capacity() != tt.want {
				t.Errorf("expected capacity %d, got %d", tt.want, c.Capacity())
			}
			if c.items == nil {
				t.Error("items map not initialized")
			}
			if c.evictList == nil {
				t.Error("evict list not initialized")
			}
		})
	}
}

// TestBoundedLRUCache_SetGet tests basic round-trips
func TestBoundedLRUCache_SetGet(t *testing.T) {
	c := NewBoundedLRUCache(1024)

	value := []byte("chapter one, draft three")
	if err := c.Set("ch1", value); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, ok := c.Get("ch1")
	if !ok {
		t.Fatal("Get returned miss for existing key")
	}
	if !bytes.Equal(got, value) {
		t.Errorf("expected %q, got %q", value, got)
	}

	stats := c.Stats()
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 0 {
		t.Errorf("expected 0 misses, got %d", stats.Misses)
	}
}

// TestBoundedLRUCache_GetMiss tests miss accounting
func TestBoundedLRUCache_GetMiss(t *testing.T) {
	c := NewBoundedLRUCache(1024)

	if _, ok := c.Get("nonexistent"); ok {
		t.Error("expected miss for unknown key")
	}

	stats := c.Stats()
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
}

// TestBoundedLRUCache_EvictionOrder exercises the concrete scenario from
// the design review: capacity 100, three 40-byte values, oldest evicted.
func TestBoundedLRUCache_EvictionOrder(t *testing.T) {
	c := NewBoundedLRUCache(100)

	payload := make([]byte, 40)
	for _, key := range []string{"a", "b", "c"} {
		if err := c.Set(key, payload); err != nil {
			t.Fatalf("Set(%q) failed: %v", key, err)
		}
	}

	if c.Contains("a") {
		t.Error(`"a" should have been evicted`)
	}
	if !c.Contains("b") || !c.Contains("c") {
		t.Error(`"b" and "c" should still be present`)
	}
	if got := c.SizeBytes(); got != 80 {
		t.Errorf("expected size 80, got %d", got)
	}
}

// TestBoundedLRUCache_RecencyOnGet verifies Get refreshes recency so the
// retained set is the most-recently-touched keys.
func TestBoundedLRUCache_RecencyOnGet(t *testing.T) {
	c := NewBoundedLRUCache(100)
	payload := make([]byte, 40)

	_ = c.Set("a", payload)
	_ = c.Set("b", payload)

	// Touch "a" so "b" becomes the LRU entry.
	if _, ok := c.Get("a"); !ok {
		t.Fatal("unexpected miss for a")
	}

	_ = c.Set("c", payload)

	if c.Contains("b") {
		t.Error(`"b" should have been evicted after "a" was touched`)
	}
	if !c.Contains("a") || !c.Contains("c") {
		t.Error(`"a" and "c" should be retained`)
	}
}

// TestBoundedLRUCache_LRULaw floods the cache beyond capacity and checks
// the retained key set is exactly the most recently touched keys.
func TestBoundedLRUCache_LRULaw(t *testing.T) {
	c := NewBoundedLRUCache(50)
	payload := make([]byte, 10)

	for i := 0; i < 20; i++ {
		key := fmt.Sprintf("k%d", i)
		if err := c.Set(key, payload); err != nil {
			t.Fatalf("Set(%q) failed: %v", key, err)
		}
	}

	if got := c.SizeBytes(); got > 50 {
		t.Errorf("size %d exceeds capacity 50", got)
	}

	// The five most recent keys survive.
	for i := 15; i < 20; i++ {
		key := fmt.Sprintf("k%d", i)
		if !c.Contains(key) {
			t.Errorf("expected %q retained", key)
		}
	}
	for i := 0; i < 15; i++ {
		key := fmt.Sprintf("k%d", i)
		if c.Contains(key) {
			t.Errorf("expected %q evicted", key)
		}
	}
}

// TestBoundedLRUCache_TooLarge verifies oversized values are rejected,
// not cached, and that a failed overwrite does not retain stale data.
func TestBoundedLRUCache_TooLarge(t *testing.T) {
	c := NewBoundedLRUCache(100)

	err := c.Set("huge", make([]byte, 101))
	if err == nil {
		t.Fatal("expected TooLarge error")
	}
	if !errors.Is(err, cacheerr.ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
	if _, ok := c.Get("huge"); ok {
		t.Error("oversized value must not be cached")
	}
	if got := c.SizeBytes(); got != 0 {
		t.Errorf("expected size 0 after rejection, got %d", got)
	}

	// Overwriting an existing key with an oversized value removes the
	// old entry rather than resurrecting it.
	_ = c.Set("k", make([]byte, 10))
	if err := c.Set("k", make([]byte, 200)); !errors.Is(err, cacheerr.ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if _, ok := c.Get("k"); ok {
		t.Error("failed overwrite must leave key absent")
	}
}

// TestBoundedLRUCache_UpdateAlias verifies Update behaves identically to
// Set for all inputs.
func TestBoundedLRUCache_UpdateAlias(t *testing.T) {
	setCache := NewBoundedLRUCache(100)
	updCache := NewBoundedLRUCache(100)

	inputs := []struct {
		key  string
		size int
	}{
		{"a", 30}, {"b", 30}, {"a", 10}, {"c", 60}, {"d", 150},
	}

	for _, in := range inputs {
		errSet := setCache.Set(in.key, make([]byte, in.size))
		errUpd := updCache.Update(in.key, make([]byte, in.size))
		if (errSet == nil) != (errUpd == nil) {
			t.Fatalf("Set/Update diverged on %q/%d: %v vs %v", in.key, in.size, errSet, errUpd)
		}
	}

	if setCache.SizeBytes() != updCache.SizeBytes() {
		t.Errorf("sizes diverged: %d vs %d", setCache.SizeBytes(), updCache.SizeBytes())
	}
	for _, key := range []string{"a", "b", "c", "d"} {
		if setCache.Contains(key) != updCache.Contains(key) {
			t.Errorf("presence of %q diverged", key)
		}
	}
}

// TestBoundedLRUCache_ReplaceAccounting verifies replacing a key releases
// the old entry's bytes.
func TestBoundedLRUCache_ReplaceAccounting(t *testing.T) {
	c := NewBoundedLRUCache(100)

	_ = c.Set("k", make([]byte, 80))
	_ = c.Set("k", make([]byte, 20))

	if got := c.SizeBytes(); got != 20 {
		t.Errorf("expected size 20 after replace, got %d", got)
	}
	if got := c.Len(); got != 1 {
		t.Errorf("expected 1 entry, got %d", got)
	}
}

// TestBoundedLRUCache_Delete tests removal and size accounting
func TestBoundedLRUCache_Delete(t *testing.T) {
	c := NewBoundedLRUCache(100)

	_ = c.Set("k", make([]byte, 40))
	c.Delete("k")

	if c.Contains("k") {
		t.Error("key should be gone after Delete")
	}
	if got := c.SizeBytes(); got != 0 {
		t.Errorf("expected size 0, got %d", got)
	}

	// Deleting an absent key is a no-op.
	c.Delete("missing")
}

// TestBoundedLRUCache_Clear tests full reset
func TestBoundedLRUCache_Clear(t *testing.T) {
	c := NewBoundedLRUCache(1000)

	for i := 0; i < 10; i++ {
		_ = c.Set(fmt.Sprintf("k%d", i), make([]byte, 10))
	}
	c.Clear()

	if got := c.Len(); got != 0 {
		t.Errorf("expected 0 entries after Clear, got %d", got)
	}
	if got := c.SizeBytes(); got != 0 {
		t.Errorf("expected size 0 after Clear, got %d", got)
	}
}

// TestBoundedLRUCache_EvictOldestFraction tests partial eviction used by
// soft cleanup.
func TestBoundedLRUCache_EvictOldestFraction(t *testing.T) {
	c := NewBoundedLRUCache(1000)
	for i := 0; i < 10; i++ {
		_ = c.Set(fmt.Sprintf("k%d", i), make([]byte, 10))
	}

	freed := c.EvictOldest(0.25)
	if freed != 20 {
		t.Errorf("expected 20 bytes freed, got %d", freed)
	}
	if got := c.Len(); got != 8 {
		t.Errorf("expected 8 entries, got %d", got)
	}
	// Oldest two gone, newest survive.
	if c.Contains("k0") || c.Contains("k1") {
		t.Error("oldest entries should be evicted first")
	}
	if !c.Contains("k9") {
		t.Error("newest entry should survive")
	}
}

// TestBoundedLRUCache_EvictToSize tests target-size eviction
func TestBoundedLRUCache_EvictToSize(t *testing.T) {
	c := NewBoundedLRUCache(1000)
	for i := 0; i < 10; i++ {
		_ = c.Set(fmt.Sprintf("k%d", i), make([]byte, 10))
	}

	c.EvictToSize(30)
	if got := c.SizeBytes(); got > 30 {
		t.Errorf("expected size <= 30, got %d", got)
	}
	if !c.Contains("k9") {
		t.Error("most recent entry should survive")
	}
}

// TestBoundedLRUCache_SizeHint tests caller-supplied size accounting
func TestBoundedLRUCache_SizeHint(t *testing.T) {
	c := NewBoundedLRUCache(100)

	// A small value accounted at a larger logical size.
	if err := c.SetWithSize("k", []byte("ref"), 90); err != nil {
		t.Fatalf("SetWithSize failed: %v", err)
	}
	if got := c.SizeBytes(); got != 90 {
		t.Errorf("expected size 90, got %d", got)
	}

	if err := c.SetWithSize("big", []byte("ref"), 200); !errors.Is(err, cacheerr.ErrTooLarge) {
		t.Errorf("size hint above capacity should be rejected, got %v", err)
	}
}

// TestBoundedLRUCache_Concurrent hammers the cache from multiple
// goroutines to exercise the per-instance lock.
func TestBoundedLRUCache_Concurrent(t *testing.T) {
	c := NewBoundedLRUCache(10 * 1024)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("g%d-k%d", g, i%20)
				_ = c.Set(key, make([]byte, 64))
				c.Get(key)
				if i%10 == 0 {
					c.Delete(key)
				}
			}
		}(g)
	}
	wg.Wait()

	if got := c.SizeBytes(); got > 10*1024 {
		t.Errorf("size %d exceeds capacity after concurrent load", got)
	}
}

// TestBoundedLRUCache_CallerCannotMutateEntries verifies the cache never
// shares byte slices with callers in either direction.
func TestBoundedLRUCache_CallerCannotMutateEntries(t *testing.T) {
	c := NewBoundedLRUCache(1024)

	input := []byte("hello")
	if err := c.Set("greeting", input); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Mutating the input slice after Set must not reach the entry.
	input[0] = 'X'
	got, ok := c.Get("greeting")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(got) != "hello" {
		t.Errorf("entry altered through the input slice: got %q, want %q", got, "hello")
	}

	// Mutating a returned slice must not reach the entry either.
	got[0] = 'X'
	again, ok := c.Get("greeting")
	if !ok {
		t.Fatal("expected hit")
	}
	if string(again) != "hello" {
		t.Errorf("entry altered through a returned slice: got %q, want %q", again, "hello")
	}
}

// TestBoundedLRUCache_EvictionCountSemantics verifies only capacity
// pressure counts as an eviction, not Delete or replace.
func TestBoundedLRUCache_EvictionCountSemantics(t *testing.T) {
	c := NewBoundedLRUCache(100)

	if err := c.Set("a", make([]byte, 40)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set("a", make([]byte, 50)); err != nil { // replace
		t.Fatalf("Set failed: %v", err)
	}
	if err := c.Set("b", make([]byte, 40)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	c.Delete("b")

	if got := c.Stats().Evictions; got != 0 {
		t.Errorf("replace and Delete must not count as evictions, got %d", got)
	}

	// Filling past capacity evicts "a".
	if err := c.Set("c", make([]byte, 80)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if got := c.Stats().Evictions; got != 1 {
		t.Errorf("expected 1 eviction from capacity pressure, got %d", got)
	}

	if freed := c.EvictOldest(1.0); freed != 80 {
		t.Fatalf("expected EvictOldest to free 80, freed %d", freed)
	}
	if got := c.Stats().Evictions; got != 2 {
		t.Errorf("expected 2 evictions after EvictOldest, got %d", got)
	}
}
