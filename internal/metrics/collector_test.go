package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestCollector_CacheCounters verifies hit/miss/eviction accounting
func TestCollector_CacheCounters(t *testing.T) {
	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.RecordCacheHit("project:a", 128)
	c.RecordCacheHit("project:a", 64)
	c.RecordCacheMiss("project:a")
	c.RecordEviction("project:a", 3)
	c.RecordCacheSize("project:a", 4096)

	if got := testutil.ToFloat64(c.cacheHits.WithLabelValues("project:a")); got != 2 {
		t.Errorf("expected 2 hits, got %f", got)
	}
	if got := testutil.ToFloat64(c.cacheMisses.WithLabelValues("project:a")); got != 1 {
		t.Errorf("expected 1 miss, got %f", got)
	}
	if got := testutil.ToFloat64(c.cacheEvictions.WithLabelValues("project:a")); got != 3 {
		t.Errorf("expected 3 evictions, got %f", got)
	}
	if got := testutil.ToFloat64(c.cacheSize.WithLabelValues("project:a")); got != 4096 {
		t.Errorf("expected size 4096, got %f", got)
	}
}

// TestCollector_NilIsNoop verifies every method tolerates a nil receiver
func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	c.RecordCacheHit("x", 1)
	c.RecordCacheMiss("x")
	c.RecordEviction("x", 1)
	c.RecordCacheSize("x", 1)
	c.RecordMemory(1, 1)
	if c.Registry() != nil {
		t.Error("nil collector must return nil registry")
	}
}

// TestCollector_Disabled returns nil without error
func TestCollector_Disabled(t *testing.T) {
	c, err := NewCollector(&Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}
	if c != nil {
		t.Error("disabled config must yield a nil collector")
	}
}

// TestCollector_MemoryGauges verifies process-level gauges
func TestCollector_MemoryGauges(t *testing.T) {
	c, err := NewCollector(nil)
	if err != nil {
		t.Fatalf("NewCollector failed: %v", err)
	}

	c.RecordMemory(1<<20, 512)
	if got := testutil.ToFloat64(c.memoryHeap); got != float64(1<<20) {
		t.Errorf("expected heap gauge %d, got %f", 1<<20, got)
	}
	if got := testutil.ToFloat64(c.memoryCaches); got != 512 {
		t.Errorf("expected cache gauge 512, got %f", got)
	}
}
