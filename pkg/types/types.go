package types

import "time"

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        uint64  `json:"hits"`
	Misses      uint64  `json:"misses"`
	Evictions   uint64  `json:"evictions"`
	Entries     int     `json:"entries"`
	Size        int64   `json:"size"`
	Capacity    int64   `json:"capacity"`
	HitRate     float64 `json:"hit_rate"`
	Utilization float64 `json:"utilization"`
}

// MemoryStats is a read-only snapshot of process memory usage produced by
// the memory manager.
type MemoryStats struct {
	Timestamp       time.Time        `json:"timestamp"`
	HeapAlloc       uint64           `json:"heap_alloc"`
	HeapSys         uint64           `json:"heap_sys"`
	Sys             uint64           `json:"sys"`
	PeakHeapAlloc   uint64           `json:"peak_heap_alloc"`
	NumGC           uint32           `json:"num_gc"`
	ForcedGC        uint64           `json:"forced_gc"`
	CacheBytes      int64            `json:"cache_bytes"`
	RegisteredCount int              `json:"registered_count"`
	CacheSizes      map[string]int64 `json:"cache_sizes,omitempty"`
}

// ResponseCacheStats describes the persistent response store.
type ResponseCacheStats struct {
	Rows        int64  `json:"rows"`
	PayloadSize int64  `json:"payload_size"`
	Hits        uint64 `json:"hits"`
	Misses      uint64 `json:"misses"`
	Expirations uint64 `json:"expirations"`
	WriteErrors uint64 `json:"write_errors"`
}
