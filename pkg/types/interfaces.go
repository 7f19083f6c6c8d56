package types

import "context"

// ByteCache defines the in-memory caching interface shared by the bounded
// LRU cache and its project-scoped wrapper.
type ByteCache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Update(key string, value []byte) error
	Delete(key string)
	Clear()
	Contains(key string) bool
	SizeBytes() int64
	Len() int
	Stats() CacheStats
}

// Evictable is the surface the memory manager drives during coordinated
// cleanup. Every registered cache implements it.
type Evictable interface {
	SizeBytes() int64
	// EvictOldest removes the least recently used fraction of entries
	// (0 < fraction <= 1) and returns the number of bytes freed.
	EvictOldest(fraction float64) int64
	Clear()
}

// ResponseCache is the persistent store for AI-provider responses. Reads
// degrade to a miss on any storage failure; writes are best-effort.
type ResponseCache interface {
	Get(ctx context.Context, fingerprint string) ([]byte, bool)
	Put(ctx context.Context, fingerprint string, payload []byte, ttlSeconds int64) error
	Delete(ctx context.Context, fingerprint string) error
	Sweep(ctx context.Context) (int64, error)
	Stats() ResponseCacheStats
	Close() error
}

// MetricsSink receives cache events. All components accept a nil sink.
type MetricsSink interface {
	RecordCacheHit(cache string, size int64)
	RecordCacheMiss(cache string)
	RecordEviction(cache string, count int64)
	RecordCacheSize(cache string, size int64)
}
