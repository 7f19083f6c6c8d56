package cache

import (
	"container/list"
	"sync"

	"github.com/draftcache/draftcache/pkg/cacheerr"
	"github.com/draftcache/draftcache/pkg/types"
)

// BoundedLRUCache is a thread-safe, byte-bounded key/value store with
// strict least-recently-used eviction. Total tracked bytes never exceed
// the configured capacity; inserting a value makes room by evicting from
// the cold end of the access order, ties broken by insertion order.
type BoundedLRUCache struct {
	mu          sync.Mutex
	capacity    int64
	currentSize int64
	items       map[string]*cacheItem
	evictList   *list.List

	metrics types.MetricsSink
	name    string

	stats types.CacheStats
}

// cacheItem represents an entry in the cache
type cacheItem struct {
	key     string
	data    []byte
	size    int64
	element *list.Element
}

// Option configures a BoundedLRUCache.
type Option func(*BoundedLRUCache)

// WithMetrics attaches a metrics sink. A nil sink is valid.
func WithMetrics(name string, sink types.MetricsSink) Option {
	return func(c *BoundedLRUCache) {
		c.name = name
		c.metrics = sink
	}
}

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 256 * 1024 * 1024 // 256MB

// NewBoundedLRUCache creates a cache holding at most maxBytes of values.
func NewBoundedLRUCache(maxBytes int64, opts ...Option) *BoundedLRUCache {
	if maxBytes <= 0 {
		maxBytes = DefaultCapacity
	}
	c := &BoundedLRUCache{
		capacity:  maxBytes,
		items:     make(map[string]*cacheItem),
		evictList: list.New(),
		stats: types.CacheStats{
			Capacity: maxBytes,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value and marks it most recently used. Recency is
// updated under the same lock as Set/Delete to avoid eviction races.
func (c *BoundedLRUCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		c.stats.Misses++
		c.updateHitRate()
		if c.metrics != nil {
			c.metrics.RecordCacheMiss(c.name)
		}
		return nil, false
	}

	c.evictList.MoveToFront(item.element)

	c.stats.Hits++
	c.updateHitRate()
	if c.metrics != nil {
		c.metrics.RecordCacheHit(c.name, item.size)
	}

	// Return a copy of the data so callers cannot mutate the cached entry.
	data := make([]byte, len(item.data))
	copy(data, item.data)
	return data, true
}

// Set inserts or replaces a value, resetting its recency. A single value
// larger than the cache capacity is rejected with TooLarge and not cached;
// any previous entry under that key stays removed so a failed overwrite
// cannot resurrect stale data.
func (c *BoundedLRUCache) Set(key string, value []byte) error {
	return c.SetWithSize(key, value, int64(len(value)))
}

// SetWithSize is Set with a caller-supplied size hint, for values whose
// accounting size differs from len(value).
func (c *BoundedLRUCache) SetWithSize(key string, value []byte, size int64) error {
	if size < 0 {
		size = int64(len(value))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replace semantics: drop any existing entry first so its bytes do
	// not count against the incoming value.
	if existing, exists := c.items[key]; exists {
		c.removeItem(existing)
	}

	if size > c.capacity {
		return cacheerr.TooLarge("lru-cache", size, c.capacity)
	}

	for c.currentSize+size > c.capacity && c.evictList.Len() > 0 {
		c.evictOldestLocked()
	}

	// Store a copy so later mutation of the caller's slice cannot reach
	// the cached entry.
	data := make([]byte, len(value))
	copy(data, value)

	item := &cacheItem{
		key:  key,
		data: data,
		size: size,
	}
	item.element = c.evictList.PushFront(item)
	c.items[key] = item
	c.currentSize += size

	if c.metrics != nil {
		c.metrics.RecordCacheSize(c.name, c.currentSize)
	}
	return nil
}

// Update behaves identically to Set for all inputs.
func (c *BoundedLRUCache) Update(key string, value []byte) error {
	return c.Set(key, value)
}

// Delete removes an entry if present.
func (c *BoundedLRUCache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[key]; exists {
		c.removeItem(item)
	}
}

// Contains reports whether a key is cached without touching recency.
func (c *BoundedLRUCache) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, exists := c.items[key]
	return exists
}

// Clear removes all entries.
func (c *BoundedLRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := len(c.items)
	c.items = make(map[string]*cacheItem)
	c.evictList.Init()
	c.currentSize = 0
	c.stats.Evictions += uint64(evicted)

	if c.metrics != nil {
		c.metrics.RecordEviction(c.name, int64(evicted))
		c.metrics.RecordCacheSize(c.name, 0)
	}
}

// SizeBytes returns the current tracked size.
func (c *BoundedLRUCache) SizeBytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentSize
}

// Len returns the number of cached entries.
func (c *BoundedLRUCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Capacity returns the configured byte budget.
func (c *BoundedLRUCache) Capacity() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// Keys returns cached keys ordered from most to least recently used.
func (c *BoundedLRUCache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.items))
	for e := c.evictList.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(*cacheItem).key)
	}
	return keys
}

// EvictOldest removes the least recently used fraction of entries
// (0 < fraction <= 1) and returns the number of bytes freed. Used by the
// memory manager during coordinated cleanup.
func (c *BoundedLRUCache) EvictOldest(fraction float64) int64 {
	if fraction <= 0 {
		return 0
	}
	if fraction > 1 {
		fraction = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	target := int(float64(len(c.items)) * fraction)
	if target == 0 && len(c.items) > 0 {
		target = 1
	}

	freed := int64(0)
	evicted := int64(0)
	for i := 0; i < target; i++ {
		element := c.evictList.Back()
		if element == nil {
			break
		}
		item := element.Value.(*cacheItem)
		freed += item.size
		c.removeItem(item)
		evicted++
	}
	c.stats.Evictions += uint64(evicted)

	if c.metrics != nil && evicted > 0 {
		c.metrics.RecordEviction(c.name, evicted)
		c.metrics.RecordCacheSize(c.name, c.currentSize)
	}
	return freed
}

// EvictToSize evicts LRU entries until the tracked size is at or below
// targetBytes. Returns the number of bytes freed.
func (c *BoundedLRUCache) EvictToSize(targetBytes int64) int64 {
	if targetBytes < 0 {
		targetBytes = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	freed := int64(0)
	evicted := int64(0)
	for c.currentSize > targetBytes && c.evictList.Len() > 0 {
		element := c.evictList.Back()
		item := element.Value.(*cacheItem)
		freed += item.size
		c.removeItem(item)
		evicted++
	}
	c.stats.Evictions += uint64(evicted)

	if c.metrics != nil && evicted > 0 {
		c.metrics.RecordEviction(c.name, evicted)
		c.metrics.RecordCacheSize(c.name, c.currentSize)
	}
	return freed
}

// Stats returns a snapshot of cache statistics.
func (c *BoundedLRUCache) Stats() types.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.currentSize
	stats.Entries = len(c.items)
	stats.Utilization = float64(c.currentSize) / float64(c.capacity)
	return stats
}

// removeItem unlinks an entry without counting it as an eviction;
// explicit Delete and replace are not capacity pressure. Must be called
// with the lock held.
func (c *BoundedLRUCache) removeItem(item *cacheItem) {
	if item.element != nil {
		c.evictList.Remove(item.element)
	}
	delete(c.items, item.key)
	c.currentSize -= item.size
}

// evictOldestLocked must be called with the lock held.
func (c *BoundedLRUCache) evictOldestLocked() {
	element := c.evictList.Back()
	if element == nil {
		return
	}
	item := element.Value.(*cacheItem)
	c.removeItem(item)
	c.stats.Evictions++
	if c.metrics != nil {
		c.metrics.RecordEviction(c.name, 1)
	}
}

func (c *BoundedLRUCache) updateHitRate() {
	total := c.stats.Hits + c.stats.Misses
	if total > 0 {
		c.stats.HitRate = float64(c.stats.Hits) / float64(total)
	}
}
