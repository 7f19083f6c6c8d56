package cache

import (
	"sync"

	"github.com/draftcache/draftcache/pkg/types"
)

// ProjectScopedCache gives one writing project its own BoundedLRUCache
// instance and byte budget. Projects never share entries, so identical
// key strings in different projects cannot alias, one project's workload
// cannot starve another's cache, and closing a project clears in O(1)
// instead of scanning keys.
type ProjectScopedCache struct {
	projectID string
	inner     *BoundedLRUCache
}

// ProjectID returns the owning project's identifier.
func (p *ProjectScopedCache) ProjectID() string { return p.projectID }

// Get delegates to the owned cache instance.
func (p *ProjectScopedCache) Get(key string) ([]byte, bool) { return p.inner.Get(key) }

// Set delegates to the owned cache instance.
func (p *ProjectScopedCache) Set(key string, value []byte) error { return p.inner.Set(key, value) }

// SetWithSize delegates to the owned cache instance.
func (p *ProjectScopedCache) SetWithSize(key string, value []byte, size int64) error {
	return p.inner.SetWithSize(key, value, size)
}

// Update behaves identically to Set.
func (p *ProjectScopedCache) Update(key string, value []byte) error { return p.inner.Update(key, value) }

// Delete delegates to the owned cache instance.
func (p *ProjectScopedCache) Delete(key string) { p.inner.Delete(key) }

// Clear delegates to the owned cache instance.
func (p *ProjectScopedCache) Clear() { p.inner.Clear() }

// Contains delegates to the owned cache instance.
func (p *ProjectScopedCache) Contains(key string) bool { return p.inner.Contains(key) }

// SizeBytes delegates to the owned cache instance.
func (p *ProjectScopedCache) SizeBytes() int64 { return p.inner.SizeBytes() }

// Len delegates to the owned cache instance.
func (p *ProjectScopedCache) Len() int { return p.inner.Len() }

// Stats delegates to the owned cache instance.
func (p *ProjectScopedCache) Stats() types.CacheStats { return p.inner.Stats() }

// EvictOldest delegates to the owned cache instance.
func (p *ProjectScopedCache) EvictOldest(fraction float64) int64 {
	return p.inner.EvictOldest(fraction)
}

// EvictToSize delegates to the owned cache instance.
func (p *ProjectScopedCache) EvictToSize(targetBytes int64) int64 {
	return p.inner.EvictToSize(targetBytes)
}

// CacheRegistrar is the subset of the memory manager the registry reports
// to. The registry holds a plain reference, never ownership, keeping the
// manager/cache lifetimes acyclic.
type CacheRegistrar interface {
	RegisterCache(name string, cache types.Evictable)
	UnregisterCache(name string)
}

// ProjectRegistry is the process-wide factory for project caches. It has
// its own mutex; it never takes any cache's lock, so registry traffic is
// never serialized against cache traffic.
type ProjectRegistry struct {
	mu             sync.Mutex
	projects       map[string]*ProjectScopedCache
	budgetPerProj  int64
	metrics        types.MetricsSink
	memoryRegistry CacheRegistrar
}

// RegistryOption configures a ProjectRegistry.
type RegistryOption func(*ProjectRegistry)

// WithRegistryMetrics attaches a metrics sink to every cache the registry
// creates.
func WithRegistryMetrics(sink types.MetricsSink) RegistryOption {
	return func(r *ProjectRegistry) { r.metrics = sink }
}

// WithMemoryRegistrar reports every created cache to the memory manager
// so coordinated cleanup can reach it.
func WithMemoryRegistrar(reg CacheRegistrar) RegistryOption {
	return func(r *ProjectRegistry) { r.memoryRegistry = reg }
}

// NewProjectRegistry creates a registry whose caches each get
// budgetPerProject bytes.
func NewProjectRegistry(budgetPerProject int64, opts ...RegistryOption) *ProjectRegistry {
	if budgetPerProject <= 0 {
		budgetPerProject = DefaultCapacity
	}
	r := &ProjectRegistry{
		projects:      make(map[string]*ProjectScopedCache),
		budgetPerProj: budgetPerProject,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ForProject returns the cache for projectID, creating an empty one on
// first access. Creation is idempotent and never fails; an unknown
// project ID is not an error.
func (r *ProjectRegistry) ForProject(projectID string) *ProjectScopedCache {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.projects[projectID]; ok {
		return existing
	}

	var cacheOpts []Option
	if r.metrics != nil {
		cacheOpts = append(cacheOpts, WithMetrics("project:"+projectID, r.metrics))
	}

	scoped := &ProjectScopedCache{
		projectID: projectID,
		inner:     NewBoundedLRUCache(r.budgetPerProj, cacheOpts...),
	}
	r.projects[projectID] = scoped

	if r.memoryRegistry != nil {
		r.memoryRegistry.RegisterCache("project:"+projectID, scoped)
	}
	return scoped
}

// CloseProject clears the project's cache and removes it from the
// registry and the memory manager. Closing an unknown project is a no-op.
func (r *ProjectRegistry) CloseProject(projectID string) {
	r.mu.Lock()
	scoped, ok := r.projects[projectID]
	if ok {
		delete(r.projects, projectID)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	scoped.Clear()
	if r.memoryRegistry != nil {
		r.memoryRegistry.UnregisterCache("project:" + projectID)
	}
}

// Projects returns the IDs of all live project caches.
func (r *ProjectRegistry) Projects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.projects))
	for id := range r.projects {
		ids = append(ids, id)
	}
	return ids
}

// TotalSizeBytes sums the tracked bytes of all live project caches.
func (r *ProjectRegistry) TotalSizeBytes() int64 {
	r.mu.Lock()
	scopes := make([]*ProjectScopedCache, 0, len(r.projects))
	for _, s := range r.projects {
		scopes = append(scopes, s)
	}
	r.mu.Unlock()

	// Cache locks are taken after the registry lock is released.
	var total int64
	for _, s := range scopes {
		total += s.SizeBytes()
	}
	return total
}
