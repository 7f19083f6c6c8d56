// Package memory provides process-wide visibility into memory usage and
// coordinated cleanup across every registered cache tier.
package memory

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/draftcache/draftcache/pkg/types"
	"github.com/draftcache/draftcache/pkg/utils"
)

// Config configures memory management behavior
type Config struct {
	// CeilingBytes is the working-memory budget the thresholds are
	// computed against.
	CeilingBytes uint64

	// WarningFraction of the ceiling triggers soft cleanup.
	WarningFraction float64

	// CriticalFraction of the ceiling triggers hard cleanup plus a
	// forced GC cycle.
	CriticalFraction float64

	// EvictFraction is the share of entries soft cleanup evicts from
	// each registered cache per round.
	EvictFraction float64

	// SoftTargetBytes is what Cleanup drives the aggregate registered
	// cache size down to. Defaults to half the ceiling.
	SoftTargetBytes int64

	// SampleInterval is how often the monitor loop compares usage to
	// the thresholds.
	SampleInterval time.Duration

	Logger *utils.StructuredLogger
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		CeilingBytes:     1 * 1024 * 1024 * 1024, // 1GB
		WarningFraction:  0.80,
		CriticalFraction: 0.90,
		EvictFraction:    0.25,
		SampleInterval:   30 * time.Second,
	}
}

// Manager is the process-wide coordinator. It exclusively owns the
// registry of live caches; caches never hold a reference back, keeping
// lifetimes acyclic. It is an explicit object injected into
// collaborators; Default gives the init-on-first-use process instance.
type Manager struct {
	config Config
	logger *utils.StructuredLogger

	mu            sync.Mutex
	caches        map[string]types.Evictable
	activeProject string

	peakHeap atomic.Uint64
	forcedGC atomic.Uint64

	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewManager creates a memory manager with the given configuration.
func NewManager(config Config) *Manager {
	if config.CeilingBytes == 0 {
		config.CeilingBytes = DefaultConfig().CeilingBytes
	}
	if config.WarningFraction <= 0 || config.WarningFraction >= 1 {
		config.WarningFraction = 0.80
	}
	if config.CriticalFraction <= config.WarningFraction || config.CriticalFraction >= 1 {
		config.CriticalFraction = 0.90
	}
	if config.EvictFraction <= 0 || config.EvictFraction > 1 {
		config.EvictFraction = 0.25
	}
	if config.SoftTargetBytes <= 0 {
		config.SoftTargetBytes = int64(config.CeilingBytes / 2)
	}
	if config.SampleInterval <= 0 {
		config.SampleInterval = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = utils.NewStructuredLogger(nil)
	}

	return &Manager{
		config: config,
		logger: config.Logger.WithComponent("memory"),
		caches: make(map[string]types.Evictable),
		stopCh: make(chan struct{}),
	}
}

var (
	defaultManager *Manager
	defaultOnce    sync.Once
)

// Default returns the process-wide manager, created on first access.
func Default() *Manager {
	defaultOnce.Do(func() {
		defaultManager = NewManager(DefaultConfig())
	})
	return defaultManager
}

// RegisterCache adds a cache to the registry. Registering an existing
// name replaces the previous entry.
func (mm *Manager) RegisterCache(name string, cache types.Evictable) {
	if cache == nil {
		return
	}
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.caches[name] = cache
}

// UnregisterCache removes a cache from the registry.
func (mm *Manager) UnregisterCache(name string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	delete(mm.caches, name)
}

// SetActiveProject marks which project's cache hard cleanup spares.
func (mm *Manager) SetActiveProject(projectID string) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	mm.activeProject = projectID
}

// Stats returns a read-only snapshot of memory statistics.
func (mm *Manager) Stats() types.MemoryStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	// Track the high-water mark.
	for {
		peak := mm.peakHeap.Load()
		if ms.HeapAlloc <= peak || mm.peakHeap.CompareAndSwap(peak, ms.HeapAlloc) {
			break
		}
	}

	sizes := mm.cacheSizes()
	var cacheBytes int64
	for _, size := range sizes {
		cacheBytes += size
	}

	return types.MemoryStats{
		Timestamp:       time.Now(),
		HeapAlloc:       ms.HeapAlloc,
		HeapSys:         ms.HeapSys,
		Sys:             ms.Sys,
		PeakHeapAlloc:   mm.peakHeap.Load(),
		NumGC:           ms.NumGC,
		ForcedGC:        mm.forcedGC.Load(),
		CacheBytes:      cacheBytes,
		RegisteredCount: len(sizes),
		CacheSizes:      sizes,
	}
}

// Cleanup evicts the least recently used entries across every registered
// cache until the aggregate is at or below the soft target. It never
// returns an error: a failed attempt to free memory is logged and treated
// as a degraded state so in-flight application work is never interrupted.
func (mm *Manager) Cleanup() {
	target := mm.config.SoftTargetBytes
	before := mm.aggregateCacheBytes()

	// Bounded rounds: each pass evicts a fraction from every cache, so
	// the aggregate shrinks geometrically until empty or under target.
	const maxRounds = 32
	for round := 0; round < maxRounds; round++ {
		if mm.aggregateCacheBytes() <= target {
			break
		}
		if mm.evictRound(mm.config.EvictFraction) == 0 {
			break
		}
	}

	after := mm.aggregateCacheBytes()
	if after > target {
		mm.logger.Warn("cleanup could not reach soft target", map[string]interface{}{
			"target": target,
			"freed":  before - after,
			"size":   after,
		})
		return
	}
	mm.logger.Info("soft cleanup complete", map[string]interface{}{
		"freed": before - after,
		"size":  after,
	})
}

// HardCleanup clears every registered cache except the active project's.
func (mm *Manager) HardCleanup() {
	mm.mu.Lock()
	spare := ""
	if mm.activeProject != "" {
		spare = "project:" + mm.activeProject
	}
	targets := make(map[string]types.Evictable, len(mm.caches))
	for name, cache := range mm.caches {
		if name != spare {
			targets[name] = cache
		}
	}
	mm.mu.Unlock()

	// Cache locks are taken after the registry lock is released.
	for name, cache := range targets {
		mm.safeClear(name, cache)
	}

	mm.logger.Warn("hard cleanup complete", map[string]interface{}{
		"cleared": len(targets),
		"spared":  spare,
	})
}

// OptimizeMemory runs a soft cleanup followed by a forced GC cycle.
func (mm *Manager) OptimizeMemory() {
	mm.Cleanup()
	mm.ForceGarbageCollection()
}

// ForceGarbageCollection triggers a GC cycle and records it.
func (mm *Manager) ForceGarbageCollection() {
	runtime.GC()
	mm.forcedGC.Add(1)
	mm.logger.Debug("forced garbage collection", nil)
}

// Start begins the monitor loop. Crossing the warning threshold triggers
// soft cleanup; crossing critical triggers hard cleanup plus forced GC.
func (mm *Manager) Start(ctx context.Context) error {
	if !mm.running.CompareAndSwap(false, true) {
		return fmt.Errorf("memory manager already running")
	}

	// Fresh channel per run so the manager can be restarted after Stop.
	mm.stopCh = make(chan struct{})

	mm.logger.Info("memory monitor started", map[string]interface{}{
		"ceiling":  mm.config.CeilingBytes,
		"warning":  mm.config.WarningFraction,
		"critical": mm.config.CriticalFraction,
		"interval": mm.config.SampleInterval,
	})

	mm.wg.Add(1)
	go mm.monitorLoop(ctx, mm.stopCh)
	return nil
}

// Stop halts the monitor loop.
func (mm *Manager) Stop() {
	if !mm.running.CompareAndSwap(true, false) {
		return
	}
	close(mm.stopCh)
	mm.wg.Wait()
}

func (mm *Manager) monitorLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer mm.wg.Done()

	ticker := time.NewTicker(mm.config.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			mm.checkPressure()
		}
	}
}

// checkPressure compares current usage to the configured thresholds.
func (mm *Manager) checkPressure() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	usage := ms.HeapAlloc
	warning := uint64(float64(mm.config.CeilingBytes) * mm.config.WarningFraction)
	critical := uint64(float64(mm.config.CeilingBytes) * mm.config.CriticalFraction)

	switch {
	case usage >= critical:
		mm.logger.Warn("critical memory pressure", map[string]interface{}{
			"heap_alloc": usage,
			"threshold":  critical,
		})
		mm.HardCleanup()
		mm.ForceGarbageCollection()
	case usage >= warning:
		mm.logger.Warn("memory pressure warning", map[string]interface{}{
			"heap_alloc": usage,
			"threshold":  warning,
		})
		mm.Cleanup()
	}
}

// evictRound evicts a fraction from every registered cache and returns
// the total bytes freed.
func (mm *Manager) evictRound(fraction float64) int64 {
	mm.mu.Lock()
	targets := make(map[string]types.Evictable, len(mm.caches))
	for name, cache := range mm.caches {
		targets[name] = cache
	}
	mm.mu.Unlock()

	var freed int64
	for name, cache := range targets {
		freed += mm.safeEvict(name, cache, fraction)
	}
	return freed
}

// safeEvict contains a misbehaving cache implementation: eviction
// failures are logged, never propagated.
func (mm *Manager) safeEvict(name string, cache types.Evictable, fraction float64) (freed int64) {
	defer func() {
		if r := recover(); r != nil {
			mm.logger.Error("cache eviction panicked", map[string]interface{}{
				"cache": name,
				"panic": fmt.Sprintf("%v", r),
			})
			freed = 0
		}
	}()
	return cache.EvictOldest(fraction)
}

func (mm *Manager) safeClear(name string, cache types.Evictable) {
	defer func() {
		if r := recover(); r != nil {
			mm.logger.Error("cache clear panicked", map[string]interface{}{
				"cache": name,
				"panic": fmt.Sprintf("%v", r),
			})
		}
	}()
	cache.Clear()
}

func (mm *Manager) cacheSizes() map[string]int64 {
	mm.mu.Lock()
	targets := make(map[string]types.Evictable, len(mm.caches))
	for name, cache := range mm.caches {
		targets[name] = cache
	}
	mm.mu.Unlock()

	sizes := make(map[string]int64, len(targets))
	for name, cache := range targets {
		sizes[name] = cache.SizeBytes()
	}
	return sizes
}

func (mm *Manager) aggregateCacheBytes() int64 {
	var total int64
	for _, size := range mm.cacheSizes() {
		total += size
	}
	return total
}
