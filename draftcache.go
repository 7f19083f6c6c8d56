// Package draftcache assembles the caching subsystem for a writing
// application: per-project bounded LRU caches, lazy chunked text
// loading, a persistent compressed response store, and a memory manager
// that coordinates cleanup across all of them.
//
// The Subsystem is the single entry point. It is built from a
// Configuration, owns the lifecycle of every component, and exposes the
// operations collaborators need without leaking internal packages.
package draftcache

import (
	"context"
	"time"

	"github.com/draftcache/draftcache/internal/cache"
	"github.com/draftcache/draftcache/internal/config"
	"github.com/draftcache/draftcache/internal/loader"
	"github.com/draftcache/draftcache/internal/memory"
	"github.com/draftcache/draftcache/internal/metrics"
	"github.com/draftcache/draftcache/internal/respcache"
	"github.com/draftcache/draftcache/pkg/health"
	"github.com/draftcache/draftcache/pkg/types"
	"github.com/draftcache/draftcache/pkg/utils"
)

// Re-exported so callers work entirely through this package.
type (
	// ProjectCache is one project's isolated LRU cache.
	ProjectCache = cache.ProjectScopedCache

	// TextLoader reads a draft file in bounded, cached chunks.
	TextLoader = loader.Loader

	// Request identifies a generation request for fingerprinting.
	Request = respcache.Request

	// FingerprintContext is the story context folded into a fingerprint.
	FingerprintContext = respcache.FingerprintContext
)

// Fingerprint derives the deterministic cache key for a request in
// context.
func Fingerprint(req Request, fctx FingerprintContext) string {
	return respcache.Fingerprint(req, fctx)
}

// Component names used with the health tracker.
const (
	ComponentResponseStore = "response-store"
	ComponentMemory        = "memory"
)

// Subsystem owns every cache component and their shared lifecycle.
type Subsystem struct {
	cfg    *config.Configuration
	logger *utils.StructuredLogger

	collector *metrics.Collector
	manager   *memory.Manager
	registry  *cache.ProjectRegistry
	responses *respcache.Store
	tracker   *health.Tracker

	loaderChunkSize int64
	loaderMaxChunks int

	cancel context.CancelFunc
}

// New builds a subsystem from cfg. A nil cfg uses the defaults. The
// returned subsystem is usable immediately; Start launches the
// background monitors.
func New(cfg *config.Configuration) (*Subsystem, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := utils.NewStructuredLogger(&utils.StructuredLoggerConfig{
		Level:  utils.ParseLogLevel(cfg.Logging.Level),
		Format: logFormat(cfg.Logging.Format),
	})

	collector, err := metrics.NewCollector(&metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Port:    cfg.Metrics.Port,
		Path:    cfg.Metrics.Path,
	})
	if err != nil {
		return nil, err
	}

	budget, err := cfg.ProjectCacheBudget()
	if err != nil {
		return nil, err
	}
	chunkSize, err := cfg.LoaderChunkSize()
	if err != nil {
		return nil, err
	}
	ceiling, err := cfg.MemoryCeiling()
	if err != nil {
		return nil, err
	}

	manager := memory.NewManager(memory.Config{
		CeilingBytes:     uint64(ceiling),
		WarningFraction:  cfg.Memory.WarningFraction,
		CriticalFraction: cfg.Memory.CriticalFraction,
		SampleInterval:   cfg.Memory.SampleInterval,
		Logger:           logger,
	})

	registry := cache.NewProjectRegistry(budget,
		cache.WithRegistryMetrics(collector),
		cache.WithMemoryRegistrar(manager),
	)

	responses, err := respcache.Open(cfg.ResponseCache.Path, func(o *respcache.Options) {
		o.OpTimeout = cfg.ResponseCache.OpTimeout
		o.SweepInterval = cfg.ResponseCache.SweepInterval
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}

	tracker := health.NewTracker(health.DefaultConfig())
	tracker.Register(ComponentResponseStore)
	tracker.Register(ComponentMemory)
	tracker.OnStateChange(func(component string, oldState, newState health.State, err error) {
		fields := map[string]interface{}{
			"component": component,
			"from":      oldState.String(),
			"to":        newState.String(),
		}
		if err != nil {
			fields["error"] = err.Error()
		}
		logger.Warn("component health changed", fields)
	})

	return &Subsystem{
		cfg:             cfg,
		logger:          logger,
		collector:       collector,
		manager:         manager,
		registry:        registry,
		responses:       responses,
		tracker:         tracker,
		loaderChunkSize: chunkSize,
		loaderMaxChunks: cfg.Loader.MaxChunks,
	}, nil
}

// ProjectCache returns the cache for projectID, creating it on first
// access.
func (s *Subsystem) ProjectCache(projectID string) *ProjectCache {
	return s.registry.ForProject(projectID)
}

// CloseProject clears and removes a project's cache.
func (s *Subsystem) CloseProject(projectID string) {
	s.registry.CloseProject(projectID)
}

// SetActiveProject marks the project hard cleanup must spare.
func (s *Subsystem) SetActiveProject(projectID string) {
	s.manager.SetActiveProject(projectID)
}

// OpenText opens a draft file for chunked lazy reading with the
// configured chunk geometry.
func (s *Subsystem) OpenText(path string) (*TextLoader, error) {
	return loader.Open(path, func(o *loader.Options) {
		o.ChunkSize = s.loaderChunkSize
		o.MaxChunks = s.loaderMaxChunks
		o.Logger = s.logger
	})
}

// LookupResponse returns a previously cached response for the request in
// context, or a miss. Failures inside the store degrade to a miss.
func (s *Subsystem) LookupResponse(ctx context.Context, req Request, fctx FingerprintContext) ([]byte, bool) {
	if !s.tracker.CanRead(ComponentResponseStore) {
		return nil, false
	}
	start := time.Now()
	payload, ok := s.responses.Get(ctx, Fingerprint(req, fctx))
	s.collector.RecordResponseOp("get", time.Since(start))
	return payload, ok
}

// CacheResponse stores a response under the request's fingerprint. A
// store in the read-only or unavailable health state drops the write
// silently; the response itself has already been delivered to the user.
func (s *Subsystem) CacheResponse(ctx context.Context, req Request, fctx FingerprintContext, payload []byte) error {
	if !s.tracker.CanWrite(ComponentResponseStore) {
		return nil
	}
	start := time.Now()
	err := s.responses.Put(ctx, Fingerprint(req, fctx), payload, int64(s.cfg.ResponseCache.TTL.Seconds()))
	s.collector.RecordResponseOp("put", time.Since(start))
	if err != nil {
		s.tracker.RecordError(ComponentResponseStore, err)
		return err
	}
	s.tracker.RecordSuccess(ComponentResponseStore)
	return nil
}

// Responses exposes the underlying response store for direct access.
func (s *Subsystem) Responses() *respcache.Store {
	return s.responses
}

// Memory exposes the memory manager.
func (s *Subsystem) Memory() *memory.Manager {
	return s.manager
}

// Health exposes the component health tracker.
func (s *Subsystem) Health() *health.Tracker {
	return s.tracker
}

// Stats returns a memory snapshot and feeds the metrics gauges.
func (s *Subsystem) Stats() types.MemoryStats {
	stats := s.manager.Stats()
	s.collector.RecordMemory(stats.HeapAlloc, stats.CacheBytes)
	return stats
}

// Start launches the memory monitor, the periodic health probes, and the
// metrics endpoint when enabled. It returns immediately.
func (s *Subsystem) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	if err := s.manager.Start(ctx); err != nil {
		s.cancel()
		return err
	}

	go s.tracker.StartChecks(ctx, s.probe)

	if s.collector != nil {
		go func() {
			if err := s.collector.Serve(); err != nil {
				s.logger.Error("metrics endpoint failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}()
	}
	return nil
}

// probe is the periodic health check for one component.
func (s *Subsystem) probe(ctx context.Context, component string) error {
	switch component {
	case ComponentResponseStore:
		return s.responses.Ping(ctx)
	default:
		return nil
	}
}

// Close stops the monitors and releases the response store. The project
// caches need no teardown beyond garbage collection.
func (s *Subsystem) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.manager.Stop()

	if s.collector != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.collector.Shutdown(ctx)
	}
	return s.responses.Close()
}

func logFormat(format string) utils.LogFormat {
	if format == "json" {
		return utils.FormatJSON
	}
	return utils.FormatText
}
