// Package metrics exposes cache and memory telemetry through Prometheus.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config represents metrics configuration
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// Collector implements types.MetricsSink backed by a private Prometheus
// registry. A nil *Collector is a valid no-op sink.
type Collector struct {
	config   *Config
	registry *prometheus.Registry

	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	cacheSize      *prometheus.GaugeVec
	memoryHeap     prometheus.Gauge
	memoryCaches   prometheus.Gauge
	responseOpTime *prometheus.HistogramVec

	server *http.Server
}

// NewCollector creates a metrics collector
func NewCollector(config *Config) (*Collector, error) {
	if config == nil {
		config = &Config{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "draftcache",
		}
	}
	if config.Namespace == "" {
		config.Namespace = "draftcache"
	}
	if !config.Enabled {
		return nil, nil
	}

	c := &Collector{
		config:   config,
		registry: prometheus.NewRegistry(),
	}

	c.cacheHits = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "cache_hits_total",
		Help:      "Cache hits by cache instance",
	}, []string{"cache"})

	c.cacheMisses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "cache_misses_total",
		Help:      "Cache misses by cache instance",
	}, []string{"cache"})

	c.cacheEvictions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: config.Namespace,
		Name:      "cache_evictions_total",
		Help:      "Entries evicted by cache instance",
	}, []string{"cache"})

	c.cacheSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Name:      "cache_size_bytes",
		Help:      "Tracked bytes by cache instance",
	}, []string{"cache"})

	c.memoryHeap = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Name:      "memory_heap_bytes",
		Help:      "Process heap in use",
	})

	c.memoryCaches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: config.Namespace,
		Name:      "memory_cache_bytes",
		Help:      "Aggregate bytes across registered caches",
	})

	c.responseOpTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: config.Namespace,
		Name:      "response_cache_op_seconds",
		Help:      "Response cache operation latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	collectors := []prometheus.Collector{
		c.cacheHits, c.cacheMisses, c.cacheEvictions, c.cacheSize,
		c.memoryHeap, c.memoryCaches, c.responseOpTime,
	}
	for _, collector := range collectors {
		if err := c.registry.Register(collector); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	return c, nil
}

// RecordCacheHit records a hit for the named cache.
func (c *Collector) RecordCacheHit(cache string, size int64) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a miss for the named cache.
func (c *Collector) RecordCacheMiss(cache string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordEviction records evicted entries for the named cache.
func (c *Collector) RecordEviction(cache string, count int64) {
	if c == nil {
		return
	}
	c.cacheEvictions.WithLabelValues(cache).Add(float64(count))
}

// RecordCacheSize updates the size gauge for the named cache.
func (c *Collector) RecordCacheSize(cache string, size int64) {
	if c == nil {
		return
	}
	c.cacheSize.WithLabelValues(cache).Set(float64(size))
}

// RecordMemory updates the process-level memory gauges.
func (c *Collector) RecordMemory(heapBytes uint64, cacheBytes int64) {
	if c == nil {
		return
	}
	c.memoryHeap.Set(float64(heapBytes))
	c.memoryCaches.Set(float64(cacheBytes))
}

// RecordResponseOp records the latency of a response-store operation.
func (c *Collector) RecordResponseOp(op string, d time.Duration) {
	if c == nil {
		return
	}
	c.responseOpTime.WithLabelValues(op).Observe(d.Seconds())
}

// Registry exposes the private registry for testing and embedding.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// Serve starts the metrics HTTP endpoint and blocks until shutdown.
func (c *Collector) Serve() error {
	if c == nil || !c.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.Path, promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))

	c.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", c.config.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := c.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops the metrics endpoint.
func (c *Collector) Shutdown(ctx context.Context) error {
	if c == nil || c.server == nil {
		return nil
	}
	return c.server.Shutdown(ctx)
}
