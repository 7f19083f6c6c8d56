// Package config loads and validates the caching subsystem configuration
// from YAML, with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/draftcache/draftcache/pkg/cacheerr"
)

// Configuration represents the complete subsystem configuration
type Configuration struct {
	Logging       LoggingConfig       `yaml:"logging"`
	ProjectCache  ProjectCacheConfig  `yaml:"project_cache"`
	Loader        LoaderConfig        `yaml:"loader"`
	ResponseCache ResponseCacheConfig `yaml:"response_cache"`
	Memory        MemoryConfig        `yaml:"memory"`
	Metrics       MetricsConfig       `yaml:"metrics"`
}

// LoggingConfig represents logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// ProjectCacheConfig represents per-project cache settings
type ProjectCacheConfig struct {
	BudgetPerProject string `yaml:"budget_per_project"`
}

// LoaderConfig represents lazy text loader settings
type LoaderConfig struct {
	ChunkSize string `yaml:"chunk_size"`
	MaxChunks int    `yaml:"max_chunks"`
}

// ResponseCacheConfig represents persistent response cache settings
type ResponseCacheConfig struct {
	Path          string        `yaml:"path"`
	TTL           time.Duration `yaml:"ttl"`
	OpTimeout     time.Duration `yaml:"op_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// MemoryConfig represents memory manager settings
type MemoryConfig struct {
	Ceiling          string        `yaml:"ceiling"`
	WarningFraction  float64       `yaml:"warning_fraction"`
	CriticalFraction float64       `yaml:"critical_fraction"`
	SampleInterval   time.Duration `yaml:"sample_interval"`
}

// MetricsConfig represents metrics exposition settings
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// Default returns the built-in configuration
func Default() *Configuration {
	return &Configuration{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		ProjectCache: ProjectCacheConfig{
			BudgetPerProject: "256MB",
		},
		Loader: LoaderConfig{
			ChunkSize: "1MB",
			MaxChunks: 10,
		},
		ResponseCache: ResponseCacheConfig{
			Path:          "responses.db",
			TTL:           24 * time.Hour,
			OpTimeout:     3 * time.Second,
			SweepInterval: 24 * time.Hour,
		},
		Memory: MemoryConfig{
			Ceiling:          "1GB",
			WarningFraction:  0.80,
			CriticalFraction: 0.90,
			SampleInterval:   30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}

// Load reads configuration from a YAML file, applies environment
// overrides, and validates. A missing file yields the defaults.
func Load(path string) (*Configuration, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, cacheerr.New(cacheerr.ErrCodeInvalidConfig,
					fmt.Sprintf("reading config file %s", path)).WithCause(err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, cacheerr.New(cacheerr.ErrCodeInvalidConfig,
				fmt.Sprintf("parsing config file %s", path)).WithCause(err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides maps DRAFTCACHE_* variables onto configuration fields
func (c *Configuration) applyEnvOverrides() {
	if v := os.Getenv("DRAFTCACHE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("DRAFTCACHE_PROJECT_BUDGET"); v != "" {
		c.ProjectCache.BudgetPerProject = v
	}
	if v := os.Getenv("DRAFTCACHE_RESPONSE_DB"); v != "" {
		c.ResponseCache.Path = v
	}
	if v := os.Getenv("DRAFTCACHE_MEMORY_CEILING"); v != "" {
		c.Memory.Ceiling = v
	}
	if v := os.Getenv("DRAFTCACHE_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Metrics.Port = port
		}
	}
}

// Validate checks the configuration for consistency
func (c *Configuration) Validate() error {
	if _, err := c.ProjectCacheBudget(); err != nil {
		return err
	}
	if _, err := c.LoaderChunkSize(); err != nil {
		return err
	}
	if _, err := c.MemoryCeiling(); err != nil {
		return err
	}
	if c.Loader.MaxChunks <= 0 {
		return cacheerr.New(cacheerr.ErrCodeInvalidConfig, "loader.max_chunks must be positive")
	}
	if c.Memory.WarningFraction <= 0 || c.Memory.WarningFraction >= 1 {
		return cacheerr.New(cacheerr.ErrCodeInvalidConfig, "memory.warning_fraction must be in (0,1)")
	}
	if c.Memory.CriticalFraction <= c.Memory.WarningFraction || c.Memory.CriticalFraction >= 1 {
		return cacheerr.New(cacheerr.ErrCodeInvalidConfig,
			"memory.critical_fraction must be in (warning_fraction,1)")
	}
	if c.ResponseCache.Path == "" {
		return cacheerr.New(cacheerr.ErrCodeInvalidConfig, "response_cache.path must not be empty")
	}
	if c.ResponseCache.TTL <= 0 {
		return cacheerr.New(cacheerr.ErrCodeInvalidConfig, "response_cache.ttl must be positive")
	}
	return nil
}

// ProjectCacheBudget returns the per-project byte budget.
func (c *Configuration) ProjectCacheBudget() (int64, error) {
	return ParseSize(c.ProjectCache.BudgetPerProject)
}

// LoaderChunkSize returns the loader chunk size in bytes.
func (c *Configuration) LoaderChunkSize() (int64, error) {
	return ParseSize(c.Loader.ChunkSize)
}

// MemoryCeiling returns the memory ceiling in bytes.
func (c *Configuration) MemoryCeiling() (int64, error) {
	return ParseSize(c.Memory.Ceiling)
}

// ParseSize converts human-readable sizes ("256MB", "1.5GB", "1024") to
// bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, cacheerr.New(cacheerr.ErrCodeInvalidConfig, "empty size")
	}

	multipliers := []struct {
		suffix string
		factor float64
	}{
		{"TB", 1 << 40},
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	}

	for _, m := range multipliers {
		if strings.HasSuffix(s, m.suffix) {
			num := strings.TrimSpace(strings.TrimSuffix(s, m.suffix))
			value, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, cacheerr.New(cacheerr.ErrCodeInvalidConfig,
					fmt.Sprintf("invalid size %q", s)).WithCause(err)
			}
			if value < 0 {
				return 0, cacheerr.New(cacheerr.ErrCodeInvalidConfig,
					fmt.Sprintf("negative size %q", s))
			}
			return int64(value * m.factor), nil
		}
	}

	value, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, cacheerr.New(cacheerr.ErrCodeInvalidConfig,
			fmt.Sprintf("invalid size %q", s)).WithCause(err)
	}
	if value < 0 {
		return 0, cacheerr.New(cacheerr.ErrCodeInvalidConfig,
			fmt.Sprintf("negative size %q", s))
	}
	return value, nil
}
