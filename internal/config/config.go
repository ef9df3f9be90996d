// Package config handles pagewatch configuration from YAML files.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pagewatch configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Renderer  RendererConfig  `yaml:"renderer"`
	Engine    EngineConfig    `yaml:"engine"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RendererConfig controls how rendered HTML is obtained.
//
// When BaseURL is set the remote renderer service is used; otherwise a local
// Chrome is launched via rod.
type RendererConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	WaitMs  int    `yaml:"wait_ms"`
	// TimeoutMs bounds one renderer call, retries included.
	TimeoutMs      int `yaml:"timeout_ms"`
	ViewportWidth  int `yaml:"viewport_width"`
	ViewportHeight int `yaml:"viewport_height"`
}

// EngineConfig tunes the versioning engine.
type EngineConfig struct {
	// FullVersionInterval: every Nth version is written as a full baseline.
	FullVersionInterval int `yaml:"full_version_interval"`
	// MaxVersionsPerCompetitor is the retention ceiling.
	MaxVersionsPerCompetitor int `yaml:"max_versions_per_competitor"`
	// ChangeThreshold is the minimum changed-line fraction (0.05 = 5%)
	// for a capture to be considered significant.
	ChangeThreshold float64 `yaml:"change_threshold"`
	// SignificantChangeThreshold is the minimum hunk length in characters
	// retained by the differ.
	SignificantChangeThreshold int `yaml:"significant_change_threshold"`
	// CompressionEnabled gzip-encodes stored full HTML.
	CompressionEnabled *bool `yaml:"compression_enabled"`
	// CaptureTimeoutMs bounds one whole capture.
	CaptureTimeoutMs int `yaml:"capture_timeout_ms"`
}

// SchedulerConfig controls the capture scheduler.
type SchedulerConfig struct {
	// CheckInterval is how often to poll for due competitors.
	CheckInterval time.Duration `yaml:"check_interval"`
	// Workers is the number of parallel capture workers.
	Workers int `yaml:"workers"`
	// RetentionSweep is the cadence of the global retention pass.
	RetentionSweep time.Duration `yaml:"retention_sweep"`
}

// ServerConfig controls the HTTP admin surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	var cfg Config
	cfg.ApplyDefaults()
	return &cfg
}

// ApplyDefaults fills zero fields with production defaults.
func (c *Config) ApplyDefaults() {
	if c.Database.Path == "" {
		c.Database.Path = "pagewatch.db"
	}
	if c.Renderer.WaitMs <= 0 {
		c.Renderer.WaitMs = 3000
	}
	if c.Renderer.TimeoutMs <= 0 {
		c.Renderer.TimeoutMs = 30_000
	}
	if c.Renderer.ViewportWidth <= 0 {
		c.Renderer.ViewportWidth = 1920
	}
	if c.Renderer.ViewportHeight <= 0 {
		c.Renderer.ViewportHeight = 1080
	}
	if c.Engine.FullVersionInterval <= 0 {
		c.Engine.FullVersionInterval = 10
	}
	if c.Engine.MaxVersionsPerCompetitor <= 0 {
		c.Engine.MaxVersionsPerCompetitor = 30
	}
	if c.Engine.ChangeThreshold <= 0 {
		c.Engine.ChangeThreshold = 0.05
	}
	if c.Engine.SignificantChangeThreshold <= 0 {
		c.Engine.SignificantChangeThreshold = 100
	}
	if c.Engine.CompressionEnabled == nil {
		on := true
		c.Engine.CompressionEnabled = &on
	}
	if c.Engine.CaptureTimeoutMs <= 0 {
		c.Engine.CaptureTimeoutMs = 60_000
	}
	if c.Scheduler.CheckInterval <= 0 {
		c.Scheduler.CheckInterval = time.Minute
	}
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = 4
	}
	if c.Scheduler.RetentionSweep <= 0 {
		c.Scheduler.RetentionSweep = 24 * time.Hour
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8087"
	}
}
