// Package config loads the scraper configuration from a YAML file and
// applies defaults and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ljobx/ljobx/pkg/provider"
)

// Config is the full scraper configuration.
type Config struct {
	// Concurrency caps in-flight fetches.
	Concurrency int `yaml:"concurrency"`

	// Delay bounds the random pacing delay applied before each fetch.
	Delay DelayConfig `yaml:"delay"`

	// RequestTimeout is the per-attempt timeout for listing pages. Detail
	// pages use half of it, matching their smaller payloads.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// DetailAttempts caps attempts per job detail fetch.
	DetailAttempts int `yaml:"detail_attempts"`

	// BackoffCap is the route cooldown ceiling.
	BackoffCap time.Duration `yaml:"backoff_cap"`

	// ValidateProxies probes candidate proxies before use.
	ValidateProxies bool `yaml:"validate_proxies"`

	// ProxyFiles lists local proxy list files.
	ProxyFiles []provider.FileConfig `yaml:"proxy_files"`

	// Webshare configures the webshare.io provider. Empty APIKey disables it.
	Webshare provider.WebshareConfig `yaml:"webshare"`

	// Redis enables the page cache when Addr is set.
	Redis RedisConfig `yaml:"redis"`

	// CacheTTL is how long fetched detail pages stay cached.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Output controls where and how results are written.
	Output OutputConfig `yaml:"output"`

	// Log controls logging.
	Log LogConfig `yaml:"log"`
}

// DelayConfig bounds the pacing delay.
type DelayConfig struct {
	Min time.Duration `yaml:"min"`
	Max time.Duration `yaml:"max"`
}

// RedisConfig is the page cache backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// OutputConfig controls result files.
type OutputConfig struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the default configuration.
func Default() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return Config{
		Concurrency:     2,
		Delay:           DelayConfig{Min: 3 * time.Second, Max: 8 * time.Second},
		RequestTimeout:  10 * time.Second,
		DetailAttempts:  3,
		BackoffCap:      60 * time.Second,
		ValidateProxies: true,
		CacheTTL:        time.Hour,
		Output: OutputConfig{
			Dir:    filepath.Join(home, "ljobx"),
			Format: "json",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads a YAML config file, layering it over the defaults. An empty
// path returns the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistencies.
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Concurrency)
	}
	if c.Delay.Min < 0 || c.Delay.Max < 0 {
		return fmt.Errorf("delay bounds must be non-negative")
	}
	if c.Delay.Max < c.Delay.Min {
		return fmt.Errorf("delay max %v is below delay min %v", c.Delay.Max, c.Delay.Min)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout)
	}
	if c.DetailAttempts <= 0 {
		return fmt.Errorf("detail_attempts must be positive, got %d", c.DetailAttempts)
	}
	switch c.Output.Format {
	case "json", "csv":
	default:
		return fmt.Errorf("output format must be json or csv, got %q", c.Output.Format)
	}
	return nil
}

// Providers builds the configured proxy providers. The result is empty when
// neither proxy files nor a webshare API key are configured.
func (c Config) Providers() ([]provider.Provider, error) {
	var providers []provider.Provider
	if len(c.ProxyFiles) > 0 {
		providers = append(providers, provider.NewFileProvider(c.ProxyFiles))
	}
	if c.Webshare.APIKey != "" {
		ws, err := provider.NewWebshareProvider(c.Webshare)
		if err != nil {
			return nil, err
		}
		providers = append(providers, ws)
	}
	return providers, nil
}
