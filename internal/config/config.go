// Package config loads reelsync settings from config.yaml and REELSYNC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config holds all application configuration
type Config struct {
	Addon   AddonConfig   `mapstructure:"addon"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Sync    SyncConfig    `mapstructure:"sync"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// AddonConfig holds the remote addon connection settings
type AddonConfig struct {
	URL              string        `mapstructure:"url"`               // Addon base or manifest URL
	Timeout          time.Duration `mapstructure:"timeout"`           // Per-request timeout
	RateLimit        float64       `mapstructure:"rate_limit"`        // Requests per second, 0 = unlimited
	Burst            int           `mapstructure:"burst"`             // Token bucket size
	BreakerThreshold int           `mapstructure:"breaker_threshold"` // Consecutive failures before the breaker opens
	ManifestTTL      time.Duration `mapstructure:"manifest_ttl"`      // 0 = until forced
	MetaTTL          time.Duration `mapstructure:"meta_ttl"`
}

// CatalogConfig holds catalog store settings
type CatalogConfig struct {
	Dir  string `mapstructure:"dir"`  // Store directory, empty keeps the catalog in memory
	Root string `mapstructure:"root"` // Virtual library root for placeholder paths
}

// SyncConfig holds reconciliation settings
type SyncConfig struct {
	Parallelism      int           `mapstructure:"parallelism"`       // Titles processed at once by bulk imports
	Freshness        time.Duration `mapstructure:"freshness"`         // How long a synced title is not re-fetched
	DisableSwarm     bool          `mapstructure:"disable_swarm"`     // Reject info-hash sources
	SwarmGatewayURL  string        `mapstructure:"swarm_gateway_url"` // Gateway for info-hash sources, empty builds magnet URIs
	StrictReentrancy bool          `mapstructure:"strict_reentrancy"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"` // Empty logs to stderr
	Level string `mapstructure:"level"`
}

// MetricsConfig holds the optional Prometheus endpoint
type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // e.g. ":9090", empty disables
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Addon: AddonConfig{
			Timeout:          10 * time.Second,
			Burst:            1,
			BreakerThreshold: 5,
			MetaTTL:          30 * time.Minute,
		},
		Catalog: CatalogConfig{
			Dir:  defaultDataPath(),
			Root: "/stremio",
		},
		Sync: SyncConfig{
			Parallelism: 4,
			Freshness:   10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
	}
}

// defaultDataPath returns the default catalog directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "reelsync")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "reelsync")
	}
}

// defaultConfigPath returns the default config directory for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "reelsync")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "reelsync")
	}
}

// Load reads configuration from file and environment. An empty path searches
// the user config directory and the working directory for config.yaml.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(defaultConfigPath())
		v.AddConfigPath(".")
	}

	// Environment variable overrides, e.g. REELSYNC_ADDON_URL
	v.SetEnvPrefix("REELSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	cfg.Catalog.Dir = expandHome(cfg.Catalog.Dir)
	cfg.Logging.File = expandHome(cfg.Logging.File)
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply to keys absent from the file
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("addon.url", cfg.Addon.URL)
	v.SetDefault("addon.timeout", cfg.Addon.Timeout)
	v.SetDefault("addon.rate_limit", cfg.Addon.RateLimit)
	v.SetDefault("addon.burst", cfg.Addon.Burst)
	v.SetDefault("addon.breaker_threshold", cfg.Addon.BreakerThreshold)
	v.SetDefault("addon.manifest_ttl", cfg.Addon.ManifestTTL)
	v.SetDefault("addon.meta_ttl", cfg.Addon.MetaTTL)

	v.SetDefault("catalog.dir", cfg.Catalog.Dir)
	v.SetDefault("catalog.root", cfg.Catalog.Root)

	v.SetDefault("sync.parallelism", cfg.Sync.Parallelism)
	v.SetDefault("sync.freshness", cfg.Sync.Freshness)
	v.SetDefault("sync.disable_swarm", cfg.Sync.DisableSwarm)
	v.SetDefault("sync.swarm_gateway_url", cfg.Sync.SwarmGatewayURL)
	v.SetDefault("sync.strict_reentrancy", cfg.Sync.StrictReentrancy)

	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.level", cfg.Logging.Level)

	v.SetDefault("metrics.addr", cfg.Metrics.Addr)
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[1:])
}

// Validate reports the first setting that cannot work
func (c *Config) Validate() error {
	if c.Addon.URL == "" {
		return fmt.Errorf("%w: addon.url is required", ErrInvalid)
	}
	if err := checkURL(c.Addon.URL, "addon.url"); err != nil {
		return err
	}
	if c.Addon.Timeout <= 0 {
		return fmt.Errorf("%w: addon.timeout must be positive", ErrInvalid)
	}
	if c.Addon.RateLimit < 0 {
		return fmt.Errorf("%w: addon.rate_limit cannot be negative", ErrInvalid)
	}
	if c.Sync.Parallelism <= 0 {
		return fmt.Errorf("%w: sync.parallelism must be positive", ErrInvalid)
	}
	if c.Sync.SwarmGatewayURL != "" {
		if err := checkURL(c.Sync.SwarmGatewayURL, "sync.swarm_gateway_url"); err != nil {
			return err
		}
	}
	switch strings.ToUpper(c.Logging.Level) {
	case "", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		return fmt.Errorf("%w: unknown logging.level %q", ErrInvalid, c.Logging.Level)
	}
	return nil
}

// IsConfigured returns true if an addon is set
func (c *Config) IsConfigured() bool {
	return c.Addon.URL != ""
}

func checkURL(raw, key string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: %s %q is not a URL", ErrInvalid, key, raw)
	}
	switch u.Scheme {
	case "http", "https", "stremio":
		return nil
	}
	return fmt.Errorf("%w: %s has unsupported scheme %q", ErrInvalid, key, u.Scheme)
}
