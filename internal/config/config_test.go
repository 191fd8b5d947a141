package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
addon:
  url: https://addon.example/manifest.json
  timeout: 3s
  rate_limit: 2.5
catalog:
  dir: ""
sync:
  parallelism: 8
  swarm_gateway_url: http://localhost:8090
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Addon.URL != "https://addon.example/manifest.json" || cfg.Addon.Timeout != 3*time.Second || cfg.Addon.RateLimit != 2.5 {
		t.Errorf("addon = %+v", cfg.Addon)
	}
	if cfg.Catalog.Dir != "" {
		t.Errorf("catalog.dir = %q, want memory mode", cfg.Catalog.Dir)
	}
	if cfg.Sync.Parallelism != 8 || cfg.Sync.SwarmGatewayURL != "http://localhost:8090" {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	// Untouched keys keep their defaults
	if cfg.Addon.MetaTTL != 30*time.Minute || cfg.Sync.Freshness != 10*time.Minute || cfg.Catalog.Root != "/stremio" {
		t.Errorf("defaults lost: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, "addon:\n  url: https://file.example\n")
	t.Setenv("REELSYNC_ADDON_URL", "https://env.example")
	t.Setenv("REELSYNC_SYNC_PARALLELISM", "2")
	t.Setenv("REELSYNC_SYNC_DISABLE_SWARM", "true")
	t.Setenv("REELSYNC_METRICS_ADDR", ":9090")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addon.URL != "https://env.example" || cfg.Sync.Parallelism != 2 || !cfg.Sync.DisableSwarm || cfg.Metrics.Addr != ":9090" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"valid", func(c *Config) {}, true},
		{"stremio scheme", func(c *Config) { c.Addon.URL = "stremio://addon.example/manifest.json" }, true},
		{"no addon", func(c *Config) { c.Addon.URL = "" }, false},
		{"bad addon scheme", func(c *Config) { c.Addon.URL = "ftp://addon.example" }, false},
		{"zero timeout", func(c *Config) { c.Addon.Timeout = 0 }, false},
		{"zero parallelism", func(c *Config) { c.Sync.Parallelism = 0 }, false},
		{"bad gateway", func(c *Config) { c.Sync.SwarmGatewayURL = "localhost" }, false},
		{"bad level", func(c *Config) { c.Logging.Level = "LOUD" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Addon.URL = "https://addon.example"
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalid) {
				t.Errorf("error = %v, want ErrInvalid", err)
			}
		})
	}
}
