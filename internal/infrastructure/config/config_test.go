package config

import (
	"os"
	"path/filepath"
	"testing"
)

// writeConfigFile writes a temporary config file and returns its path.
func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

// TestLoad verifies configuration loading and layering.
func TestLoad(t *testing.T) {
	t.Run("applies defaults for missing values", func(t *testing.T) {
		path := writeConfigFile(t, `
database:
  path: /tmp/test.db
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Database.Path != "/tmp/test.db" {
			t.Errorf("Database.Path = %v, want /tmp/test.db", cfg.Database.Path)
		}
		if cfg.Database.BusyTimeout != 30 {
			t.Errorf("Database.BusyTimeout = %v, want default 30", cfg.Database.BusyTimeout)
		}
		if cfg.Pool.MaxConnections != 10 {
			t.Errorf("Pool.MaxConnections = %v, want default 10", cfg.Pool.MaxConnections)
		}
		if cfg.Optimizer.Cache.TTL != 300 {
			t.Errorf("Optimizer.Cache.TTL = %v, want default 300", cfg.Optimizer.Cache.TTL)
		}
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
database:
  path: /tmp/test.db
  busy_timeout: 10
pool:
  min_connections: 3
  max_connections: 20
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Database.BusyTimeout != 10 {
			t.Errorf("Database.BusyTimeout = %v, want 10", cfg.Database.BusyTimeout)
		}
		if cfg.Pool.MinConnections != 3 || cfg.Pool.MaxConnections != 20 {
			t.Errorf("Pool = %d/%d, want 3/20", cfg.Pool.MinConnections, cfg.Pool.MaxConnections)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("LITEKEEPER_DATABASE_PATH", "/tmp/env.db")
		t.Setenv("LITEKEEPER_POOL_MAX_CONNECTIONS", "15")

		path := writeConfigFile(t, `
database:
  path: /tmp/file.db
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Database.Path != "/tmp/env.db" {
			t.Errorf("Database.Path = %v, want /tmp/env.db", cfg.Database.Path)
		}
		if cfg.Pool.MaxConnections != 15 {
			t.Errorf("Pool.MaxConnections = %v, want 15", cfg.Pool.MaxConnections)
		}
	})

	t.Run("missing file returns error", func(t *testing.T) {
		if _, err := Load("/nonexistent/config.yaml"); err == nil {
			t.Error("Load() expected error for missing file")
		}
	})

	t.Run("invalid yaml returns error", func(t *testing.T) {
		path := writeConfigFile(t, "database: [not a map")
		if _, err := Load(path); err == nil {
			t.Error("Load() expected error for invalid YAML")
		}
	})
}

// TestValidate verifies configuration validation rules.
func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults are valid",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "empty database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "max below min connections",
			mutate:  func(c *Config) { c.Pool.MaxConnections = 1; c.Pool.MinConnections = 4 },
			wantErr: true,
		},
		{
			name: "scale thresholds inverted",
			mutate: func(c *Config) {
				c.Pool.ScaleUpThreshold = 0.3
				c.Pool.ScaleDownThreshold = 0.8
			},
			wantErr: true,
		},
		{
			name:    "unknown retry preset without custom",
			mutate:  func(c *Config) { c.Retry.Preset = "reckless" },
			wantErr: true,
		},
		{
			name: "custom strategy permits unknown preset",
			mutate: func(c *Config) {
				c.Retry.Preset = "reckless"
				c.Retry.Custom = &RetryStrategyConfig{
					MaxRetries:     4,
					BaseDelayMs:    100,
					MaxDelayMs:     1000,
					Multiplier:     2,
					JitterFraction: 0.1,
				}
			},
			wantErr: false,
		},
		{
			name:    "jitter out of range",
			mutate:  func(c *Config) { c.Retry.Custom = &RetryStrategyConfig{Multiplier: 2, JitterFraction: 1.5} },
			wantErr: true,
		},
		{
			name:    "zero concurrent reads",
			mutate:  func(c *Config) { c.Optimizer.MaxConcurrentReads = 0 },
			wantErr: true,
		},
		{
			name:    "invalid api port",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "mqtt qos out of range",
			mutate:  func(c *Config) { c.MQTT.Enabled = true; c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "influxdb enabled without url",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
