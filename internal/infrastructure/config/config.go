package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for LiteKeeper.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Pool      PoolConfig      `yaml:"pool"`
	Retry     RetryConfig     `yaml:"retry"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Health    HealthConfig    `yaml:"health"`
	Stats     StatsConfig     `yaml:"stats"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
//
// These map directly onto the pragma contract applied to every physical
// connection: WAL journaling, busy timeout, NORMAL synchronous mode,
// foreign keys on, in-memory temp store, bounded page cache and mmap.
type DatabaseConfig struct {
	// Path is the filesystem path to the SQLite database file.
	// The directory will be created if it doesn't exist.
	Path string `yaml:"path"`

	// WALMode enables Write-Ahead Logging for concurrent reads during writes.
	// Recommended: true. WAL produces extra -wal/-shm sibling files.
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is the maximum time a connection waits for a database
	// lock before failing (seconds).
	BusyTimeout int `yaml:"busy_timeout"`

	// CacheSizeKB is the per-connection page cache size in kibibytes.
	CacheSizeKB int `yaml:"cache_size_kb"`

	// MmapSizeBytes is the memory-mapped I/O window size in bytes.
	MmapSizeBytes int64 `yaml:"mmap_size_bytes"`
}

// PoolConfig contains connection pool sizing and validation settings.
// The pool treats this as immutable after construction; changing limits
// at runtime requires an explicit Reconfigure call on the pool.
type PoolConfig struct {
	// MinConnections is the number of connections opened at Initialize
	// and the floor for scale-down.
	MinConnections int `yaml:"min_connections"`

	// MaxConnections is the hard ceiling on total connections.
	MaxConnections int `yaml:"max_connections"`

	// ConnectionTimeout is the default Acquire wait limit (seconds).
	ConnectionTimeout int `yaml:"connection_timeout"`

	// MaxIdleTime is how long a connection may sit idle before it is
	// evicted during validation (seconds).
	MaxIdleTime int `yaml:"max_idle_time"`

	// MaxLifetime is the maximum age of a connection before replacement
	// (seconds).
	MaxLifetime int `yaml:"max_lifetime"`

	// MaxConnectionErrors is the consecutive error count after which a
	// connection is evicted rather than reused.
	MaxConnectionErrors int `yaml:"max_connection_errors"`

	// DynamicScaling enables utilization-driven grow/shrink on the
	// maintenance tick.
	DynamicScaling bool `yaml:"dynamic_scaling"`

	// ScaleUpThreshold is the utilization (active/total) above which the
	// pool grows by one connection. Must be greater than ScaleDownThreshold.
	ScaleUpThreshold float64 `yaml:"scale_up_threshold"`

	// ScaleDownThreshold is the utilization below which one idle
	// connection is closed (never below MinConnections).
	ScaleDownThreshold float64 `yaml:"scale_down_threshold"`

	// MaintenanceInterval is how often the validation/scaling sweep runs
	// (seconds).
	MaintenanceInterval int `yaml:"maintenance_interval"`
}

// RetryConfig selects the retry strategy for transient lock errors.
type RetryConfig struct {
	// Preset selects a named strategy: "aggressive", "balanced", or
	// "conservative". Ignored when Custom is set.
	Preset string `yaml:"preset"`

	// Custom, when non-nil, fully describes the strategy.
	Custom *RetryStrategyConfig `yaml:"custom,omitempty"`
}

// RetryStrategyConfig describes an explicit backoff strategy.
type RetryStrategyConfig struct {
	MaxRetries     int     `yaml:"max_retries"`
	BaseDelayMs    int     `yaml:"base_delay_ms"`
	MaxDelayMs     int     `yaml:"max_delay_ms"`
	Multiplier     float64 `yaml:"multiplier"`
	JitterFraction float64 `yaml:"jitter_fraction"`
}

// OptimizerConfig contains query routing and caching settings.
type OptimizerConfig struct {
	// MaxConcurrentReads bounds how many read queries run at once.
	MaxConcurrentReads int `yaml:"max_concurrent_reads"`

	// MaxConcurrentWrites bounds write permits. Writes are additionally
	// serialized by a global mutex; values above 1 only widen the queue.
	MaxConcurrentWrites int `yaml:"max_concurrent_writes"`

	// Cache controls the read-result cache.
	Cache QueryCacheConfig `yaml:"cache"`
}

// QueryCacheConfig controls the read-result cache.
type QueryCacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// TTL is how long a cached result stays valid (seconds).
	TTL int `yaml:"ttl"`

	// MaxEntries caps the cache; oldest insertions are evicted first.
	MaxEntries int `yaml:"max_entries"`
}

// HealthConfig contains health checking and auto-recovery settings.
type HealthConfig struct {
	// CheckInterval is how often health checks run (seconds).
	CheckInterval int `yaml:"check_interval"`

	// AutoRecovery enables the closed-loop recovery executor.
	AutoRecovery bool `yaml:"auto_recovery"`

	// HistorySize bounds the retained check results per component.
	HistorySize int `yaml:"history_size"`

	// SoftConnectionLimit is the connection count above which the pool
	// score is penalized (0 uses the pool's MaxConnections).
	SoftConnectionLimit int `yaml:"soft_connection_limit"`

	// Cooldowns are the per-action minimum intervals between recovery
	// attempts (seconds).
	Cooldowns RecoveryCooldownConfig `yaml:"cooldowns"`
}

// RecoveryCooldownConfig holds per-action recovery cooldowns in seconds.
type RecoveryCooldownConfig struct {
	Reconnect  int `yaml:"reconnect"`
	DrainIdle  int `yaml:"drain_idle"`
	Checkpoint int `yaml:"checkpoint"`
	Vacuum     int `yaml:"vacuum"`
}

// StatsConfig controls the periodic statistics collector.
type StatsConfig struct {
	Enabled bool `yaml:"enabled"`

	// SampleInterval is how often pool/query/health stats are sampled
	// (seconds).
	SampleInterval int `yaml:"sample_interval"`

	// Persist writes connection_pool_stats rows into the managed
	// database itself (optional historical sink).
	Persist bool `yaml:"persist"`
}

// APIConfig contains the admin HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains the live stats stream settings.
type WebSocketConfig struct {
	Path string `yaml:"path"`

	// PushInterval is how often stats are pushed to clients (seconds).
	PushInterval int `yaml:"push_interval"`

	// PingInterval / PongTimeout control keepalive (seconds).
	PingInterval int `yaml:"ping_interval"`
	PongTimeout  int `yaml:"pong_timeout"`
}

// MQTTConfig contains MQTT event publishing settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains the optional metrics sink settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: LITEKEEPER_SECTION_KEY
// For example: LITEKEEPER_DATABASE_PATH, LITEKEEPER_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in defaults without reading any file.
// Useful when embedding LiteKeeper as a library with programmatic config.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:          "./data/litekeeper.db",
			WALMode:       true,
			BusyTimeout:   30,
			CacheSizeKB:   64000,
			MmapSizeBytes: 256 * 1024 * 1024,
		},
		Pool: PoolConfig{
			MinConnections:      2,
			MaxConnections:      10,
			ConnectionTimeout:   30,
			MaxIdleTime:         300,
			MaxLifetime:         3600,
			MaxConnectionErrors: 3,
			DynamicScaling:      true,
			ScaleUpThreshold:    0.8,
			ScaleDownThreshold:  0.3,
			MaintenanceInterval: 30,
		},
		Retry: RetryConfig{
			Preset: "aggressive",
		},
		Optimizer: OptimizerConfig{
			MaxConcurrentReads:  8,
			MaxConcurrentWrites: 1,
			Cache: QueryCacheConfig{
				Enabled:    true,
				TTL:        300,
				MaxEntries: 1000,
			},
		},
		Health: HealthConfig{
			CheckInterval: 30,
			AutoRecovery:  true,
			HistorySize:   100,
			Cooldowns: RecoveryCooldownConfig{
				Reconnect:  120,
				DrainIdle:  300,
				Checkpoint: 900,
				Vacuum:     3600,
			},
		},
		Stats: StatsConfig{
			Enabled:        true,
			SampleInterval: 60,
			Persist:        false,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8620,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:         "/ws",
			PushInterval: 5,
			PingInterval: 30,
			PongTimeout:  10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "litekeeper",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: LITEKEEPER_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("LITEKEEPER_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Pool
	if v := os.Getenv("LITEKEEPER_POOL_MAX_CONNECTIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Pool.MaxConnections = n
		}
	}

	// API
	if v := os.Getenv("LITEKEEPER_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("LITEKEEPER_API_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = n
		}
	}

	// MQTT
	if v := os.Getenv("LITEKEEPER_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("LITEKEEPER_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("LITEKEEPER_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("LITEKEEPER_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}

	// Pool validation
	if c.Pool.MinConnections < 1 {
		errs = append(errs, "pool.min_connections must be at least 1")
	}
	if c.Pool.MaxConnections < c.Pool.MinConnections {
		errs = append(errs, "pool.max_connections must be >= pool.min_connections")
	}
	if c.Pool.ScaleDownThreshold >= c.Pool.ScaleUpThreshold {
		errs = append(errs, "pool.scale_down_threshold must be below pool.scale_up_threshold")
	}

	// Retry validation
	switch strings.ToLower(c.Retry.Preset) {
	case "", "aggressive", "balanced", "conservative":
	default:
		if c.Retry.Custom == nil {
			errs = append(errs, "retry.preset must be aggressive, balanced, or conservative")
		}
	}
	if c.Retry.Custom != nil {
		if c.Retry.Custom.MaxRetries < 0 {
			errs = append(errs, "retry.custom.max_retries must not be negative")
		}
		if c.Retry.Custom.Multiplier < 1 {
			errs = append(errs, "retry.custom.multiplier must be at least 1")
		}
		if c.Retry.Custom.JitterFraction < 0 || c.Retry.Custom.JitterFraction > 1 {
			errs = append(errs, "retry.custom.jitter_fraction must be within [0,1]")
		}
	}

	// Optimizer validation
	if c.Optimizer.MaxConcurrentReads < 1 {
		errs = append(errs, "optimizer.max_concurrent_reads must be at least 1")
	}
	if c.Optimizer.MaxConcurrentWrites < 1 {
		errs = append(errs, "optimizer.max_concurrent_writes must be at least 1")
	}

	// MQTT validation
	if c.MQTT.Enabled && (c.MQTT.QoS < 0 || c.MQTT.QoS > 2) {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb.enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetBusyTimeout returns the database busy timeout as a Duration.
func (c *Config) GetBusyTimeout() time.Duration {
	return time.Duration(c.Database.BusyTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
