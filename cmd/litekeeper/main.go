// LiteKeeper - embedded SQLite access layer
//
// This is the main entry point for the LiteKeeper service. LiteKeeper
// wraps a single SQLite database file with a validated connection
// pool, lock-aware retry, query routing with caching, and closed-loop
// health recovery, and exposes an admin API plus optional MQTT and
// InfluxDB telemetry.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nerrad567/litekeeper/internal/api"
	"github.com/nerrad567/litekeeper/internal/health"
	"github.com/nerrad567/litekeeper/internal/infrastructure/config"
	"github.com/nerrad567/litekeeper/internal/infrastructure/influxdb"
	"github.com/nerrad567/litekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/litekeeper/internal/infrastructure/mqtt"
	"github.com/nerrad567/litekeeper/internal/optimizer"
	"github.com/nerrad567/litekeeper/internal/pool"
	"github.com/nerrad567/litekeeper/internal/retry"
	"github.com/nerrad567/litekeeper/internal/sqlite"
	"github.com/nerrad567/litekeeper/internal/stats"
	"github.com/nerrad567/litekeeper/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error { //nolint:gocognit,cyclop // Linear startup sequence
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting LiteKeeper",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connection factory for the managed database file
	factory, err := sqlite.NewFactory(sqlite.Config{
		Path:          cfg.Database.Path,
		WALMode:       cfg.Database.WALMode,
		BusyTimeout:   cfg.GetBusyTimeout(),
		CacheSizeKB:   cfg.Database.CacheSizeKB,
		MmapSizeBytes: cfg.Database.MmapSizeBytes,
	})
	if err != nil {
		return fmt.Errorf("creating connection factory: %w", err)
	}

	// Run migrations on a dedicated connection before the pool opens
	if err := runMigrations(ctx, factory); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")

	// Connection pool
	registry := pool.NewRegistry()
	p, err := registry.GetOrCreate(cfg.Database.Path, func() (*pool.Pool, error) {
		return pool.New(factory, cfg.Pool, log)
	})
	if err != nil {
		return fmt.Errorf("creating pool: %w", err)
	}
	if err := p.Initialize(ctx); err != nil {
		return fmt.Errorf("initialising pool: %w", err)
	}
	defer func() {
		log.Info("closing connection pools")
		if closeErr := registry.CloseAll(); closeErr != nil {
			log.Error("error closing pools", "error", closeErr)
		}
	}()
	log.Info("connection pool initialised",
		"path", cfg.Database.Path,
		"min", cfg.Pool.MinConnections,
		"max", cfg.Pool.MaxConnections,
	)

	// Query optimizer
	opt := optimizer.New(p, cfg.Optimizer, retry.FromConfig(cfg.Retry), log)

	// Connect to MQTT broker (optional)
	var mqttClient *mqtt.Client
	var publisher health.EventPublisher
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, log)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
		publisher = mqtt.NewEventPublisher(mqttClient, log)
	} else {
		log.Info("MQTT disabled")
	}

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, log)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Health checking and recovery
	checker := health.NewChecker(p, cfg.Health, log)
	executor := health.NewExecutor(p, cfg.Health.Cooldowns, log, publisher)
	monitor := health.NewMonitor(checker, executor, cfg.Health, log, publisher)
	monitor.StartAutoRecovery(ctx)
	defer func() {
		log.Info("stopping health monitor")
		monitor.Stop()
	}()
	log.Info("health monitor started",
		"interval", cfg.Health.CheckInterval,
		"auto_recovery", cfg.Health.AutoRecovery,
	)

	// Admin API server
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		WS:       cfg.WebSocket,
		Logger:   log,
		Pool:     p,
		Opt:      opt,
		Checker:  checker,
		Executor: executor,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		log.Info("stopping API server")
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	// Stats collector (optional)
	if cfg.Stats.Enabled {
		collector := stats.NewCollector(stats.Deps{
			Config:      cfg.Stats,
			Pool:        p,
			Optimizer:   opt,
			Checker:     checker,
			Influx:      influxClient,
			Events:      mqttClient,
			Broadcaster: server.Hub(),
			Logger:      log,
		})
		collector.Start(ctx)
		defer func() {
			log.Info("stopping stats collector")
			collector.Stop()
		}()
	} else {
		log.Info("stats collector disabled")
	}

	// Verify everything came up healthy
	if err := healthCheck(ctx, checker, mqttClient, influxClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls will run in reverse order:
	// 1. Stats collector (if enabled)
	// 2. API server
	// 3. Health monitor
	// 4. InfluxDB (if enabled)
	// 5. MQTT (if enabled)
	// 6. Connection pools

	log.Info("LiteKeeper stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses LITEKEEPER_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("LITEKEEPER_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// runMigrations applies embedded migrations on a dedicated connection.
func runMigrations(ctx context.Context, factory *sqlite.Factory) error {
	conn, err := factory.Open(ctx)
	if err != nil {
		return fmt.Errorf("opening migration connection: %w", err)
	}
	defer conn.Close() //nolint:errcheck // Dedicated migration connection

	return migrations.Migrator().Migrate(ctx, conn)
}

// healthCheck verifies the database and optional sinks are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - checker: Health checker over the pool and database
//   - mqttClient: MQTT client to check (may be nil if disabled)
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, checker *health.Checker, mqttClient *mqtt.Client, influxClient *influxdb.Client) error {
	checker.RunChecks(ctx)
	if status := checker.OverallStatus(); status == health.StatusCritical || status == health.StatusUnknown {
		return fmt.Errorf("database reported %s at startup", status)
	}

	if mqttClient != nil {
		if err := mqttClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("mqtt: %w", err)
		}
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	return nil
}
