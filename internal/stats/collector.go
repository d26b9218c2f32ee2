package stats

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/litekeeper/internal/health"
	"github.com/nerrad567/litekeeper/internal/infrastructure/config"
	"github.com/nerrad567/litekeeper/internal/infrastructure/influxdb"
	"github.com/nerrad567/litekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/litekeeper/internal/infrastructure/mqtt"
	"github.com/nerrad567/litekeeper/internal/optimizer"
	"github.com/nerrad567/litekeeper/internal/pool"
)

// defaultSampleInterval is used when the configured interval is zero.
const defaultSampleInterval = 60 * time.Second

// statsChannel is the WebSocket broadcast channel for periodic snapshots.
const statsChannel = "stats"

// persistStatsSQL records one pool snapshot in the managed database.
const persistStatsSQL = `INSERT INTO connection_pool_stats
	(sampled_at, total, active, idle, waiting, utilization, total_acquired, total_created, total_evicted, total_timeouts)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// Broadcaster pushes a snapshot to live subscribers. The WebSocket hub
// satisfies this interface.
type Broadcaster interface {
	Broadcast(channel string, payload any)
}

// CacheStats summarises the query result cache.
type CacheStats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Size   int    `json:"size"`
}

// Snapshot is one periodic sample of everything worth watching.
type Snapshot struct {
	SampledAt time.Time                         `json:"sampled_at"`
	Pool      pool.PoolStats                    `json:"pool"`
	Queries   map[string]optimizer.QueryMetrics `json:"queries"`
	Cache     CacheStats                        `json:"cache"`
	Health    map[string]health.CheckResult     `json:"health"`
	Overall   health.Status                     `json:"overall"`
}

// Collector periodically samples pool, query, and health statistics and
// fans them out to the configured sinks.
//
// Sinks are all optional and best-effort: a WebSocket hub for live
// dashboards, InfluxDB for long-term retention, and the managed
// database itself for a local history table. A failing sink never
// blocks or aborts sampling.
//
// Thread Safety:
//   - Start and Stop are safe for concurrent use. Sampling runs on a
//     single background goroutine.
type Collector struct {
	cfg         config.StatsConfig
	pool        *pool.Pool
	opt         *optimizer.Optimizer
	checker     *health.Checker
	influx      *influxdb.Client
	events      *mqtt.Client
	broadcaster Broadcaster
	logger      *logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Deps holds the dependencies for a Collector.
type Deps struct {
	Config      config.StatsConfig
	Pool        *pool.Pool
	Optimizer   *optimizer.Optimizer
	Checker     *health.Checker
	Influx      *influxdb.Client // optional
	Events      *mqtt.Client     // optional
	Broadcaster Broadcaster      // optional
	Logger      *logging.Logger
}

// NewCollector creates a collector. It does not start sampling until
// Start is called.
func NewCollector(deps Deps) *Collector {
	return &Collector{
		cfg:         deps.Config,
		pool:        deps.Pool,
		opt:         deps.Optimizer,
		checker:     deps.Checker,
		influx:      deps.Influx,
		events:      deps.Events,
		broadcaster: deps.Broadcaster,
		logger:      deps.Logger.With("component", "stats"),
	}
}

// Start launches the background sampling loop. Calling Start on a
// running collector is a no-op.
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		return
	}

	interval := time.Duration(c.cfg.SampleInterval) * time.Second
	if interval <= 0 {
		interval = defaultSampleInterval
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	go c.loop(loopCtx, interval, c.done)

	c.logger.Info("stats collector started",
		"interval", interval,
		"persist", c.cfg.Persist,
		"influx", c.influx != nil,
	)
}

// Stop halts sampling and waits for the loop to exit. Idempotent.
func (c *Collector) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.cancel = nil
	c.done = nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// The done channel is passed in rather than read from the struct: Stop
// nils the field, so re-reading it here would race.
func (c *Collector) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sample(ctx)
		}
	}
}

// Sample takes one snapshot immediately and dispatches it to the sinks.
// Exposed so callers can force a sample outside the periodic schedule.
func (c *Collector) Sample(ctx context.Context) Snapshot {
	return c.sample(ctx)
}

func (c *Collector) sample(ctx context.Context) Snapshot {
	hits, misses, size := c.opt.CacheStats()

	snap := Snapshot{
		SampledAt: time.Now().UTC(),
		Pool:      c.pool.Stats(),
		Queries:   c.opt.Metrics(),
		Cache:     CacheStats{Hits: hits, Misses: misses, Size: size},
		Health:    c.checker.Latest(),
		Overall:   c.checker.OverallStatus(),
	}

	if c.broadcaster != nil {
		c.broadcaster.Broadcast(statsChannel, snap)
	}

	if c.influx != nil {
		c.influx.WritePoolStats(snap.Pool)
		for hash, m := range snap.Queries {
			c.influx.WriteQueryMetric(hash, m)
		}
		for _, result := range snap.Health {
			c.influx.WriteHealthScore(result)
		}
	}

	if c.events != nil {
		if err := c.events.PublishJSON(mqtt.Topics{}.Stats(), snap); err != nil {
			c.logger.Warn("failed to publish stats snapshot", "error", err)
		}
	}

	if c.cfg.Persist {
		c.persist(ctx, snap)
	}

	c.logger.Debug("stats sampled",
		"pool_active", snap.Pool.Active,
		"pool_utilization", snap.Pool.Utilization,
		"queries", len(snap.Queries),
		"overall", string(snap.Overall),
	)

	return snap
}

// persist writes the pool snapshot into the managed database through
// the normal write path, so it competes fairly with application writes.
func (c *Collector) persist(ctx context.Context, snap Snapshot) {
	params := []any{
		snap.SampledAt.Format(time.RFC3339),
		snap.Pool.Total,
		snap.Pool.Active,
		snap.Pool.Idle,
		snap.Pool.Waiting,
		snap.Pool.Utilization,
		int64(snap.Pool.TotalAcquired), //nolint:gosec // Counter fits int64
		int64(snap.Pool.TotalCreated),  //nolint:gosec // Counter fits int64
		int64(snap.Pool.TotalEvicted),  //nolint:gosec // Counter fits int64
		int64(snap.Pool.TotalTimeouts), //nolint:gosec // Counter fits int64
	}

	if _, err := c.opt.Execute(ctx, persistStatsSQL, params, optimizer.Options{Priority: optimizer.PriorityLow}); err != nil {
		c.logger.Warn("failed to persist pool stats", "error", err)
	}
}
