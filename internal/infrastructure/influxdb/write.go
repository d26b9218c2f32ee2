package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/litekeeper/internal/health"
	"github.com/nerrad567/litekeeper/internal/optimizer"
	"github.com/nerrad567/litekeeper/internal/pool"
)

// WritePoolStats records a pool utilization snapshot.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - stats: Snapshot from Pool.Stats
func (c *Client) WritePoolStats(stats pool.PoolStats) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pool_stats",
		map[string]string{
			"database": stats.Path,
		},
		map[string]interface{}{
			"total":          stats.Total,
			"active":         stats.Active,
			"idle":           stats.Idle,
			"waiting":        stats.Waiting,
			"utilization":    stats.Utilization,
			"total_acquired": int64(stats.TotalAcquired), //nolint:gosec // Counter fits int64
			"total_created":  int64(stats.TotalCreated),  //nolint:gosec // Counter fits int64
			"total_evicted":  int64(stats.TotalEvicted),  //nolint:gosec // Counter fits int64
			"total_timeouts": int64(stats.TotalTimeouts), //nolint:gosec // Counter fits int64
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteQueryMetric records latency aggregates for one query shape.
//
// Parameters:
//   - hash: Stable query hash (low cardinality tag)
//   - m: Aggregates from Optimizer.Metrics
func (c *Client) WriteQueryMetric(hash string, m optimizer.QueryMetrics) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"query_metrics",
		map[string]string{
			"query_hash": hash,
			"query_type": m.Type,
		},
		map[string]interface{}{
			"count":           int64(m.Count),  //nolint:gosec // Counter fits int64
			"errors":          int64(m.Errors), //nolint:gosec // Counter fits int64
			"lock_waits":      int64(m.LockWaits), //nolint:gosec // Counter fits int64
			"avg_duration_ms": float64(m.AvgDuration.Microseconds()) / 1000.0,
			"max_duration_ms": float64(m.MaxDuration.Microseconds()) / 1000.0,
			"min_duration_ms": float64(m.MinDuration.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteHealthScore records one component health check result.
//
// Parameters:
//   - result: Check result from the health checker
func (c *Client) WriteHealthScore(result health.CheckResult) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"health",
		map[string]string{
			"component": result.Component,
			"status":    string(result.Status),
		},
		map[string]interface{}{
			"score": result.Score,
		},
		result.CheckedAt,
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use for measurements the helpers don't cover.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}
