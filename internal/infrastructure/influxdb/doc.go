// Package influxdb ships LiteKeeper metrics to an InfluxDB v2 bucket.
//
// Three measurement families are written:
//
//   - pool_stats: connection counts, utilization, lifetime counters
//   - query_metrics: per-query-shape latency and error aggregates
//   - health: component scores and statuses
//
// Writes go through the non-blocking batched WriteAPI so the database
// access path never waits on the time-series backend; async write
// failures are drained into the log. The package is optional and only
// constructed when influxdb.enabled is true in config.yaml.
package influxdb
