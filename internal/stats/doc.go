// Package stats periodically samples pool utilization, query metrics,
// and health scores, then fans the snapshot out to the configured
// sinks: the WebSocket hub for live dashboards, InfluxDB for long-term
// retention, MQTT for monitoring consumers, and optionally a history
// table in the managed database.
//
// All sinks are best-effort. Sampling never blocks the database access
// path; the persist sink goes through the optimizer's write admission
// like any other write.
package stats
