// Package config provides configuration loading for LiteKeeper.
//
// Configuration is loaded in three layers, each overriding the last:
//  1. Hardcoded defaults (defaultConfig)
//  2. YAML file values
//  3. Environment variables (LITEKEEPER_SECTION_KEY)
//
// The root Config covers every subsystem: the SQLite pragma contract,
// connection pool sizing, retry strategy selection, query optimizer
// admission/cache limits, health-check cadence and recovery cooldowns,
// the stats collector, the admin API, and the optional MQTT/InfluxDB
// sinks.
//
// Duration-style knobs are plain integer seconds in YAML (matching the
// rest of the deployment tooling); GetXxxTimeout helpers convert them
// to time.Duration where callers need one.
//
// Validate() is called by Load and rejects configurations that would
// violate pool invariants (for example a scale-down threshold at or
// above the scale-up threshold).
package config
