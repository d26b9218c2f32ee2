// Package pool manages a bounded, self-maintaining set of SQLite
// connections for one database file.
//
// # Lifecycle
//
// Acquire hands out a single-owner Handle; Release returns it. A
// connection record is always in exactly one of the idle or active
// sets, and active+idle never exceeds the configured maximum. Before
// reuse a connection passes a validation chain: consecutive error
// count, maximum lifetime, maximum idle time, then a live SELECT 1
// probe. Failures evict and close the connection silently; callers
// never see a validation error, only a fresh connection or a timeout.
//
// # Dynamic Sizing
//
// A maintenance loop sweeps idle connections and, when dynamic scaling
// is enabled, compares utilization (active/total) against the scale-up
// and scale-down thresholds: above scale-up it opens one connection,
// below scale-down it closes one idle connection, never crossing the
// configured min/max bounds.
//
// # Registry
//
// Registry keys pools by absolute database path so every caller
// touching the same file shares one pool. It is an explicit value the
// application constructs and passes around; there is no package-level
// singleton.
package pool
