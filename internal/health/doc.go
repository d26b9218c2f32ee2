// Package health scores pool and database health and closes the loop
// with cooldown-guarded recovery actions.
//
// # Scoring
//
// Each component starts at 1.0 and loses points for observed problems:
// failed connectivity probes, connection counts over the soft limit,
// slow probes, failed integrity checks, non-WAL journal mode, and
// freelist fragmentation. The clamped score maps onto a status:
// healthy (>= 0.9), warning (>= 0.7), degraded (>= 0.4), otherwise
// critical. A component that cannot be observed at all is unknown.
//
// # Recovery
//
// Degraded and critical statuses trigger actions of increasing cost:
// drain idle connections or reconnect the pool, checkpoint the WAL or
// vacuum the database. Every action has a cooldown; attempts inside
// the window record a no-op failure instead of running, and every
// attempt restamps the clock so a flapping component cannot spin the
// same action.
//
// Monitor ties checker and executor into a periodic loop started with
// StartAutoRecovery and halted with Stop.
package health
