// Package retry runs operations under an exponential backoff schedule,
// retrying only errors its classifier considers transient.
//
// SQLite reports contention as "database is locked" / SQLITE_BUSY
// conditions that usually clear within milliseconds. IsTransient
// recognises those (typed driver codes first, message phrases as a
// fallback); everything else is fatal and returned unchanged on the
// first attempt.
//
// Three presets cover the common cases:
//
//   - Aggressive: 10 retries from 50ms, x1.5 growth
//   - Balanced: 5 retries from 100ms, x2 growth
//   - Conservative: 3 retries from 500ms, x3 growth
//
// Each delay is perturbed by a uniform jitter fraction so concurrent
// retriers spread out instead of hammering the lock in lockstep.
package retry
