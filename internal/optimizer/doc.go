// Package optimizer routes SQL statements through classification,
// admission control, retry, caching, and metrics.
//
// # Classification
//
// Statements are bucketed by leading keyword: SELECT without embedded
// write keywords is a read; INSERT/UPDATE/DELETE/REPLACE are writes;
// CREATE/ALTER/DROP are DDL; BEGIN/COMMIT/ROLLBACK are transaction
// control; anything ambiguous is mixed and treated as a write.
//
// # Admission
//
// Reads share a bounded permit pool so many can run concurrently
// against WAL snapshots. Writes, DDL, mixed statements, and explicit
// transactions serialize behind a global write mutex and a write
// permit, matching SQLite's single-writer model instead of fighting it.
//
// # Caching
//
// Read results can be cached per call. Entries live for a fixed TTL in
// a bounded map evicted oldest-insertion-first. Writes never invalidate
// the cache; staleness is bounded by the TTL alone, which keeps the
// write path free of cache bookkeeping.
//
// # Retry
//
// Transient lock errors are retried with exponential backoff through
// the retry package; each attempt acquires a fresh pool connection so
// backoff sleeps never pin a pool slot.
package optimizer
