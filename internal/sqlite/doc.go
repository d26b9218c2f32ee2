// Package sqlite opens and manages physical connections to a single
// SQLite database file.
//
// # Connection Model
//
// Each Conn wraps its own database/sql handle capped at one underlying
// connection. The pragma contract is therefore per-Conn and cannot leak
// between pool slots, and the cgo driver call always runs on a dedicated
// connection rather than whichever one database/sql picks.
//
// # Pragma Contract
//
// Every connection is opened with:
//
//   - busy_timeout: bounded lock waits instead of immediate SQLITE_BUSY
//   - journal_mode=WAL, synchronous=NORMAL (when WAL is enabled)
//   - foreign_keys=on
//   - txlock=immediate: write transactions lock at BEGIN
//   - temp_store=MEMORY, plus optional cache_size and mmap_size limits
//
// WAL mode produces -wal and -shm sibling files next to the database;
// backup tooling must copy or checkpoint them.
//
// # Migrations
//
// Migrator applies embedded .up.sql/.down.sql files in version order,
// one transaction per migration, recording progress in a
// schema_migrations table.
package sqlite
