package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Connection configuration constants.
const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// msPerSecond converts seconds to milliseconds for the busy_timeout pragma.
	msPerSecond = 1000

	// openVerifyTimeout is the timeout for verifying a freshly opened connection.
	openVerifyTimeout = 5 * time.Second
)

// Config contains the per-connection SQLite settings.
//
// Every physical connection opened by a Factory carries the same pragma
// contract; external tooling (backup scripts in particular) must tolerate
// the -wal/-shm sibling files WAL mode produces.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	Path string

	// WALMode enables Write-Ahead Logging for concurrent reads during writes.
	WALMode bool

	// BusyTimeout is the maximum time a connection waits for a database
	// lock before the driver reports "database is locked".
	BusyTimeout time.Duration

	// CacheSizeKB bounds the per-connection page cache (kibibytes).
	CacheSizeKB int

	// MmapSizeBytes bounds the memory-mapped I/O window.
	MmapSizeBytes int64
}

// Factory opens configured physical connections to a single database file.
// One Factory exists per database file; the pool owns it and calls Open
// whenever it grows.
type Factory struct {
	cfg Config
}

// NewFactory creates a connection factory for the given database file.
//
// It ensures the parent directory exists so the first Open can create the
// database file.
//
// Parameters:
//   - cfg: Connection configuration (path is required)
//
// Returns:
//   - *Factory: Factory ready to open connections
//   - error: If the config is invalid or the directory cannot be created
func NewFactory(cfg Config) (*Factory, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: path is required", ErrInvalidConfig)
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 30 * time.Second
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	return &Factory{cfg: cfg}, nil
}

// Path returns the filesystem path of the database file this factory serves.
func (f *Factory) Path() string {
	return f.cfg.Path
}

// Open establishes one physical connection with the full pragma contract.
//
// Connection-string pragmas (applied by the driver on connect):
//   - _busy_timeout: lock wait before "database is locked"
//   - _journal_mode=WAL and _synchronous=NORMAL (when WALMode)
//   - _foreign_keys=on
//   - _txlock=immediate: write transactions take the reserved lock at
//     BEGIN, avoiding deadlock-prone lock upgrades mid-transaction
//
// Statement pragmas (applied after connect, not expressible in the DSN):
//   - temp_store=MEMORY
//   - cache_size (negative value = kibibytes)
//   - mmap_size
//
// The returned Conn is backed by its own sql.DB limited to a single
// underlying connection, so the blocking driver call runs on a dedicated
// OS thread and pragma state can never leak between pool slots.
//
// Parameters:
//   - ctx: Context for the connection verification probe
//
// Returns:
//   - *Conn: Open, verified connection
//   - error: Wrapped ErrOpenFailed if the connection cannot be established
func (f *Factory) Open(ctx context.Context) (*Conn, error) {
	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
		f.cfg.Path,
		f.cfg.BusyTimeout.Milliseconds(),
	)
	if f.cfg.WALMode {
		connStr += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	// One physical connection per Conn. The pool layers its own lifecycle
	// management on top; database/sql must not second-guess it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	c := &Conn{
		id:        uuid.NewString(),
		db:        db,
		path:      f.cfg.Path,
		openedAt:  time.Now(),
		cacheKB:   f.cfg.CacheSizeKB,
		mmapBytes: f.cfg.MmapSizeBytes,
	}

	verifyCtx, cancel := context.WithTimeout(ctx, openVerifyTimeout)
	defer cancel()

	if err := c.applyStatementPragmas(verifyCtx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: applying pragmas: %w", ErrOpenFailed, err)
	}

	if err := c.Ping(verifyCtx); err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("%w: verification probe: %w", ErrOpenFailed, err)
	}

	// Owner read/write only. Ignore error - the file may not exist until
	// the first write on a brand-new database.
	_ = os.Chmod(f.cfg.Path, filePermissions) //nolint:errcheck // Intentional: first run creates file later

	return c, nil
}

// Conn is a single physical SQLite connection.
//
// A Conn is NOT safe for concurrent use by two callers at once; the pool
// guarantees single-owner access for the duration of an acquisition.
// Close is idempotent, and every method fails with ErrConnectionClosed
// after Close.
type Conn struct {
	id        string
	db        *sql.DB
	path      string
	openedAt  time.Time
	cacheKB   int
	mmapBytes int64
	closed    atomic.Bool
}

// ID returns the unique identifier assigned at open.
func (c *Conn) ID() string {
	return c.id
}

// Path returns the database file path this connection is bound to.
func (c *Conn) Path() string {
	return c.path
}

// OpenedAt returns when the physical connection was established.
func (c *Conn) OpenedAt() time.Time {
	return c.openedAt
}

// applyStatementPragmas applies the pragmas that the driver connection
// string cannot express.
func (c *Conn) applyStatementPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA temp_store = MEMORY",
	}
	if c.cacheKB > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA cache_size = -%d", c.cacheKB))
	}
	if c.mmapBytes > 0 {
		pragmas = append(pragmas, fmt.Sprintf("PRAGMA mmap_size = %d", c.mmapBytes))
	}

	for _, pragma := range pragmas {
		if _, err := c.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("executing %q: %w", pragma, err)
		}
	}
	return nil
}

// Execute runs a statement that doesn't return rows (INSERT, UPDATE, DELETE, DDL).
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - query: SQL with ? placeholders
//   - args: Arguments for placeholders
//
// Returns:
//   - sql.Result: LastInsertId and RowsAffected
//   - error: ErrConnectionClosed after Close, or the driver error
func (c *Conn) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	result, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	return result, nil
}

// Query runs a statement returning rows (SELECT). The caller must close
// the returned rows.
func (c *Conn) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if c.closed.Load() {
		return nil, ErrConnectionClosed
	}
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("executing query: %w", err)
	}
	return rows, nil
}

// QueryRow runs a statement expected to return at most one row.
func (c *Conn) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, query, args...)
}

// Transaction runs fn inside a transaction, committing on nil return and
// rolling back otherwise. Because the connection string sets
// _txlock=immediate, the write lock is taken at BEGIN.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - fn: Callback receiving the open transaction
//
// Returns:
//   - error: ErrConnectionClosed after Close, fn's error, or commit failure
func (c *Conn) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rolling back after %w: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// Ping verifies the connection with a trivial probe query.
// The pool uses this as the final validation step before reuse.
func (c *Conn) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return ErrConnectionClosed
	}
	var result int
	if err := c.db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("connection probe failed: %w", err)
	}
	return nil
}

// Close releases the physical connection. Idempotent: the second and
// subsequent calls return nil without touching the driver.
func (c *Conn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("closing connection: %w", err)
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	return c.closed.Load()
}
