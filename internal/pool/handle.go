package pool

import (
	"context"
	"database/sql"
	"sync/atomic"
	"time"
)

// Handle is an exclusive lease on one pooled connection.
//
// The holder must call Release exactly once when finished, typically
// with defer. After Release every method returns ErrHandleReleased.
// A Handle is single-owner and must not be shared between goroutines.
type Handle struct {
	pool     *Pool
	rec      *record
	released atomic.Bool
	failed   atomic.Bool
}

// newHandle wraps an acquired record.
func (p *Pool) newHandle(rec *record) *Handle {
	return &Handle{pool: p, rec: rec}
}

// ID returns the underlying connection id.
func (h *Handle) ID() string {
	return h.rec.id()
}

// OpenedAt returns when the underlying connection was established.
func (h *Handle) OpenedAt() time.Time {
	return h.rec.conn.OpenedAt()
}

// Execute runs a statement that doesn't return rows.
// Errors count against the connection's consecutive error tally, which
// feeds the eviction decision at release time.
func (h *Handle) Execute(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if h.released.Load() {
		return nil, ErrHandleReleased
	}
	result, err := h.rec.conn.Execute(ctx, query, args...)
	h.noteOutcome(err)
	return result, err
}

// Query runs a statement returning rows. The caller must close the
// returned rows before releasing the handle.
func (h *Handle) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if h.released.Load() {
		return nil, ErrHandleReleased
	}
	rows, err := h.rec.conn.Query(ctx, query, args...)
	h.noteOutcome(err)
	return rows, err
}

// QueryRow runs a statement expected to return at most one row.
// The released check and error tally happen here; Scan surfaces the
// query error to the caller.
func (h *Handle) QueryRow(ctx context.Context, query string, args ...any) *Row {
	if h.released.Load() {
		return &Row{err: ErrHandleReleased}
	}
	rows, err := h.rec.conn.Query(ctx, query, args...)
	h.noteOutcome(err)
	return &Row{rows: rows, err: err}
}

// Row is a deferred single-row result, scanned like sql.Row.
type Row struct {
	rows *sql.Rows
	err  error
}

// Scan copies the first row's columns into dest and closes the result.
// Returns the query error, sql.ErrNoRows when no row matched, or the
// scan error.
func (r *Row) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	defer r.rows.Close() //nolint:errcheck // Scan error takes precedence

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return err
		}
		return sql.ErrNoRows
	}
	return r.rows.Scan(dest...)
}

// Transaction runs fn inside a BEGIN IMMEDIATE transaction.
func (h *Handle) Transaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if h.released.Load() {
		return ErrHandleReleased
	}
	err := h.rec.conn.Transaction(ctx, fn)
	h.noteOutcome(err)
	return err
}

// noteOutcome tracks whether the most recent operation failed.
func (h *Handle) noteOutcome(err error) {
	if err != nil {
		h.failed.Store(true)
	} else {
		h.failed.Store(false)
	}
}

// Release returns the connection to the pool. Idempotent: only the
// first call has any effect.
func (h *Handle) Release() {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.pool.release(h.rec, h.failed.Load())
}
