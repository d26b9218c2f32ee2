package pool

import (
	"time"

	"github.com/nerrad567/litekeeper/internal/sqlite"
)

// State describes where a connection record sits in its lifecycle.
type State int

// Connection record states.
const (
	// StateIdle means the connection is in the idle set, ready to hand out.
	StateIdle State = iota

	// StateActive means the connection is held by a caller.
	StateActive

	// StateStale means the connection must be closed on release instead
	// of returning to the idle set (set by ReconnectAll).
	StateStale

	// StateError means the connection failed validation and is being
	// evicted.
	StateError
)

// String returns the state name for logs and stats.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateStale:
		return "stale"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// record wraps a physical connection with pool bookkeeping.
// All fields are guarded by the pool mutex except where a record is
// Active, in which case the holding Handle owns usage/error counters.
type record struct {
	conn *sqlite.Conn

	createdAt  time.Time
	lastUsedAt time.Time

	usageCount        uint64
	consecutiveErrors int

	state State
}

// id returns the underlying connection id.
func (r *record) id() string {
	return r.conn.ID()
}

// age returns how long ago the physical connection was opened.
func (r *record) age(now time.Time) time.Duration {
	return now.Sub(r.createdAt)
}

// idleFor returns how long the record has been unused.
func (r *record) idleFor(now time.Time) time.Duration {
	return now.Sub(r.lastUsedAt)
}
