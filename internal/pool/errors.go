package pool

import "errors"

// Sentinel errors for pool operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	handle, err := p.Acquire(ctx, 0)
//	if errors.Is(err, pool.ErrPoolTimeout) {
//	    // All connections busy; back off or shed load
//	}
var (
	// ErrPoolTimeout indicates no connection became available within the
	// acquire wait limit.
	ErrPoolTimeout = errors.New("pool: acquire timed out")

	// ErrPoolClosed indicates the pool has been closed.
	ErrPoolClosed = errors.New("pool: closed")

	// ErrNotInitialized indicates Acquire was called before Initialize.
	ErrNotInitialized = errors.New("pool: not initialized")

	// ErrInvalidConfig indicates the pool configuration is unusable.
	ErrInvalidConfig = errors.New("pool: invalid configuration")

	// ErrHandleReleased indicates a handle method was called after Release.
	ErrHandleReleased = errors.New("pool: handle already released")
)
