package sqlite

import "errors"

// Sentinel errors for connection lifecycle operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, sqlite.ErrConnectionClosed) {
//	    // Connection was closed; acquire a fresh one
//	}
var (
	// ErrConnectionClosed indicates a method was called on a closed connection.
	ErrConnectionClosed = errors.New("sqlite: connection closed")

	// ErrOpenFailed indicates the physical connection could not be established.
	ErrOpenFailed = errors.New("sqlite: open failed")

	// ErrInvalidConfig indicates the connection configuration is unusable.
	ErrInvalidConfig = errors.New("sqlite: invalid configuration")
)
