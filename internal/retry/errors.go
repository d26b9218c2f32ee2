package retry

import "errors"

// ErrRetryExhausted indicates every attempt failed with a transient
// error. Check with errors.Is; the concrete *ExhaustedError carries the
// attempt count and last underlying error.
var ErrRetryExhausted = errors.New("retry: attempts exhausted")
