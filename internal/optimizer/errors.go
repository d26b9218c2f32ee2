package optimizer

import "errors"

// ErrNoStatements indicates ExecuteTransaction was called with an empty
// statement list.
var ErrNoStatements = errors.New("optimizer: transaction has no statements")
