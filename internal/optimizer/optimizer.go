package optimizer

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/nerrad567/litekeeper/internal/infrastructure/config"
	"github.com/nerrad567/litekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/litekeeper/internal/pool"
	"github.com/nerrad567/litekeeper/internal/retry"
)

// Admission defaults applied when the configuration leaves them zero.
const (
	defaultMaxReads  = 8
	defaultMaxWrites = 1
)

// Priority tags a request for logs and metrics. It does not reorder the
// admission queues.
type Priority int

// Request priorities.
const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "normal"
	}
}

// Options tunes a single Execute call.
type Options struct {
	// Priority is recorded with the request in logs and metrics.
	Priority Priority

	// Timeout bounds the whole call including admission waits and
	// retries. Zero means no extra bound beyond the caller's ctx.
	Timeout time.Duration

	// EnableCache opts this read into the result cache. Ignored for
	// writes and when the cache is disabled globally.
	EnableCache bool
}

// Rows is a fully materialized query result. Materializing lets read
// results be cached and lets the connection return to the pool before
// the caller consumes the data.
type Rows struct {
	// Columns are the result column names, in order.
	Columns []string `json:"columns"`

	// Values holds one slice per row.
	Values [][]any `json:"values"`

	// RowsAffected and LastInsertID are set for write statements.
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}

// Statement is one step of an atomic transaction.
type Statement struct {
	SQL    string
	Params []any
}

// Result reports the outcome of one transaction statement.
type Result struct {
	RowsAffected int64 `json:"rows_affected"`
	LastInsertID int64 `json:"last_insert_id"`
}

// Optimizer routes queries through read/write admission control with
// retry, caching, and per-query metrics.
//
// Reads run concurrently up to a permit limit; writes, DDL, and
// anything unclassifiable are serialized behind a global write mutex
// plus a write permit. Transient lock errors are retried with the
// configured backoff strategy; everything else propagates unchanged.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Optimizer struct {
	pool     *pool.Pool
	logger   *logging.Logger
	strategy retry.Strategy

	readSem  *semaphore.Weighted
	writeSem *semaphore.Weighted
	writeMu  sync.Mutex

	cacheEnabled bool
	cache        *queryCache
	metrics      *metricsStore
}

// New creates an optimizer over the given pool.
//
// Parameters:
//   - p: Connection pool for the database
//   - cfg: Admission and cache settings
//   - strategy: Retry backoff for transient lock errors
//   - logger: Structured logger
//
// Returns:
//   - *Optimizer: Ready to execute queries
func New(p *pool.Pool, cfg config.OptimizerConfig, strategy retry.Strategy, logger *logging.Logger) *Optimizer {
	maxReads := cfg.MaxConcurrentReads
	if maxReads <= 0 {
		maxReads = defaultMaxReads
	}
	maxWrites := cfg.MaxConcurrentWrites
	if maxWrites <= 0 {
		maxWrites = defaultMaxWrites
	}

	o := &Optimizer{
		pool:         p,
		logger:       logger.With("component", "optimizer"),
		strategy:     strategy,
		readSem:      semaphore.NewWeighted(int64(maxReads)),
		writeSem:     semaphore.NewWeighted(int64(maxWrites)),
		cacheEnabled: cfg.Cache.Enabled,
		metrics:      newMetricsStore(),
	}

	ttl := time.Duration(cfg.Cache.TTL) * time.Second
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	o.cache = newQueryCache(ttl, cfg.Cache.MaxEntries)

	return o
}

// Execute classifies and runs one statement under admission control.
//
// Reads return materialized rows; writes return a Rows with
// RowsAffected/LastInsertID populated. Cacheable reads (cache enabled
// globally and per-call) are served from the cache within the TTL.
//
// Parameters:
//   - ctx: Context for cancellation
//   - query: SQL with ? placeholders
//   - params: Arguments for placeholders
//   - opts: Per-call priority, timeout, and cache opt-in
//
// Returns:
//   - *Rows: Materialized result
//   - error: Classification-independent pool/SQL errors; transient lock
//     errors surface as retry.ErrRetryExhausted once retries run out
func (o *Optimizer) Execute(ctx context.Context, query string, params []any, opts Options) (*Rows, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	qt := Classify(query)

	cacheable := qt == QueryRead && o.cacheEnabled && opts.EnableCache
	var key string
	if cacheable {
		key = cacheKey(query, params)
		if cached, ok := o.cache.get(key); ok {
			o.logger.Debug("cache hit", "query_hash", queryHash(key), "priority", opts.Priority.String())
			return cached, nil
		}
	}

	release, err := o.admit(ctx, qt)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	var (
		rows       *Rows
		lockWaited bool
	)
	err = retry.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		rows, opErr = o.runStatement(ctx, qt, query, params)
		return opErr
	}, func(err error) bool {
		if retry.IsTransient(err) {
			lockWaited = true
			return true
		}
		return false
	}, o.strategy)

	duration := time.Since(start)
	o.metrics.record(query, qt, duration, err != nil, lockWaited)

	if err != nil {
		o.logger.Debug("query failed",
			"type", qt.String(),
			"priority", opts.Priority.String(),
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	if cacheable {
		o.cache.put(key, rows)
	}
	return rows, nil
}

// admit takes the permits appropriate to the query type and returns
// the matching release function.
func (o *Optimizer) admit(ctx context.Context, qt QueryType) (func(), error) {
	if qt == QueryRead {
		if err := o.readSem.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("acquiring read permit: %w", err)
		}
		return func() { o.readSem.Release(1) }, nil
	}

	if err := o.writeSem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquiring write permit: %w", err)
	}
	o.writeMu.Lock()
	return func() {
		o.writeMu.Unlock()
		o.writeSem.Release(1)
	}, nil
}

// runStatement executes one attempt against a freshly acquired
// connection. The connection is released before returning so retries
// never pin a pool slot across backoff sleeps.
func (o *Optimizer) runStatement(ctx context.Context, qt QueryType, query string, params []any) (*Rows, error) {
	handle, err := o.pool.Acquire(ctx, 0)
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	if qt == QueryRead {
		raw, err := handle.Query(ctx, query, params...)
		if err != nil {
			return nil, err
		}
		return materialize(raw)
	}

	result, err := handle.Execute(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	return writeRows(result), nil
}

// materialize drains sql.Rows into an owned Rows value.
func materialize(raw *sql.Rows) (*Rows, error) {
	defer raw.Close() //nolint:errcheck // Fully drained below

	columns, err := raw.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	out := &Rows{Columns: columns}
	for raw.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := raw.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out.Values = append(out.Values, values)
	}
	if err := raw.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}
	return out, nil
}

// writeRows wraps a write result.
func writeRows(result sql.Result) *Rows {
	out := &Rows{}
	// Both are best-effort; some statements legitimately have neither.
	out.RowsAffected, _ = result.RowsAffected() //nolint:errcheck // Driver supports it
	out.LastInsertID, _ = result.LastInsertId() //nolint:errcheck // Driver supports it
	return out
}

// ExecuteTransaction runs the statements atomically in order under the
// write path. The whole transaction is retried as a unit on transient
// lock errors.
//
// Parameters:
//   - ctx: Context for cancellation
//   - statements: Ordered statements; must be non-empty
//
// Returns:
//   - []Result: Per-statement outcomes, in input order
//   - error: ErrNoStatements, or the first statement/commit failure
func (o *Optimizer) ExecuteTransaction(ctx context.Context, statements []Statement) ([]Result, error) {
	if len(statements) == 0 {
		return nil, ErrNoStatements
	}

	release, err := o.admit(ctx, QueryWrite)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	var (
		results    []Result
		lockWaited bool
	)
	err = retry.Execute(ctx, func(ctx context.Context) error {
		handle, err := o.pool.Acquire(ctx, 0)
		if err != nil {
			return err
		}
		defer handle.Release()

		results = results[:0]
		return handle.Transaction(ctx, func(tx *sql.Tx) error {
			for i, stmt := range statements {
				res, err := tx.ExecContext(ctx, stmt.SQL, stmt.Params...)
				if err != nil {
					return fmt.Errorf("statement %d: %w", i, err)
				}
				var r Result
				r.RowsAffected, _ = res.RowsAffected() //nolint:errcheck // Driver supports it
				r.LastInsertID, _ = res.LastInsertId() //nolint:errcheck // Driver supports it
				results = append(results, r)
			}
			return nil
		})
	}, func(err error) bool {
		if retry.IsTransient(err) {
			lockWaited = true
			return true
		}
		return false
	}, o.strategy)

	duration := time.Since(start)
	o.metrics.record("transaction", QueryTransaction, duration, err != nil, lockWaited)

	if err != nil {
		return nil, err
	}
	return results, nil
}

// Metrics returns a copy of the per-query aggregates keyed by query
// hash.
func (o *Optimizer) Metrics() map[string]QueryMetrics {
	return o.metrics.snapshot()
}

// ResetMetrics discards all accumulated query metrics.
func (o *Optimizer) ResetMetrics() {
	o.metrics.reset()
}

// CacheStats returns cumulative cache hit/miss counts and the current
// entry count.
func (o *Optimizer) CacheStats() (hits, misses uint64, size int) {
	return o.cache.stats()
}

// ClearCache empties the read-result cache.
func (o *Optimizer) ClearCache() {
	o.cache.clear()
}
