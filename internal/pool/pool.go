package pool

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/litekeeper/internal/infrastructure/config"
	"github.com/nerrad567/litekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/litekeeper/internal/sqlite"
)

// Pool timing constants.
const (
	// validationProbeTimeout bounds the SELECT 1 probe during validation.
	validationProbeTimeout = 2 * time.Second

	// drainCloseTimeout bounds how long Close waits for active handles.
	drainCloseTimeout = 10 * time.Second

	// drainPollInterval is how often Close re-checks for active handles.
	drainPollInterval = 50 * time.Millisecond
)

// Pool manages a bounded set of connections to one SQLite database file.
//
// Connections move between an idle set and an active set; a record is
// always in exactly one of the two, and active+idle never exceeds the
// configured maximum. Acquire hands out exclusive access, Release
// returns it, and a background maintenance loop validates idle
// connections and grows or shrinks the pool based on utilization.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - The *Handle returned by Acquire is single-owner until Release.
type Pool struct {
	factory *sqlite.Factory
	logger  *logging.Logger

	mu          sync.Mutex
	cfg         config.PoolConfig
	idle        []*record
	active      map[string]*record
	waiters     *list.List // of chan *record
	initialized bool
	closed      bool

	// Cumulative counters, guarded by mu.
	totalAcquired uint64
	totalCreated  uint64
	totalEvicted  uint64
	totalTimeouts uint64

	maintCancel context.CancelFunc
	maintDone   chan struct{}
}

// PoolStats is a point-in-time snapshot of pool state.
type PoolStats struct {
	// Path is the database file this pool serves.
	Path string `json:"path"`

	// Total is the number of open connections (idle + active).
	Total int `json:"total"`

	// Active is the number of connections currently held by callers.
	Active int `json:"active"`

	// Idle is the number of connections ready to hand out.
	Idle int `json:"idle"`

	// Waiting is the number of Acquire calls blocked on a slot.
	Waiting int `json:"waiting"`

	// MinConnections and MaxConnections echo the configured bounds.
	MinConnections int `json:"min_connections"`
	MaxConnections int `json:"max_connections"`

	// Utilization is active/total, 0 when the pool is empty.
	Utilization float64 `json:"utilization"`

	// TotalAcquired counts successful Acquire calls since creation.
	TotalAcquired uint64 `json:"total_acquired"`

	// TotalCreated counts physical connections opened since creation.
	TotalCreated uint64 `json:"total_created"`

	// TotalEvicted counts connections closed after failing validation.
	TotalEvicted uint64 `json:"total_evicted"`

	// TotalTimeouts counts Acquire calls that hit ErrPoolTimeout.
	TotalTimeouts uint64 `json:"total_timeouts"`
}

// New creates a pool over the given connection factory.
//
// The pool opens no connections until Initialize is called.
//
// Parameters:
//   - factory: Connection factory for the database file
//   - cfg: Pool sizing and validation settings
//   - logger: Structured logger
//
// Returns:
//   - *Pool: Pool ready for Initialize
//   - error: Wrapped ErrInvalidConfig if the settings are inconsistent
func New(factory *sqlite.Factory, cfg config.PoolConfig, logger *logging.Logger) (*Pool, error) {
	if err := validatePoolConfig(cfg); err != nil {
		return nil, err
	}

	return &Pool{
		factory: factory,
		logger:  logger.With("component", "pool", "database", factory.Path()),
		cfg:     cfg,
		active:  make(map[string]*record),
		waiters: list.New(),
	}, nil
}

// validatePoolConfig checks the sizing and threshold invariants.
func validatePoolConfig(cfg config.PoolConfig) error {
	if cfg.MinConnections < 0 {
		return fmt.Errorf("%w: min_connections must be >= 0", ErrInvalidConfig)
	}
	if cfg.MaxConnections < 1 {
		return fmt.Errorf("%w: max_connections must be >= 1", ErrInvalidConfig)
	}
	if cfg.MinConnections > cfg.MaxConnections {
		return fmt.Errorf("%w: min_connections exceeds max_connections", ErrInvalidConfig)
	}
	if cfg.DynamicScaling && cfg.ScaleDownThreshold >= cfg.ScaleUpThreshold {
		return fmt.Errorf("%w: scale_down_threshold must be below scale_up_threshold", ErrInvalidConfig)
	}
	return nil
}

// Initialize opens the minimum connection set and starts the
// maintenance loop. Calling it twice is an error.
//
// Parameters:
//   - ctx: Context for the initial connection opens
//
// Returns:
//   - error: If any initial connection cannot be opened (connections
//     opened so far are closed again)
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	if p.initialized {
		p.mu.Unlock()
		return fmt.Errorf("%w: already initialized", ErrInvalidConfig)
	}
	p.initialized = true
	min := p.cfg.MinConnections
	p.mu.Unlock()

	for i := 0; i < min; i++ {
		rec, err := p.openRecord(ctx)
		if err != nil {
			p.closeAllIdle()
			p.mu.Lock()
			p.initialized = false
			p.mu.Unlock()
			return fmt.Errorf("opening initial connection %d/%d: %w", i+1, min, err)
		}
		p.mu.Lock()
		rec.state = StateIdle
		p.idle = append(p.idle, rec)
		p.mu.Unlock()
	}

	maintCtx, cancel := context.WithCancel(context.Background())
	p.maintCancel = cancel
	p.maintDone = make(chan struct{})
	go p.maintenanceLoop(maintCtx)

	p.logger.Info("pool initialised",
		"min_connections", min,
		"max_connections", p.cfg.MaxConnections,
		"dynamic_scaling", p.cfg.DynamicScaling,
	)
	return nil
}

// openRecord opens one physical connection and wraps it in a record.
// The caller decides which set the record joins.
func (p *Pool) openRecord(ctx context.Context) (*record, error) {
	conn, err := p.factory.Open(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.totalCreated++
	p.mu.Unlock()

	now := time.Now()
	return &record{
		conn:       conn,
		createdAt:  now,
		lastUsedAt: now,
	}, nil
}

// Acquire hands out an exclusive connection handle.
//
// An idle connection that passes validation is reused; otherwise a new
// connection is opened if the pool is below its maximum; otherwise the
// call blocks until a slot frees or the timeout elapses.
//
// Parameters:
//   - ctx: Context for cancellation
//   - timeout: Wait limit; <= 0 uses the configured connection_timeout
//
// Returns:
//   - *Handle: Exclusive handle, released with Handle.Release
//   - error: ErrPoolTimeout when no slot frees in time, ErrPoolClosed,
//     ErrNotInitialized, ctx.Err(), or a connection open failure
func (p *Pool) Acquire(ctx context.Context, timeout time.Duration) (*Handle, error) {
	if timeout <= 0 {
		timeout = time.Duration(p.connectionTimeoutSeconds()) * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		rec, waiter, err := p.tryAcquire(ctx)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			return p.newHandle(rec), nil
		}

		// No slot available; wait for a release, eviction, or timeout.
		select {
		case got := <-waiter.ch:
			p.removeWaiter(waiter)
			if got != nil {
				return p.newHandle(got), nil
			}
			// Capacity freed without a reusable connection; retry.
		case <-ctx.Done():
			p.abandonWaiter(waiter)
			return nil, ctx.Err()
		case <-deadline.C:
			p.abandonWaiter(waiter)
			p.mu.Lock()
			p.totalTimeouts++
			p.mu.Unlock()
			return nil, fmt.Errorf("%w: no connection within %s", ErrPoolTimeout, timeout)
		}
	}
}

func (p *Pool) connectionTimeoutSeconds() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.ConnectionTimeout
}

// waiter is one blocked Acquire call in the FIFO queue.
type waiter struct {
	ch   chan *record
	elem *list.Element
}

// tryAcquire attempts a non-blocking acquire. Exactly one of the three
// returns is meaningful: a ready record, a registered waiter, or an
// error.
func (p *Pool) tryAcquire(ctx context.Context) (*record, *waiter, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, nil, ErrPoolClosed
		}
		if !p.initialized {
			p.mu.Unlock()
			return nil, nil, ErrNotInitialized
		}

		// Reuse an idle connection if one validates.
		if n := len(p.idle); n > 0 {
			rec := p.idle[n-1]
			p.idle = p.idle[:n-1]
			rec.state = StateActive
			p.active[rec.id()] = rec
			p.mu.Unlock()

			if p.validate(ctx, rec) {
				p.noteAcquired(rec)
				return rec, nil, nil
			}
			p.evict(rec)
			continue
		}

		// Open a new connection if below the ceiling.
		if len(p.active) < p.cfg.MaxConnections {
			p.mu.Unlock()
			rec, err := p.openRecord(ctx)
			if err != nil {
				return nil, nil, fmt.Errorf("opening connection: %w", err)
			}
			p.mu.Lock()
			// Re-check under lock: a concurrent Acquire may have taken
			// the last slot while we were opening.
			if p.closed || len(p.active)+len(p.idle) >= p.cfg.MaxConnections {
				p.mu.Unlock()
				rec.conn.Close() //nolint:errcheck // Surplus connection
				continue
			}
			rec.state = StateActive
			p.active[rec.id()] = rec
			p.mu.Unlock()
			p.noteAcquired(rec)
			return rec, nil, nil
		}

		// At capacity; join the wait queue.
		w := &waiter{ch: make(chan *record, 1)}
		w.elem = p.waiters.PushBack(w)
		p.mu.Unlock()
		return nil, w, nil
	}
}

// noteAcquired updates counters for a successful hand-out.
func (p *Pool) noteAcquired(rec *record) {
	p.mu.Lock()
	p.totalAcquired++
	rec.usageCount++
	rec.lastUsedAt = time.Now()
	p.mu.Unlock()
}

// removeWaiter unlinks a satisfied waiter from the queue.
func (p *Pool) removeWaiter(w *waiter) {
	p.mu.Lock()
	if w.elem != nil {
		p.waiters.Remove(w.elem)
		w.elem = nil
	}
	p.mu.Unlock()
}

// abandonWaiter unlinks a timed-out waiter and re-routes any record
// that was delivered concurrently with the timeout.
func (p *Pool) abandonWaiter(w *waiter) {
	p.removeWaiter(w)
	select {
	case rec := <-w.ch:
		if rec != nil {
			p.release(rec, false)
		}
	default:
	}
}

// validate runs the reuse checks in order: consecutive errors, age,
// idle time, then a live probe. Returns false if the connection must
// be evicted.
func (p *Pool) validate(ctx context.Context, rec *record) bool {
	p.mu.Lock()
	cfg := p.cfg
	errs := rec.consecutiveErrors
	now := time.Now()
	age := rec.age(now)
	idleFor := rec.idleFor(now)
	p.mu.Unlock()

	if cfg.MaxConnectionErrors > 0 && errs >= cfg.MaxConnectionErrors {
		return false
	}
	if cfg.MaxLifetime > 0 && age > time.Duration(cfg.MaxLifetime)*time.Second {
		return false
	}
	if cfg.MaxIdleTime > 0 && idleFor > time.Duration(cfg.MaxIdleTime)*time.Second {
		return false
	}

	probeCtx, cancel := context.WithTimeout(ctx, validationProbeTimeout)
	defer cancel()
	return rec.conn.Ping(probeCtx) == nil
}

// evict removes a record from the pool and closes its connection.
// Validation failures never surface to callers; the slot is freed and
// any waiter is signalled to retry.
func (p *Pool) evict(rec *record) {
	p.mu.Lock()
	rec.state = StateError
	delete(p.active, rec.id())
	p.totalEvicted++
	p.signalWaiterLocked(nil)
	p.mu.Unlock()

	if err := rec.conn.Close(); err != nil {
		p.logger.Warn("closing evicted connection", "connection_id", rec.id(), "error", err)
	}
	p.logger.Debug("connection evicted", "connection_id", rec.id(), "usage_count", rec.usageCount)
}

// release returns a connection to the pool. Invoked by Handle.Release.
// failed marks the last operation on the handle as errored.
func (p *Pool) release(rec *record, failed bool) {
	p.mu.Lock()
	if failed {
		rec.consecutiveErrors++
	} else {
		rec.consecutiveErrors = 0
	}

	stale := rec.state == StateStale
	overErrors := p.cfg.MaxConnectionErrors > 0 && rec.consecutiveErrors >= p.cfg.MaxConnectionErrors
	expired := p.cfg.MaxLifetime > 0 && rec.age(time.Now()) > time.Duration(p.cfg.MaxLifetime)*time.Second

	if p.closed || stale || overErrors || expired {
		p.mu.Unlock()
		p.evict(rec)
		return
	}

	rec.lastUsedAt = time.Now()

	// Hand off directly to the oldest waiter when one is blocked.
	if p.waiters.Len() > 0 {
		p.signalWaiterLocked(rec)
		p.mu.Unlock()
		return
	}

	rec.state = StateIdle
	delete(p.active, rec.id())
	p.idle = append(p.idle, rec)
	p.mu.Unlock()
}

// signalWaiterLocked delivers rec (or a retry signal when rec is nil)
// to the oldest waiter. Caller holds p.mu.
func (p *Pool) signalWaiterLocked(rec *record) {
	front := p.waiters.Front()
	if front == nil {
		return
	}
	w := front.Value.(*waiter)
	p.waiters.Remove(front)
	w.elem = nil
	if rec != nil {
		// Record stays Active and keeps its slot in the active set.
		rec.usageCount++
		p.totalAcquired++
	}
	w.ch <- rec
}

// Stats returns a snapshot of the pool state.
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := len(p.idle) + len(p.active)
	stats := PoolStats{
		Path:           p.factory.Path(),
		Total:          total,
		Active:         len(p.active),
		Idle:           len(p.idle),
		Waiting:        p.waiters.Len(),
		MinConnections: p.cfg.MinConnections,
		MaxConnections: p.cfg.MaxConnections,
		TotalAcquired:  p.totalAcquired,
		TotalCreated:   p.totalCreated,
		TotalEvicted:   p.totalEvicted,
		TotalTimeouts:  p.totalTimeouts,
	}
	if total > 0 {
		stats.Utilization = float64(len(p.active)) / float64(total)
	}
	return stats
}

// Optimize runs database maintenance over one idle connection:
// PRAGMA optimize and a passive WAL checkpoint. Safe to call while
// traffic continues.
//
// Parameters:
//   - ctx: Context for the maintenance statements
//
// Returns:
//   - error: If no connection can be acquired or a statement fails
func (p *Pool) Optimize(ctx context.Context) error {
	handle, err := p.Acquire(ctx, 0)
	if err != nil {
		return fmt.Errorf("acquiring connection for optimize: %w", err)
	}
	defer handle.Release()

	if _, err := handle.Execute(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("running optimize: %w", err)
	}
	if _, err := handle.Execute(ctx, "PRAGMA wal_checkpoint(PASSIVE)"); err != nil {
		return fmt.Errorf("running wal checkpoint: %w", err)
	}

	p.logger.Debug("pool optimize completed")
	return nil
}

// Reconfigure replaces the pool sizing configuration. The new limits
// take effect on the next maintenance tick; existing connections are
// not closed eagerly.
//
// Parameters:
//   - cfg: New pool configuration
//
// Returns:
//   - error: Wrapped ErrInvalidConfig if the settings are inconsistent
func (p *Pool) Reconfigure(cfg config.PoolConfig) error {
	if err := validatePoolConfig(cfg); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	p.cfg = cfg
	p.logger.Info("pool reconfigured",
		"min_connections", cfg.MinConnections,
		"max_connections", cfg.MaxConnections,
	)
	return nil
}

// DrainIdle closes every idle connection above the configured minimum.
// Used by the recovery executor to shed stale connections under
// degraded health.
//
// Returns:
//   - int: Number of connections closed
func (p *Pool) DrainIdle() int {
	p.mu.Lock()
	keep := p.cfg.MinConnections - len(p.active)
	if keep < 0 {
		keep = 0
	}
	var victims []*record
	if len(p.idle) > keep {
		victims = append(victims, p.idle[keep:]...)
		p.idle = p.idle[:keep]
	}
	p.mu.Unlock()

	for _, rec := range victims {
		rec.state = StateError
		if err := rec.conn.Close(); err != nil {
			p.logger.Warn("closing drained connection", "connection_id", rec.id(), "error", err)
		}
	}

	if len(victims) > 0 {
		p.logger.Info("idle connections drained", "closed", len(victims))
	}
	return len(victims)
}

// ReconnectAll replaces every connection in the pool. Idle connections
// are closed and reopened immediately; active connections are marked
// stale and replaced as their holders release them. Reopening stops at
// the connection ceiling while stale holders still occupy slots.
//
// Parameters:
//   - ctx: Context for reopening connections
//
// Returns:
//   - error: If the replacement connections cannot be opened
func (p *Pool) ReconnectAll(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPoolClosed
	}
	victims := p.idle
	p.idle = nil
	for _, rec := range p.active {
		rec.state = StateStale
	}
	min := p.cfg.MinConnections
	p.mu.Unlock()

	for _, rec := range victims {
		if err := rec.conn.Close(); err != nil {
			p.logger.Warn("closing connection during reconnect", "connection_id", rec.id(), "error", err)
		}
	}

	var opened int
	for opened < min {
		// Stale active connections keep their slots until released, so
		// reopening must respect the ceiling: active + idle never
		// exceeds max_connections.
		p.mu.Lock()
		room := p.cfg.MaxConnections - (len(p.active) + len(p.idle))
		p.mu.Unlock()
		if room <= 0 {
			break
		}

		rec, err := p.openRecord(ctx)
		if err != nil {
			p.logger.Error("reopening connection during reconnect", "error", err)
			return fmt.Errorf("reconnect opened %d/%d connections: %w", opened, min, err)
		}
		p.mu.Lock()
		if p.closed || len(p.active)+len(p.idle) >= p.cfg.MaxConnections {
			p.mu.Unlock()
			rec.conn.Close() //nolint:errcheck // Surplus connection
			break
		}
		rec.state = StateIdle
		p.idle = append(p.idle, rec)
		p.signalWaiterLocked(nil)
		p.mu.Unlock()
		opened++
	}

	p.logger.Info("pool reconnected", "closed", len(victims), "reopened", opened)
	return nil
}

// maintenanceLoop periodically validates idle connections and applies
// dynamic sizing. Runs until the pool closes.
func (p *Pool) maintenanceLoop(ctx context.Context) {
	defer close(p.maintDone)

	p.mu.Lock()
	interval := time.Duration(p.cfg.MaintenanceInterval) * time.Second
	p.mu.Unlock()
	if interval <= 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.runMaintenance(ctx)
		}
	}
}

// runMaintenance performs one validation and scaling sweep.
func (p *Pool) runMaintenance(ctx context.Context) {
	p.sweepIdle(ctx)

	p.mu.Lock()
	cfg := p.cfg
	total := len(p.idle) + len(p.active)
	activeCount := len(p.active)
	p.mu.Unlock()

	if !cfg.DynamicScaling || total == 0 {
		return
	}

	utilization := float64(activeCount) / float64(total)

	switch {
	case utilization > cfg.ScaleUpThreshold && total < cfg.MaxConnections:
		rec, err := p.openRecord(ctx)
		if err != nil {
			p.logger.Warn("scale-up open failed", "error", err)
			return
		}
		p.mu.Lock()
		// Re-check under lock: a concurrent Acquire may have taken the
		// last slot while we were opening.
		if p.closed || len(p.active)+len(p.idle) >= p.cfg.MaxConnections {
			p.mu.Unlock()
			rec.conn.Close() //nolint:errcheck // Surplus connection
			return
		}
		rec.state = StateIdle
		p.idle = append(p.idle, rec)
		p.signalWaiterLocked(nil)
		p.mu.Unlock()
		p.logger.Info("pool scaled up", "total", total+1, "utilization", utilization)

	case utilization < cfg.ScaleDownThreshold && total > cfg.MinConnections:
		p.mu.Lock()
		var victim *record
		if n := len(p.idle); n > 0 {
			victim = p.idle[n-1]
			p.idle = p.idle[:n-1]
		}
		p.mu.Unlock()
		if victim == nil {
			return
		}
		victim.state = StateError
		if err := victim.conn.Close(); err != nil {
			p.logger.Warn("scale-down close failed", "connection_id", victim.id(), "error", err)
		}
		p.logger.Info("pool scaled down", "total", total-1, "utilization", utilization)
	}
}

// sweepIdle validates every idle connection and evicts failures.
func (p *Pool) sweepIdle(ctx context.Context) {
	p.mu.Lock()
	candidates := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, rec := range candidates {
		if p.validate(ctx, rec) {
			p.mu.Lock()
			if p.closed {
				p.mu.Unlock()
				rec.conn.Close() //nolint:errcheck // Pool closing
				continue
			}
			p.idle = append(p.idle, rec)
			p.mu.Unlock()
			continue
		}

		p.mu.Lock()
		rec.state = StateError
		p.totalEvicted++
		p.signalWaiterLocked(nil)
		p.mu.Unlock()
		if err := rec.conn.Close(); err != nil {
			p.logger.Warn("closing swept connection", "connection_id", rec.id(), "error", err)
		}
	}
}

// closeAllIdle closes every idle connection. Used on failed Initialize
// and during Close.
func (p *Pool) closeAllIdle() {
	p.mu.Lock()
	victims := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, rec := range victims {
		rec.conn.Close() //nolint:errcheck // Shutdown path
	}
}

// Close shuts the pool down: stops maintenance, rejects new acquires,
// waits briefly for active handles, then closes every connection.
// Idempotent.
//
// Returns:
//   - error: nil; connections that fail to close are logged
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	// Wake every waiter so blocked Acquires fail fast with ErrPoolClosed.
	for e := p.waiters.Front(); e != nil; e = e.Next() {
		w := e.Value.(*waiter)
		w.elem = nil
		w.ch <- nil
	}
	p.waiters.Init()
	p.mu.Unlock()

	if p.maintCancel != nil {
		p.maintCancel()
		<-p.maintDone
	}

	p.closeAllIdle()

	// Give active handles a short window to release; their records are
	// evicted on release once closed is set.
	deadline := time.Now().Add(drainCloseTimeout)
	for {
		p.mu.Lock()
		remaining := len(p.active)
		p.mu.Unlock()
		if remaining == 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(drainPollInterval)
	}

	p.mu.Lock()
	stragglers := make([]*record, 0, len(p.active))
	for _, rec := range p.active {
		stragglers = append(stragglers, rec)
	}
	p.active = make(map[string]*record)
	p.mu.Unlock()

	for _, rec := range stragglers {
		p.logger.Warn("force-closing active connection at shutdown", "connection_id", rec.id())
		rec.conn.Close() //nolint:errcheck // Shutdown path
	}

	p.logger.Info("pool closed")
	return nil
}

// Path returns the database file this pool serves.
func (p *Pool) Path() string {
	return p.factory.Path()
}
