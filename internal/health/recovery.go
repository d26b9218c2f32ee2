package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/litekeeper/internal/infrastructure/config"
	"github.com/nerrad567/litekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/litekeeper/internal/pool"
)

// Action identifies one recovery measure.
type Action string

// Recovery actions, mild to drastic.
const (
	// ActionDrainIdle closes idle pool connections above the minimum.
	ActionDrainIdle Action = "drain_idle"

	// ActionReconnect replaces every pool connection.
	ActionReconnect Action = "reconnect"

	// ActionCheckpoint forces a WAL checkpoint with truncation.
	ActionCheckpoint Action = "checkpoint"

	// ActionVacuum rebuilds the database file and refreshes statistics.
	ActionVacuum Action = "vacuum"
)

// defaultAttemptHistory bounds the retained recovery attempts.
const defaultAttemptHistory = 100

// Attempt records one recovery execution, including cooldown no-ops.
type Attempt struct {
	// Action that was attempted.
	Action Action `json:"action"`

	// Component the action targeted.
	Component string `json:"component"`

	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the attempt ran.
	Duration time.Duration `json:"duration"`

	// Success reports whether the action completed.
	Success bool `json:"success"`

	// Message carries the failure reason or a short success note.
	Message string `json:"message,omitempty"`
}

// EventPublisher receives health transitions and recovery attempts.
// Implementations must not block; nil disables publishing.
type EventPublisher interface {
	PublishHealth(result CheckResult)
	PublishRecovery(attempt Attempt)
}

// Executor applies recovery actions under per-action cooldowns.
//
// Every executed attempt, successful or not, stamps the action's
// cooldown clock so a failing action cannot hot-loop. An attempt
// inside the cooldown window records a failed no-op attempt without
// touching the clock, so the action becomes eligible again once the
// window elapses even when checks fire faster than the cooldown.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Executor struct {
	pool      *pool.Pool
	cooldowns config.RecoveryCooldownConfig
	logger    *logging.Logger
	publisher EventPublisher

	mu          sync.Mutex
	lastAttempt map[Action]time.Time
	attempts    []Attempt
}

// NewExecutor creates a recovery executor over the given pool.
// publisher may be nil.
func NewExecutor(p *pool.Pool, cooldowns config.RecoveryCooldownConfig, logger *logging.Logger, publisher EventPublisher) *Executor {
	return &Executor{
		pool:        p,
		cooldowns:   cooldowns,
		logger:      logger.With("component", "recovery"),
		publisher:   publisher,
		lastAttempt: make(map[Action]time.Time),
	}
}

// cooldownFor returns the configured cooldown for an action.
func (e *Executor) cooldownFor(action Action) time.Duration {
	var seconds int
	switch action {
	case ActionReconnect:
		seconds = e.cooldowns.Reconnect
	case ActionDrainIdle:
		seconds = e.cooldowns.DrainIdle
	case ActionCheckpoint:
		seconds = e.cooldowns.Checkpoint
	case ActionVacuum:
		seconds = e.cooldowns.Vacuum
	}
	return time.Duration(seconds) * time.Second
}

// Execute runs one recovery action, honouring its cooldown.
//
// Parameters:
//   - ctx: Context for the recovery statements
//   - action: Action to run
//   - component: Component the action targets (recorded in history)
//
// Returns:
//   - Attempt: The recorded attempt; Success false with an "on
//     cooldown" message when the window has not elapsed
func (e *Executor) Execute(ctx context.Context, action Action, component string) Attempt {
	attempt := Attempt{
		Action:    action,
		Component: component,
		StartedAt: time.Now(),
	}

	e.mu.Lock()
	cooldown := e.cooldownFor(action)
	last, attempted := e.lastAttempt[action]
	if attempted && cooldown > 0 && time.Since(last) < cooldown {
		remaining := cooldown - time.Since(last)
		e.mu.Unlock()

		attempt.Success = false
		attempt.Message = fmt.Sprintf("on cooldown for %s", remaining.Round(time.Second))
		e.record(attempt)
		return attempt
	}
	e.lastAttempt[action] = time.Now()
	e.mu.Unlock()

	err := e.run(ctx, action)
	attempt.Duration = time.Since(attempt.StartedAt)
	if err != nil {
		attempt.Success = false
		attempt.Message = err.Error()
		e.logger.Error("recovery action failed",
			"action", string(action),
			"target", component,
			"error", err,
		)
	} else {
		attempt.Success = true
		e.logger.Info("recovery action completed",
			"action", string(action),
			"target", component,
			"duration_ms", attempt.Duration.Milliseconds(),
		)
	}

	e.record(attempt)
	return attempt
}

// run dispatches to the concrete action.
func (e *Executor) run(ctx context.Context, action Action) error {
	switch action {
	case ActionDrainIdle:
		e.pool.DrainIdle()
		return nil

	case ActionReconnect:
		return e.pool.ReconnectAll(ctx)

	case ActionCheckpoint:
		handle, err := e.pool.Acquire(ctx, 0)
		if err != nil {
			return fmt.Errorf("acquiring connection for checkpoint: %w", err)
		}
		defer handle.Release()
		if _, err := handle.Execute(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			return fmt.Errorf("running checkpoint: %w", err)
		}
		return nil

	case ActionVacuum:
		handle, err := e.pool.Acquire(ctx, 0)
		if err != nil {
			return fmt.Errorf("acquiring connection for vacuum: %w", err)
		}
		defer handle.Release()
		if _, err := handle.Execute(ctx, "VACUUM"); err != nil {
			return fmt.Errorf("running vacuum: %w", err)
		}
		if _, err := handle.Execute(ctx, "ANALYZE"); err != nil {
			return fmt.Errorf("running analyze: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("unknown recovery action %q", action)
	}
}

// record appends an attempt to the bounded history and publishes it.
func (e *Executor) record(attempt Attempt) {
	e.mu.Lock()
	e.attempts = append(e.attempts, attempt)
	if len(e.attempts) > defaultAttemptHistory {
		e.attempts = e.attempts[len(e.attempts)-defaultAttemptHistory:]
	}
	e.mu.Unlock()

	if e.publisher != nil {
		e.publisher.PublishRecovery(attempt)
	}
}

// History returns the retained attempts, oldest first.
func (e *Executor) History() []Attempt {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Attempt, len(e.attempts))
	copy(out, e.attempts)
	return out
}

// actionFor maps a component's status to the appropriate recovery
// action. Returns false when no action is warranted.
func actionFor(component string, status Status) (Action, bool) {
	switch component {
	case ComponentPool:
		switch status {
		case StatusCritical:
			return ActionReconnect, true
		case StatusDegraded:
			return ActionDrainIdle, true
		}
	case ComponentDatabase:
		switch status {
		case StatusCritical:
			return ActionVacuum, true
		case StatusDegraded:
			return ActionCheckpoint, true
		}
	}
	return "", false
}

// Monitor couples the checker and executor into a closed loop.
type Monitor struct {
	checker   *Checker
	executor  *Executor
	cfg       config.HealthConfig
	logger    *logging.Logger
	publisher EventPublisher

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates the auto-recovery loop. publisher may be nil.
func NewMonitor(checker *Checker, executor *Executor, cfg config.HealthConfig, logger *logging.Logger, publisher EventPublisher) *Monitor {
	return &Monitor{
		checker:   checker,
		executor:  executor,
		cfg:       cfg,
		logger:    logger.With("component", "health_monitor"),
		publisher: publisher,
	}
}

// StartAutoRecovery begins the periodic check-and-recover loop.
// Calling it while running is a no-op.
//
// Parameters:
//   - ctx: Parent context; the loop also stops when it is cancelled
func (m *Monitor) StartAutoRecovery(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})

	interval := time.Duration(m.cfg.CheckInterval) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go m.loop(loopCtx, interval, m.done)
	m.logger.Info("auto-recovery started", "interval", interval.String())
}

// Stop halts the loop and waits for it to exit. Idempotent.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.cancel = nil
	m.done = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		m.logger.Info("auto-recovery stopped")
	}
}

// loop runs checks on the interval and applies recovery actions.
// Executor errors are recorded in attempt history, never fatal here.
// The done channel is passed in rather than read from the struct: Stop
// nils the field, so re-reading it here would race.
func (m *Monitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

// runOnce performs one check-and-recover pass.
func (m *Monitor) runOnce(ctx context.Context) {
	results := m.checker.RunChecks(ctx)

	for _, result := range results {
		if m.publisher != nil {
			m.publisher.PublishHealth(result)
		}

		if !m.cfg.AutoRecovery {
			continue
		}
		action, ok := actionFor(result.Component, result.Status)
		if !ok {
			continue
		}

		m.logger.Warn("triggering recovery",
			"check_component", result.Component,
			"status", string(result.Status),
			"score", result.Score,
			"action", string(action),
		)
		m.executor.Execute(ctx, action, result.Component)
	}
}
