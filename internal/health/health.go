package health

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/litekeeper/internal/infrastructure/config"
	"github.com/nerrad567/litekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/litekeeper/internal/pool"
)

// Health check constants.
const (
	// Component names used in results, history, and recovery routing.
	ComponentPool     = "pool"
	ComponentDatabase = "database"

	// probeTimeout bounds the connectivity probe for one check.
	probeTimeout = 5 * time.Second

	// slowProbeThreshold is the probe latency above which the score is
	// penalized.
	slowProbeThreshold = 100 * time.Millisecond

	// fragmentationThreshold is the freelist/page ratio above which the
	// database score is penalized.
	fragmentationThreshold = 0.20

	// Score penalties.
	penaltyAcquireFailed   = 0.8
	penaltyProbeFailed     = 0.5
	penaltyOverSoftLimit   = 0.2
	penaltySlowProbe       = 0.1
	penaltyIntegrityFailed = 0.5
	penaltyNonWALJournal   = 0.1
	penaltyFragmentation   = 0.1

	// Status thresholds.
	thresholdHealthy  = 0.9
	thresholdWarning  = 0.7
	thresholdDegraded = 0.4

	// defaultHistorySize bounds retained results when unconfigured.
	defaultHistorySize = 100
)

// Status is the discrete health level derived from a score.
type Status string

// Health statuses.
const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusDegraded Status = "degraded"
	StatusCritical Status = "critical"
	StatusUnknown  Status = "unknown"
)

// statusForScore maps a clamped score onto a status.
func statusForScore(score float64) Status {
	switch {
	case score >= thresholdHealthy:
		return StatusHealthy
	case score >= thresholdWarning:
		return StatusWarning
	case score >= thresholdDegraded:
		return StatusDegraded
	default:
		return StatusCritical
	}
}

// CheckResult is the outcome of one component health check.
type CheckResult struct {
	// Component identifies what was checked (pool, database).
	Component string `json:"component"`

	// Score is the 0..1 health score after penalties.
	Score float64 `json:"score"`

	// Status is the discrete level derived from Score, or Unknown when
	// the check could not run.
	Status Status `json:"status"`

	// Details carries per-check observations (latency, counts, modes).
	Details map[string]any `json:"details,omitempty"`

	// CheckedAt is when the check completed.
	CheckedAt time.Time `json:"checked_at"`
}

// Checker probes pool and database health and retains bounded history.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Checker struct {
	pool   *pool.Pool
	cfg    config.HealthConfig
	logger *logging.Logger

	mu      sync.Mutex
	history map[string][]CheckResult
}

// NewChecker creates a health checker over the given pool.
func NewChecker(p *pool.Pool, cfg config.HealthConfig, logger *logging.Logger) *Checker {
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = defaultHistorySize
	}
	return &Checker{
		pool:    p,
		cfg:     cfg,
		logger:  logger.With("component", "health"),
		history: make(map[string][]CheckResult),
	}
}

// RunChecks probes every component and returns the results, newest
// appended to the retained history.
//
// Parameters:
//   - ctx: Context for the probe statements
//
// Returns:
//   - []CheckResult: One result per component
func (c *Checker) RunChecks(ctx context.Context) []CheckResult {
	results := []CheckResult{
		c.checkPool(ctx),
		c.checkDatabase(ctx),
	}

	for _, r := range results {
		c.remember(r)
		c.logger.Debug("health check",
			"check_component", r.Component,
			"score", r.Score,
			"status", string(r.Status),
		)
	}
	return results
}

// checkPool scores pool connectivity, sizing, and probe latency.
func (c *Checker) checkPool(ctx context.Context) CheckResult {
	result := CheckResult{
		Component: ComponentPool,
		Details:   make(map[string]any),
		CheckedAt: time.Now(),
	}

	stats := c.pool.Stats()
	result.Details["total"] = stats.Total
	result.Details["active"] = stats.Active
	result.Details["utilization"] = stats.Utilization

	score := 1.0

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	start := time.Now()
	handle, err := c.pool.Acquire(probeCtx, probeTimeout)
	if err != nil {
		score -= penaltyAcquireFailed
		result.Details["probe_error"] = err.Error()
	} else {
		_, probeErr := handle.Execute(probeCtx, "SELECT 1")
		latency := time.Since(start)
		handle.Release()

		result.Details["probe_latency_ms"] = latency.Milliseconds()
		if probeErr != nil {
			score -= penaltyProbeFailed
			result.Details["probe_error"] = probeErr.Error()
		} else if latency > slowProbeThreshold {
			score -= penaltySlowProbe
		}
	}

	soft := c.cfg.SoftConnectionLimit
	if soft <= 0 {
		soft = stats.MaxConnections
	}
	if stats.Total > soft {
		score -= penaltyOverSoftLimit
		result.Details["soft_limit"] = soft
	}

	result.Score = clampScore(score)
	result.Status = statusForScore(result.Score)
	return result
}

// checkDatabase scores file integrity, journal mode, and fragmentation.
func (c *Checker) checkDatabase(ctx context.Context) CheckResult {
	result := CheckResult{
		Component: ComponentDatabase,
		Details:   make(map[string]any),
		CheckedAt: time.Now(),
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	handle, err := c.pool.Acquire(probeCtx, probeTimeout)
	if err != nil {
		// Cannot observe the database at all.
		result.Status = StatusUnknown
		result.Details["error"] = err.Error()
		return result
	}
	defer handle.Release()

	score := 1.0

	var integrity string
	if err := handle.QueryRow(probeCtx, "PRAGMA integrity_check(1)").Scan(&integrity); err != nil || integrity != "ok" {
		score -= penaltyIntegrityFailed
		result.Details["integrity"] = integrity
		if err != nil {
			result.Details["integrity_error"] = err.Error()
		}
	}

	var journalMode string
	if err := handle.QueryRow(probeCtx, "PRAGMA journal_mode").Scan(&journalMode); err == nil {
		result.Details["journal_mode"] = journalMode
		if journalMode != "wal" {
			score -= penaltyNonWALJournal
		}
	}

	var freelist, pageCount int64
	if err := handle.QueryRow(probeCtx, "PRAGMA freelist_count").Scan(&freelist); err == nil {
		if err := handle.QueryRow(probeCtx, "PRAGMA page_count").Scan(&pageCount); err == nil && pageCount > 0 {
			ratio := float64(freelist) / float64(pageCount)
			result.Details["freelist_ratio"] = ratio
			if ratio > fragmentationThreshold {
				score -= penaltyFragmentation
			}
		}
	}

	result.Score = clampScore(score)
	result.Status = statusForScore(result.Score)
	return result
}

// clampScore bounds a score to [0, 1].
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// remember appends a result to the component's bounded history.
func (c *Checker) remember(r CheckResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := append(c.history[r.Component], r)
	if len(h) > c.cfg.HistorySize {
		h = h[len(h)-c.cfg.HistorySize:]
	}
	c.history[r.Component] = h
}

// History returns retained results for a component, oldest first.
func (c *Checker) History(component string) []CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.history[component]
	out := make([]CheckResult, len(h))
	copy(out, h)
	return out
}

// Latest returns the most recent result per component.
func (c *Checker) Latest() map[string]CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]CheckResult, len(c.history))
	for component, h := range c.history {
		if len(h) > 0 {
			out[component] = h[len(h)-1]
		}
	}
	return out
}

// OverallStatus reduces the latest component results to one status:
// the worst of the set, Unknown when nothing has been checked yet.
func (c *Checker) OverallStatus() Status {
	latest := c.Latest()
	if len(latest) == 0 {
		return StatusUnknown
	}

	rank := map[Status]int{
		StatusHealthy:  0,
		StatusWarning:  1,
		StatusDegraded: 2,
		StatusCritical: 3,
		StatusUnknown:  4,
	}
	worst := StatusHealthy
	for _, r := range latest {
		if rank[r.Status] > rank[worst] {
			worst = r.Status
		}
	}
	return worst
}

