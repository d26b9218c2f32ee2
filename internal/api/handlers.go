package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/litekeeper/internal/health"
)

// handleHealth returns the latest health check results for every
// component plus the overall rollup.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	latest := s.checker.Latest()
	if len(latest) == 0 {
		// No checks have run yet; run one on demand.
		for _, result := range s.checker.RunChecks(r.Context()) {
			latest[result.Component] = result
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     s.checker.OverallStatus(),
		"components": latest,
		"version":    s.version,
	})
}

// handleHealthHistory returns retained check results for one component.
// The component query parameter defaults to the pool.
func (s *Server) handleHealthHistory(w http.ResponseWriter, r *http.Request) {
	component := r.URL.Query().Get("component")
	if component == "" {
		component = health.ComponentPool
	}
	if component != health.ComponentPool && component != health.ComponentDatabase {
		writeBadRequest(w, "unknown component: "+component)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"component": component,
		"history":   s.checker.History(component),
	})
}

// handlePoolStats returns a snapshot of pool utilization and counters.
func (s *Server) handlePoolStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.pool.Stats())
}

// handlePoolOptimize runs PRAGMA optimize and a passive WAL checkpoint.
func (s *Server) handlePoolOptimize(w http.ResponseWriter, r *http.Request) {
	if err := s.pool.Optimize(r.Context()); err != nil {
		writeInternalError(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "optimized"})
}

// handleQueryMetrics returns per-query latency and error aggregates.
func (s *Server) handleQueryMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.opt.Metrics())
}

// handleResetQueryMetrics clears all accumulated query metrics.
func (s *Server) handleResetQueryMetrics(w http.ResponseWriter, _ *http.Request) {
	s.opt.ResetMetrics()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// handleCacheStats returns result cache hit/miss counters and size.
func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	hits, misses, size := s.opt.CacheStats()
	writeJSON(w, http.StatusOK, map[string]any{
		"hits":   hits,
		"misses": misses,
		"size":   size,
	})
}

// handleClearCache empties the result cache.
func (s *Server) handleClearCache(w http.ResponseWriter, _ *http.Request) {
	s.opt.ClearCache()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleRecoveryHistory returns retained recovery attempts, oldest first.
func (s *Server) handleRecoveryHistory(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.executor.History())
}

// validRecoveryActions are the actions accepted by the manual trigger.
var validRecoveryActions = map[health.Action]struct{}{
	health.ActionDrainIdle:  {},
	health.ActionReconnect:  {},
	health.ActionCheckpoint: {},
	health.ActionVacuum:     {},
}

// handleRecoveryAction manually triggers one recovery action.
// Cooldowns apply exactly as for automatic recovery; a suppressed
// attempt is reported with HTTP 409.
func (s *Server) handleRecoveryAction(w http.ResponseWriter, r *http.Request) {
	action := health.Action(chi.URLParam(r, "action"))
	if _, ok := validRecoveryActions[action]; !ok {
		writeBadRequest(w, "unknown recovery action: "+string(action))
		return
	}

	attempt := s.executor.Execute(r.Context(), action, "manual")
	status := http.StatusOK
	if !attempt.Success {
		status = http.StatusConflict
	}
	writeJSON(w, status, attempt)
}
