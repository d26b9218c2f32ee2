package optimizer

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

// QueryMetrics aggregates latency and error counts for one query shape.
type QueryMetrics struct {
	// Query is the normalized statement text.
	Query string `json:"query"`

	// Type is the admission classification.
	Type string `json:"type"`

	// Count is the number of executions.
	Count uint64 `json:"count"`

	// Errors is the number of failed executions.
	Errors uint64 `json:"errors"`

	// LockWaits counts executions that hit at least one transient lock
	// error before completing.
	LockWaits uint64 `json:"lock_waits"`

	// Latency aggregates.
	TotalDuration time.Duration `json:"total_duration"`
	MinDuration   time.Duration `json:"min_duration"`
	MaxDuration   time.Duration `json:"max_duration"`
	AvgDuration   time.Duration `json:"avg_duration"`
}

// metricsStore tracks QueryMetrics per query hash under its own lock so
// metric updates never contend with admission control.
type metricsStore struct {
	mu      sync.Mutex
	byQuery map[string]*QueryMetrics
}

func newMetricsStore() *metricsStore {
	return &metricsStore{byQuery: make(map[string]*QueryMetrics)}
}

// queryHash produces a short stable identifier for a normalized query.
func queryHash(query string) string {
	h := fnv.New64a()
	h.Write([]byte(query)) //nolint:errcheck // fnv never fails
	return fmt.Sprintf("%016x", h.Sum64())
}

// record folds one execution into the aggregate for its query shape.
func (m *metricsStore) record(query string, qt QueryType, duration time.Duration, failed, lockWaited bool) {
	normalized := strings.Join(strings.Fields(query), " ")
	hash := queryHash(normalized)

	m.mu.Lock()
	defer m.mu.Unlock()

	qm, ok := m.byQuery[hash]
	if !ok {
		qm = &QueryMetrics{
			Query:       normalized,
			Type:        qt.String(),
			MinDuration: duration,
		}
		m.byQuery[hash] = qm
	}

	qm.Count++
	qm.TotalDuration += duration
	if duration < qm.MinDuration {
		qm.MinDuration = duration
	}
	if duration > qm.MaxDuration {
		qm.MaxDuration = duration
	}
	qm.AvgDuration = qm.TotalDuration / time.Duration(qm.Count)

	if failed {
		qm.Errors++
	}
	if lockWaited {
		qm.LockWaits++
	}
}

// snapshot returns a copy of all metrics keyed by query hash.
func (m *metricsStore) snapshot() map[string]QueryMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]QueryMetrics, len(m.byQuery))
	for hash, qm := range m.byQuery {
		out[hash] = *qm
	}
	return out
}

// reset discards all accumulated metrics.
func (m *metricsStore) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byQuery = make(map[string]*QueryMetrics)
}
