package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/litekeeper/internal/health"
	"github.com/nerrad567/litekeeper/internal/infrastructure/config"
	"github.com/nerrad567/litekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/litekeeper/internal/optimizer"
	"github.com/nerrad567/litekeeper/internal/pool"
	"github.com/nerrad567/litekeeper/internal/retry"
	"github.com/nerrad567/litekeeper/internal/sqlite"
)

// newTestServer builds a server over a fresh temp database.
func newTestServer(t *testing.T) *Server {
	t.Helper()

	factory, err := sqlite.NewFactory(sqlite.Config{
		Path:        filepath.Join(t.TempDir(), "api_test.db"),
		WALMode:     true,
		BusyTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}

	p, err := pool.New(factory, config.PoolConfig{
		MinConnections:      1,
		MaxConnections:      4,
		ConnectionTimeout:   10,
		MaxIdleTime:         300,
		MaxLifetime:         3600,
		MaxConnectionErrors: 3,
		MaintenanceInterval: 30,
	}, logging.Default())
	if err != nil {
		t.Fatalf("pool.New failed: %v", err)
	}
	if err := p.Initialize(context.Background()); err != nil {
		t.Fatalf("pool.Initialize failed: %v", err)
	}
	t.Cleanup(func() {
		p.Close() //nolint:errcheck // Test cleanup
	})

	strategy := retry.Aggressive()
	strategy.BaseDelay = time.Millisecond
	opt := optimizer.New(p, config.OptimizerConfig{
		MaxConcurrentReads:  4,
		MaxConcurrentWrites: 1,
		Cache:               config.QueryCacheConfig{Enabled: true, TTL: 300, MaxEntries: 100},
	}, strategy, logging.Default())

	checker := health.NewChecker(p, config.HealthConfig{}, logging.Default())
	executor := health.NewExecutor(p, config.RecoveryCooldownConfig{
		DrainIdle:  60,
		Reconnect:  60,
		Checkpoint: 60,
		Vacuum:     60,
	}, logging.Default(), nil)

	s, err := New(Deps{
		Config:   config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:       config.WebSocketConfig{PingInterval: 30, PongTimeout: 10},
		Logger:   logging.Default(),
		Pool:     p,
		Opt:      opt,
		Checker:  checker,
		Executor: executor,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func doRequest(t *testing.T, s *Server, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.buildRouter().ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("expected error for missing dependencies")
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
		Version    string         `json:"version"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.Status == "" || body.Status == string(health.StatusUnknown) {
		t.Errorf("expected a known status, got %q", body.Status)
	}
	if len(body.Components) != 2 {
		t.Errorf("expected 2 components, got %d", len(body.Components))
	}
	if body.Version != "test" {
		t.Errorf("expected version test, got %q", body.Version)
	}
}

func TestHandleHealthHistory(t *testing.T) {
	s := newTestServer(t)
	s.checker.RunChecks(context.Background())

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health/history?component=database")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Component string           `json:"component"`
		History   []map[string]any `json:"history"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body.Component != health.ComponentDatabase {
		t.Errorf("expected database component, got %q", body.Component)
	}
	if len(body.History) != 1 {
		t.Errorf("expected 1 history entry, got %d", len(body.History))
	}
}

func TestHandleHealthHistory_UnknownComponent(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health/history?component=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandlePoolStats(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/pool/stats")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats pool.PoolStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if stats.Total < 1 {
		t.Errorf("expected at least 1 connection, got %d", stats.Total)
	}
}

func TestHandlePoolOptimize(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/pool/optimize")
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleQueryMetrics(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	if _, err := s.opt.Execute(ctx, "SELECT 1", nil, optimizer.Options{}); err != nil {
		t.Fatalf("query failed: %v", err)
	}

	rec := doRequest(t, s, http.MethodGet, "/api/v1/queries/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var metrics map[string]optimizer.QueryMetrics
	if err := json.Unmarshal(rec.Body.Bytes(), &metrics); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(metrics) != 1 {
		t.Fatalf("expected 1 metric entry, got %d", len(metrics))
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/queries/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on reset, got %d", rec.Code)
	}
	if len(s.opt.Metrics()) != 0 {
		t.Error("expected metrics to be empty after reset")
	}
}

func TestHandleCacheStats(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/cache/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/cache/")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on clear, got %d", rec.Code)
	}
}

func TestHandleRecoveryAction(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/recovery/checkpoint")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var attempt health.Attempt
	if err := json.Unmarshal(rec.Body.Bytes(), &attempt); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if !attempt.Success {
		t.Errorf("expected successful attempt, got %q", attempt.Message)
	}

	// Second trigger falls inside the cooldown window.
	rec = doRequest(t, s, http.MethodPost, "/api/v1/recovery/checkpoint")
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 on cooldown, got %d", rec.Code)
	}
}

func TestHandleRecoveryAction_Unknown(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/v1/recovery/explode")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandleRecoveryHistory(t *testing.T) {
	s := newTestServer(t)

	doRequest(t, s, http.MethodPost, "/api/v1/recovery/drain_idle")

	rec := doRequest(t, s, http.MethodGet, "/api/v1/recovery/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var attempts []health.Attempt
	if err := json.Unmarshal(rec.Body.Bytes(), &attempts); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(attempts) != 1 {
		t.Errorf("expected 1 attempt, got %d", len(attempts))
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/v1/health")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}
}

func TestWebSocket_SubscribeAndBroadcast(t *testing.T) {
	s := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	ts := httptest.NewServer(s.buildRouter())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	if resp != nil {
		resp.Body.Close() //nolint:errcheck // Test cleanup
	}
	defer conn.Close()

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{"stats"}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("reading subscribe ack failed: %v", err)
	}
	if ack.Type != WSTypeResponse {
		t.Fatalf("expected response ack, got %q", ack.Type)
	}

	s.hub.Broadcast("stats", map[string]any{"active": 1})

	//nolint:errcheck // Deadline on test connection
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event WSMessage
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("reading broadcast failed: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != "stats" {
		t.Errorf("expected stats event, got type=%q event=%q", event.Type, event.EventType)
	}
}
