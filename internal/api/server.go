package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/litekeeper/internal/health"
	"github.com/nerrad567/litekeeper/internal/infrastructure/config"
	"github.com/nerrad567/litekeeper/internal/infrastructure/logging"
	"github.com/nerrad567/litekeeper/internal/optimizer"
	"github.com/nerrad567/litekeeper/internal/pool"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Pool     *pool.Pool
	Opt      *optimizer.Optimizer
	Checker  *health.Checker
	Executor *health.Executor
	Version  string
}

// Server is the admin HTTP API for LiteKeeper.
//
// It exposes health, pool, query, and recovery state over REST plus a
// WebSocket stream of live statistics. The server is created with New
// and started with Start.
//
// Thread Safety: All methods are safe for concurrent use.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	pool     *pool.Pool
	opt      *optimizer.Optimizer
	checker  *health.Checker
	executor *health.Executor
	version  string
	server   *http.Server
	hub      *Hub
	cancel   context.CancelFunc
}

// New creates an API server with the given dependencies.
//
// The WebSocket hub is created immediately so callers can wire it as a
// broadcast sink before Start, but nothing listens until Start is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, pool, optimizer, health)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if deps.Opt == nil {
		return nil, fmt.Errorf("optimizer is required")
	}
	if deps.Checker == nil {
		return nil, fmt.Errorf("health checker is required")
	}
	if deps.Executor == nil {
		return nil, fmt.Errorf("recovery executor is required")
	}

	s := &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger.With("component", "api"),
		pool:     deps.Pool,
		opt:      deps.Opt,
		checker:  deps.Checker,
		executor: deps.Executor,
		version:  deps.Version,
	}
	s.hub = NewHub(deps.WS, s.logger)

	return s, nil
}

// Hub returns the WebSocket hub, for wiring as a stats broadcast sink.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a
// background goroutine. The server is stopped with Close.
//
// Parameters:
//   - ctx: Context for cancellation of background goroutines
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.pushLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server listening", "address", s.server.Addr)
	return nil
}

// defaultPushInterval is used when websocket.push_interval is zero.
const defaultPushInterval = 5 * time.Second

// pushLoop broadcasts live pool stats and the overall health status on
// the "pool" channel while clients are connected. The stats collector
// sends richer snapshots on "stats" at its own cadence; this loop keeps
// dashboards fresh between samples.
func (s *Server) pushLoop(ctx context.Context) {
	interval := time.Duration(s.wsCfg.PushInterval) * time.Second
	if interval <= 0 {
		interval = defaultPushInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.ClientCount() == 0 {
				continue
			}
			s.hub.Broadcast("pool", map[string]any{
				"stats":  s.pool.Stats(),
				"status": s.checker.OverallStatus(),
			})
		}
	}
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete, then
// forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
