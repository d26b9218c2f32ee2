// Package api provides the admin HTTP API and WebSocket server for
// LiteKeeper.
//
// It exposes read-only views of pool statistics, query metrics, and
// health history, manual recovery triggers, and a WebSocket stream of
// periodic stats snapshots. The server binds to loopback by default
// and is intended for operators and dashboards, not application
// traffic; applications use the optimizer API directly.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
package api
