package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/health/history", s.handleHealthHistory)

		r.Route("/pool", func(r chi.Router) {
			r.Get("/stats", s.handlePoolStats)
			r.Post("/optimize", s.handlePoolOptimize)
		})

		r.Route("/queries", func(r chi.Router) {
			r.Get("/metrics", s.handleQueryMetrics)
			r.Delete("/metrics", s.handleResetQueryMetrics)
		})

		r.Route("/cache", func(r chi.Router) {
			r.Get("/", s.handleCacheStats)
			r.Delete("/", s.handleClearCache)
		})

		r.Route("/recovery", func(r chi.Router) {
			r.Get("/history", s.handleRecoveryHistory)
			r.Post("/{action}", s.handleRecoveryAction)
		})

		// WebSocket live stats stream
		wsPath := s.wsCfg.Path
		if wsPath == "" {
			wsPath = "/ws"
		}
		r.Get(wsPath, s.handleWebSocket)
	})

	return r
}
