package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)
		r.Get(wsPath, s.handleWebSocket)

		r.Route("/entries", func(r chi.Router) {
			r.Get("/", s.handleListEntries)
			r.With(s.authMiddleware).Post("/", s.handleCreateEntry)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEntry)
				r.With(s.authMiddleware).Delete("/", s.handleDeleteEntry)
				r.Get("/state", s.handleGetEntryState)
				r.Get("/stats", s.handleGetEntryStats)
				r.Get("/entities", s.handleListEntities)
				r.Get("/entities/{key}", s.handleGetEntity)
				r.Get("/camera", s.handleGetCamera)
				r.Get("/camera/snapshot", s.handleCameraSnapshot)
				r.Get("/history", s.handleGetHistory)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	runtimes := s.manager.Runtimes()
	connected := 0
	for _, rt := range runtimes {
		if rt.Client.IsConnected() {
			connected++
		}
	}

	clients := 0
	if s.hub != nil {
		clients = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"version":           s.version,
		"entries":           len(runtimes),
		"connected":         connected,
		"websocket_clients": clients,
		"uptime_seconds":    int64(time.Since(s.startedAt).Seconds()),
	})
}
