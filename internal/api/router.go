package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// buildRouter constructs the HTTP route tree.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/entries", func(r chi.Router) {
				r.Get("/", s.handleListEntries)
				r.Post("/", s.handleCreateEntry)

				r.Route("/{entryID}", func(r chi.Router) {
					r.Get("/", s.handleGetEntry)
					r.Put("/", s.handleUpdateEntry)
					r.Delete("/", s.handleDeleteEntry)

					r.Get("/state", s.handleGetState)
					r.Get("/doors", s.handleListDoors)
					r.Post("/doors/{doorID}/action", s.handleDoorAction)
				})
			})
		})
	})

	r.Get(s.cfg.WebSocket.Path, s.handleWebSocket)

	return r
}

// handleHealth reports server liveness and the number of managed
// devices.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"devices":        len(s.hub.Runtimes()),
	})
}
