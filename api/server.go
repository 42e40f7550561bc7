/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/instances/*   Instance management, views, and mutations

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/instances", func(r chi.Router) {
			r.Get("/", h.ListInstances)
			r.Post("/", h.CreateInstance)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetInstance)
				r.Put("/", h.RenameInstance)

				// Views
				r.Get("/entries", h.GetEntries)
				r.Get("/history", h.GetHistory)
				r.Get("/balances", h.GetBalances)

				// Mutations: each creates a new state
				r.Route("/people", func(r chi.Router) {
					r.Post("/", h.CreatePerson)
					r.Post("/{personID}/retire", h.RetirePerson)
					r.Put("/{personID}/link", h.LinkPerson)
				})
				r.Route("/debts", func(r chi.Router) {
					r.Post("/", h.CreateDebt)
					r.Put("/{debtID}", h.ReplaceDebt)
					r.Delete("/{debtID}", h.DeleteDebt)
				})

				// Undo
				r.Delete("/states/latest", h.DeleteLatestState)
			})
		})
	})

	return r
}
