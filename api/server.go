/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the mobile/web frontend

ROUTE GROUPS:
  /api/clients/*     Client registry, sessions, money state, payments
  /api/sessions/*    Session mutations addressed by session id
  /api/activities    Timeline
  /api/scenarios/*   Demo scenarios (dev only)

SECURITY NOTE:
  No authentication middleware; identity resolution is an external
  collaborator. The server binds one provider identity at startup.

SEE ALSO:
  - handlers.go: handler implementations
  - cmd/server/main.go: server startup
*/
package api

import (
	"net/http"

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
		// Client routes
		r.Route("/clients", func(r chi.Router) {
			r.Get("/", h.ListClients)
			r.Post("/", h.CreateClient)
			r.Get("/summaries", h.GetClientSummaries)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetClient)
				r.Put("/rate", h.UpdateClientRate)

				r.Post("/sessions", h.StartSession)
				r.Get("/sessions/active", h.GetActiveSession)

				r.Get("/summary", h.GetClientSummary)
				r.Get("/money-state", h.GetClientMoneyState)

				r.Post("/payment-requests", h.RequestPayment)
				r.Get("/payment-requests/pending", h.GetPendingRequest)

				r.Post("/payments", h.MarkPaid)
			})
		})

		// Session routes (addressed by session id)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Post("/end", h.EndSession)
			r.Put("/crew", h.UpdateCrewSize)
		})

		// Activity timeline
		r.Get("/activities", h.GetActivities)

		// Scenario routes (dev only)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
