/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RequestLogger: slog line per request
  3. Recoverer:     Panic recovery (500 instead of crash)
  4. Metrics:       Prometheus counters and latency per route
  5. CORS:          Cross-origin requests for the web client

ROUTE GROUPS:
  /healthz              Liveness (and store ping when configured)
  /metrics              Prometheus scrape endpoint
  /api/users            Registration (public, dev bootstrap)
  /api/scenarios/*      Demo scenarios (public)
  /api/cron/recurring   Sweep trigger (X-Cron-Secret)
  /api/*                Everything else requires a bearer token

SEE ALSO:
  - handlers.go: Handler implementations
  - middleware.go: Auth and logging middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	CORSOrigins []string
	CronSecret  string
	Metrics     *Metrics                        // defaults to a fresh registry
	Health      func(ctx context.Context) error // optional store ping
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Cron-Secret"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if opts.Health != nil {
			if err := opts.Health(r.Context()); err != nil {
				writeError(w, http.StatusServiceUnavailable, "Unhealthy", err)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/users", h.RegisterUser)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
		r.With(RequireCronSecret(opts.CronSecret)).Post("/cron/recurring", h.RunRecurring)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(RequireAuth(h.Tokens))

			r.Get("/me", h.GetMe)

			r.Route("/expenses", func(r chi.Router) {
				r.Get("/", h.ListExpenses)
				r.Post("/", h.CreateExpense)
			})
			r.Post("/settlements", h.CreateSettlement)
			r.Delete("/recurring/{id}", h.DeactivateRecurring)

			r.Get("/balances/summary", h.GetPersonalSummary)
			r.Get("/transactions", h.GetTransactions)
			r.Get("/analytics", h.GetAnalytics)

			r.Route("/friends", func(r chi.Router) {
				r.Get("/", h.ListFriends)
				r.Post("/", h.AddFriend)
				r.Get("/balances", h.GetFriendBalances)
			})

			r.Route("/groups", func(r chi.Router) {
				r.Get("/", h.ListGroups)
				r.Post("/", h.CreateGroup)
				r.Get("/{id}", h.GetGroup)
				r.Get("/{id}/balances", h.GetGroupBalances)
				r.Get("/{id}/expenses", h.GetGroupExpenses)
				r.Post("/{id}/members", h.AddGroupMember)
			})

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.ListNotifications)
				r.Post("/{id}/read", h.MarkNotificationRead)
			})
		})
	})

	return r
}
