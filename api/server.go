/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table. This
  is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the front-end
  5. Auth:       Bearer token on /api, admin role on /api/admin

ROUTE GROUPS:
  /healthz              Liveness, no auth
  /ws/{employeeID}      Live notifications, authenticated in the handshake
  /api/requests/*       Request lifecycle
  /api/employees/*      Employees, balances, listings
  /api/supervisors/*    Supervisor inbox
  /api/admin/*          Reconciliation and sweep

SEE ALSO:
  - handlers.go: Handler implementations
  - auth/auth.go: Token verification
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/warp/leave-engine/auth"
	"github.com/warp/leave-engine/leave"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Verifier       auth.Verifier
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)
	r.Get("/ws/{employeeID}", h.Notifications)

	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(opts.Verifier))

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.CreateRequest)
			r.Get("/{id}", h.GetRequest)
			r.Put("/{id}", h.ModifyRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/reject", h.RejectRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
			r.Put("/{id}/refund", h.SetRefund)
			r.Put("/{id}/discount", h.SetDiscount)
		})

		r.Route("/employees", func(r chi.Router) {
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/requests", h.ListEmployeeRequests)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/effects", h.ListBalanceEffects)
			r.Put("/{id}/status", h.SetEmployeeStatus)
			r.Put("/{id}/historical", h.SetHistoricalBalance)
			r.Post("/{id}/recompute", h.RecomputeBalance)
		})

		r.Get("/supervisors/{id}/requests", h.ListSupervisorRequests)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireRole(leave.RoleAdmin))
			r.Get("/inconsistencies", h.ListInconsistencies)
			r.Post("/inconsistencies/retry", h.RetryOpenInconsistencies)
			r.Post("/inconsistencies/{id}/retry", h.RetryInconsistency)
			r.Post("/sweep", h.Sweep)
		})
	})

	return r
}

// Authenticate resolves the bearer token into an actor on the request context.
func Authenticate(v auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := auth.BearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "Missing bearer token", nil)
				return
			}
			actor, err := v.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid token", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole rejects actors without one of the given roles.
func RequireRole(roles ...leave.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, _ := auth.ActorFromContext(r.Context())
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Forbidden", nil)
		})
	}
}
