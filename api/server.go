/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address from proxy headers
  3. Logger:     zap request logging (RequestLogger)
  4. Recoverer:  Panic recovery (500 instead of crash)
  5. CORS:       Cross-origin requests for the chat front-end

ROUTE GROUPS:
  /leave-response       Supervisor decision links
  /api/interns/*        Roster, balances, applications per intern
  /api/applications/*   Application lookup
  /healthz              Liveness and store health
  /metrics              Prometheus scrape endpoint (optional)

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tunes the outer surface of the router.
type RouterOptions struct {
	// AllowedOrigins for CORS. Empty allows any origin without credentials.
	AllowedOrigins []string

	// Metrics serves /metrics when set.
	Metrics http.Handler
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.Logger))
	r.Use(middleware.Recoverer)

	origins := opts.AllowedOrigins
	credentials := len(origins) > 0
	if !credentials {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: credentials,
	}))

	r.Get("/leave-response", h.LeaveResponse)
	r.Get("/healthz", h.Healthz)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/interns", func(r chi.Router) {
			r.Post("/", h.CreateIntern)
			r.Route("/{handle}", func(r chi.Router) {
				r.Get("/", h.GetIntern)
				r.Delete("/", h.DeleteIntern)
				r.Get("/balance", h.GetBalance)
				r.Post("/applications", h.SubmitApplication)
				r.Get("/applications/upcoming", h.ListUpcoming)
				r.Post("/applications/{id}/cancel", h.CancelApplication)
			})
		})

		r.Get("/applications/{id}", h.GetApplication)
	})

	return r
}
