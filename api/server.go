/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:      Unique ID per request for tracing
  2. CORS:           Cross-origin requests for frontends
  3. RequestLogger:  Structured request logs (httplog, ECS schema)
  4. Recoverer:      Panic recovery (500 instead of crash)
  5. Heartbeat:      GET /health for load balancers

ROUTE GROUPS:
  /api/policies/*       Policy table
  /api/employees/*      Employees, balances, applications, accruals, journal
  /api/applications/*   Approval queue and status transitions
  /api/admin/*          Bulk rebuild
  /api/scenarios/*      Demo scenarios

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"io"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string
}

// NewLogger builds the JSON logger shared by the service and request logs.
func NewLogger(out io.Writer, level slog.Level, env string) *slog.Logger {
	logFormat := httplog.SchemaECS.Concise(false)
	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "leave-engine"),
		slog.String("env", env),
	)
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(httplog.RequestLogger(h.Logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/health"))

	r.Route("/api", func(r chi.Router) {
		r.Get("/policies", h.ListPolicies)

		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetEmployee)
				r.Get("/balances", h.GetBalances)
				r.Post("/balances/rebuild", h.RebuildBalances)
				r.Post("/balances/adjust", h.AdjustBalance)
				r.Get("/accruals", h.GetAccruals)
				r.Get("/journal", h.GetJournal)
				r.Get("/applications", h.ListApplications)
				r.Post("/applications", h.SubmitApplication)
				r.Post("/applications/validate", h.ValidateApplication)
			})
		})

		// Application routes
		r.Route("/applications", func(r chi.Router) {
			r.Get("/pending", h.ListPendingApplications)
			r.Get("/{id}", h.GetApplication)
			r.Post("/{id}/approve", h.ApproveApplication)
			r.Post("/{id}/reject", h.RejectApplication)
			r.Post("/{id}/reopen", h.ReopenApplication)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rebuild", h.RebuildAll)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
