package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/verahq/governance-core/app"
	"github.com/verahq/governance-core/handlers"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Get("/status", handlers.StatusHandler(deps))
		r.Post("/auth/login", handlers.LoginHandler(deps))

		// Session management
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Get("/auth/me", handlers.GetCurrentUserHandler(deps))
			r.Get("/auth/contexts", handlers.ListContextsHandler(deps))
			r.Post("/auth/context/switch", handlers.SwitchContextHandler(deps))
		})

		// Evaluation
		r.Group(func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.With(deps.AuthMiddleware.RequirePermission("decisions", "create")).
				Post("/evaluate", handlers.EvaluateHandler(deps))
		})

		// Policy snapshot management
		r.Route("/policies", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.With(deps.AuthMiddleware.RequirePermission("policies", "read")).
				Get("/active", handlers.GetActivePolicyHandler(deps))
			r.With(deps.AuthMiddleware.RequirePermission("policies", "read")).
				Get("/", handlers.GetPolicyByVersionHandler(deps))
			r.With(deps.AuthMiddleware.RequirePermission("policies", "read")).
				Get("/{id}", handlers.GetPolicyHandler(deps))
			r.With(deps.AuthMiddleware.RequirePermission("policies", "create")).
				Post("/", handlers.CreatePolicyHandler(deps))
			r.With(deps.AuthMiddleware.RequirePermission("policies", "activate")).
				Post("/{id}/activate", handlers.ActivatePolicyHandler(deps))
		})

		// Replay
		r.Route("/replay", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Use(deps.AuthMiddleware.RequirePermission("replay", "run"))
			r.Post("/bulk", handlers.BulkReplayHandler(deps))
			r.Post("/{decisionId}", handlers.ReplayDecisionHandler(deps))
		})

		// Enterprise and seat management
		r.Route("/enterprises", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.Post("/", handlers.CreateEnterpriseHandler(deps))
			r.Get("/{id}", handlers.GetEnterpriseHandler(deps))
			r.With(deps.AuthMiddleware.RequirePermission("seats", "create")).
				Post("/{id}/seats", handlers.CreateSeatHandler(deps))
			r.With(deps.AuthMiddleware.RequirePermission("seats", "read")).
				Get("/{id}/seats", handlers.ListSeatsHandler(deps))
		})

		// Decision records and audit trail
		r.Route("/audit", func(r chi.Router) {
			r.Use(deps.AuthMiddleware.RequireAuth)
			r.With(deps.AuthMiddleware.RequirePermission("decisions", "read")).
				Get("/decisions", handlers.ListDecisionsHandler(deps))
			r.With(deps.AuthMiddleware.RequirePermission("decisions", "read")).
				Get("/decisions/{id}", handlers.GetDecisionHandler(deps))
			r.Get("/trail", handlers.ListAuditTrailHandler(deps))
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}
