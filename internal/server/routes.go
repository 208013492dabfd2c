package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/vaibhavdavedev/datashelf/internal/app"
)

// routes configures the router for the application role.
func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization", "X-Signature", "X-Timestamp", "X-Nonce"},
		MaxAge:         300,
	}))

	// System endpoints exist on both roles.
	r.Get("/health", s.app.APIHandler.HealthHandler)
	r.Get("/version", s.app.APIHandler.VersionHandler)

	if s.app.Role == app.RoleAPI {
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)

			r.Get("/navigation", s.app.CatalogHandler.GetNavigationHandler)
			r.Get("/categories", s.app.CatalogHandler.ListCategoriesHandler)
			r.Get("/categories/{id}", s.app.CatalogHandler.GetCategoryHandler)
			r.Get("/products", s.app.CatalogHandler.ListProductsHandler)
			r.Get("/products/{id}", s.app.CatalogHandler.GetProductHandler)
		})
	}

	if s.app.Role == app.RoleWorker {
		r.Post("/jobs", s.app.JobHandler.IntakeHandler)
		r.Get("/jobs/stats", s.app.JobHandler.StatsHandler)
		r.Get("/jobs/{id}", s.app.JobHandler.GetJobHandler)
		r.Post("/jobs/{id}/requeue", s.app.JobHandler.RequeueHandler)
	}

	r.NotFound(s.app.APIHandler.NotFoundHandler)

	return r
}
