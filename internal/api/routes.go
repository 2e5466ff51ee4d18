package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures the router: middleware, health probes, the
// Prometheus endpoint and the /api/imports resource.
func SetupRoutes(h *Handlers, hc *HealthChecker) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	// Health probes (no auth, outside /api)
	r.Get("/health", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)
	r.Get("/health/ready", hc.HandleReadiness)

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/imports", func(r chi.Router) {
			r.Post("/", h.HandleCreateImport)
			r.Get("/", h.HandleListJobs)
			r.Post("/preview", h.HandlePreviewImport)
			r.Get("/formats", h.HandleFormats)

			r.Route("/{jobID}", func(r chi.Router) {
				r.Get("/", h.HandleGetJob)
				r.Delete("/", h.HandleDeleteJob)
				r.Get("/progress", h.HandleGetProgress)
				r.Get("/schema", h.HandleGetSchema)
				r.Get("/records", h.HandleListRecords)
				r.Get("/records/search", h.HandleSearchRecords)
			})
		})
	})

	return r
}
