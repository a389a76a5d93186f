package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the HTTP router.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Health check
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		// Model registry
		r.Route("/models", func(r chi.Router) {
			r.Get("/", h.ListModels)
			r.Post("/", h.RegisterModel)
			r.Post("/recommend", h.RecommendModel)
			r.Get("/{modelID}", h.GetModel)
			r.Put("/{modelID}/default", h.SetDefaultModel)
		})

		// Journey building
		r.Post("/journeys/build", h.BuildJourneys)

		// Attribution
		r.Route("/attribution", func(r chi.Router) {
			r.Post("/compute", h.ComputeAttribution)
			r.Post("/recompute", h.TriggerRecompute)
		})

		// Analytics
		r.Route("/analytics", func(r chi.Router) {
			r.Post("/channels", h.AggregateChannelPerformance)
			r.Get("/channels/snapshot", h.GetChannelReportSnapshot)
			r.Post("/patterns", h.AnalyzeJourneyPatterns)
		})
	})

	return r
}

func urlParam(r *http.Request, key string) string {
	return chi.URLParam(r, key)
}
