package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpSwagger "github.com/swaggo/http-swagger"
)

// routes wires middlewares and endpoints. Adjust CORS_ORIGINS for your frontend hosts.
func (a *App) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(a.requestLogger)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: a.cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Write(openapiYAML)
	})

	r.Mount("/swagger", httpSwagger.Handler(
		httpSwagger.URL("/api/openapi.yaml"),
	))

	r.Route("/api", func(api chi.Router) {
		if a.cfg.RequestTimeout > 0 {
			api.Use(middleware.Timeout(a.cfg.RequestTimeout))
		}

		api.Get("/providers", a.handleProviders)
		api.Get("/scenes", a.handleSearchScenes)
		api.Get("/indices", a.handleGetIndices)
		api.Get("/raster", a.handleGetRaster)

		api.Route("/phenology", func(pr chi.Router) {
			pr.Get("/crops", a.handleListCrops)
			pr.Get("/timeline", a.handleTimeline)
			pr.Post("/batch", a.handleStageBatch)
		})

		api.Route("/boundaries", func(br chi.Router) {
			br.Post("/detect", a.handleDetectBoundaries)
			br.Post("/refine", a.handleRefineBoundary)
		})

		api.Route("/fields/{id}", func(fr chi.Router) {
			fr.Post("/analysis", a.handleAnalyzeField)
			fr.Post("/phenology", a.handleFieldPhenology)
			fr.Post("/boundary/change", a.handleBoundaryChange)
		})
	})

	return r
}
