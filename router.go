package main

import (
	_ "embed"
	"net/http"

	"cropwise/blobstore"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	httpSwagger "github.com/swaggo/http-swagger"
)

//go:embed openapi.yaml
var openapiYAML []byte

// routes wires middlewares and endpoints. CORS origins come from CORS_ORIGINS.
func (a *App) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(a.log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=60")
		w.Write(openapiYAML)
	})

	r.Mount("/swagger", httpSwagger.Handler(
		httpSwagger.URL("/api/openapi.yaml"),
	))

	if local, ok := a.blobs.(*blobstore.Local); ok {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(local.Dir))))
	}

	r.Route("/api", func(api chi.Router) {
		api.Post("/auth/register", a.handleRegister)
		api.Post("/auth/login", a.handleLogin)

		api.Group(func(pr chi.Router) {
			pr.Use(a.authMiddleware)
			pr.Post("/auth/logout", a.handleLogout)
			pr.Get("/me", a.handleMe)
			pr.Get("/events", a.handleEvents)

			pr.Route("/farms", func(fr chi.Router) {
				fr.Get("/", a.handleListFarms)
				fr.Post("/", a.handleCreateFarm)
				fr.Get("/geojson", a.handleFarmsGeoJSON)
				fr.Get("/{id}", a.handleGetFarm)
				fr.Get("/{id}/crops", a.handleFarmCrops)
				fr.Get("/{id}/geojson", a.handleLandsGeoJSON)
			})

			pr.Route("/crops", func(cr chi.Router) {
				cr.Get("/", a.handleListCrops)
				cr.Post("/", a.handleCreateCrop)
				cr.Route("/{id}", func(c chi.Router) {
					c.Get("/", a.handleGetCrop)
					c.Put("/image", a.handleCropImage)
					c.Get("/controls", a.handleGetControls)
					c.Put("/controls/{key}", a.handleSetControl)
					c.Get("/sensors", a.handleSensors)
					c.Get("/sensors/stream", a.handleSensorStream)
					c.Post("/decide", a.handleDecide)
					c.Post("/feedback", a.handleFeedback)
					c.Get("/history", a.handleHistory)
					c.Get("/history.xlsx", a.handleHistoryXLSX)
					c.Post("/detect-disease", a.handleDetectDisease)
					c.Get("/journey", a.handleJourney)
					c.Get("/growth-stages", a.handleGrowthStages)
					c.Get("/rotation", a.handleRotation)
					c.Post("/yield", a.handleYield)
					c.Get("/details", a.handleCropDetails)
					c.Get("/advisory", a.handleAdvisory)
				})
			})

			pr.Get("/detections", a.handleDetections)
			pr.Get("/analytics", a.handleAnalytics)
			pr.Get("/model-metrics", a.handleModelMetrics)
			pr.Get("/dashboard", a.handleDashboard)
			pr.Get("/weather", a.handleWeather)
		})
	})

	return r
}
