package api

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/verumIgnis/busmapgen/internal/api/handlers"
)

// NewRouter wires the HTTP routes
func NewRouter(allowedOrigins []string, health *handlers.HealthHandler, renders *handlers.RenderHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	r.Get("/health", health.Health)

	r.Get("/api/renders", renders.ListRenders)
	r.Post("/api/renders", renders.CreateRender)
	r.Get("/api/renders/{runId}", renders.GetRender)
	r.Get("/api/renders/{runId}/image", renders.GetRenderImage)

	return r
}

// LogRoutes prints the endpoint list at start-up
func LogRoutes(port string) {
	log.Printf("API server starting on :%s", port)
	log.Println("Render endpoints:")
	log.Println("  GET  /api/renders")
	log.Println("  POST /api/renders")
	log.Println("  GET  /api/renders/{runId}")
	log.Println("  GET  /api/renders/{runId}/image")
	log.Println("Health:")
	log.Println("  GET  /health")
}
