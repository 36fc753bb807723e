package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/paulmach/orb"

	"github.com/verumIgnis/busmapgen/internal/api"
	"github.com/verumIgnis/busmapgen/internal/api/handlers"
	"github.com/verumIgnis/busmapgen/internal/config"
	"github.com/verumIgnis/busmapgen/internal/db"
	"github.com/verumIgnis/busmapgen/internal/job"
	"github.com/verumIgnis/busmapgen/internal/source"
)

// cachedRoutes puts an LRU geometry cache in front of a route store, since the
// server renders the same routes over and over
type cachedRoutes struct {
	job.RouteStore
	*source.CachedGeometry
}

func (c cachedRoutes) Geometry(ctx context.Context, serviceID string) (orb.Geometry, error) {
	return c.CachedGeometry.Geometry(ctx, serviceID)
}

func main() {
	// Load base .env first, then .env.local (which overrides for local development)
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	cfg := config.Load()
	log.Printf("Config loaded: source=%s, retention=%v", cfg.RouteSource, cfg.RetentionDuration)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Checking data files...")
	if err := source.EnsureDataFiles(ctx, cfg, source.NewHTTPClient()); err != nil {
		log.Printf("Warning: data refresh failed: %v", err)
	}

	database, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize SQLite database: %v", err)
	}
	defer database.Close()

	routes, release, err := job.OpenRoutes(ctx, cfg, database)
	if err != nil {
		log.Fatalf("Failed to open route source: %v", err)
	}
	defer release()

	colors, err := source.LoadOperatorColors(cfg.OperatorColorsCSV)
	if err != nil {
		log.Fatalf("Failed to load operator colours: %v", err)
	}
	cities, err := source.LoadCities(cfg.CitiesCSV)
	if err != nil {
		log.Fatalf("Failed to load cities: %v", err)
	}

	cache := source.NewCachedGeometry(routes, cfg.GeometryCacheSize, 0)
	store := cachedRoutes{RouteStore: routes, CachedGeometry: cache}
	renderer := job.NewRenderer(store, database, colors, cities, cfg.MapsDir)

	loadSettings := func() (*config.Settings, error) {
		s, _, err := config.LoadSettings(cfg.SettingsPath)
		return s, err
	}

	router := api.NewRouter(cfg.AllowedOrigins,
		handlers.NewHealthHandler(routes, cfg.RouteSource),
		handlers.NewRenderHandler(database, renderer, loadSettings, 10*time.Minute))

	go cleanupLoop(ctx, database, cfg.RetentionDuration, cache)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		log.Println("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Warning: shutdown: %v", err)
		}
	}()

	api.LogRoutes(cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server failed to start: %v", err)
	}
}

// cleanupLoop removes expired runs and their images once an hour
func cleanupLoop(ctx context.Context, database *db.DB, retention time.Duration, cache *source.CachedGeometry) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		paths, err := database.Cleanup(ctx, retention)
		if err != nil {
			log.Printf("Warning: cleanup failed: %v", err)
		}
		for _, p := range paths {
			if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
				log.Printf("Warning: failed to remove %s: %v", p, err)
			}
		}

		hits, misses := cache.Stats()
		log.Printf("Geometry cache: %d hits, %d misses", hits, misses)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			log.Println("Cleanup loop stopped")
			return
		}
	}
}
