package job

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/verumIgnis/busmapgen/internal/config"
	"github.com/verumIgnis/busmapgen/internal/db"
	"github.com/verumIgnis/busmapgen/internal/repository"
	"github.com/verumIgnis/busmapgen/internal/source"
)

// OpenRoutes returns the route store selected by cfg.RouteSource. local is the
// SQLite store used when the source is sqlite. The returned func releases the store.
func OpenRoutes(ctx context.Context, cfg *config.Config, local *db.DB) (RouteStore, func(), error) {
	switch cfg.RouteSource {
	case config.SourceCSV:
		log.Printf("Reading routes from %s, geometry from %s", cfg.RoutesCSV, cfg.GeometryDir)
		return source.CSVStore{
			RoutesPath:  cfg.RoutesCSV,
			GeometryDir: source.GeometryDir{Dir: cfg.GeometryDir},
		}, func() {}, nil

	case config.SourceSQLite:
		if local == nil {
			return nil, nil, errors.New("sqlite route source needs an open database")
		}
		return local, func() {}, nil

	case config.SourcePostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required for the postgres route source")
		}
		store, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown ROUTE_SOURCE %q (want %s, %s or %s)",
			cfg.RouteSource, config.SourceCSV, config.SourceSQLite, config.SourcePostgres)
	}
}
