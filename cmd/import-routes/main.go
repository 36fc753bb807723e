package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/verumIgnis/busmapgen/internal/config"
	"github.com/verumIgnis/busmapgen/internal/db"
	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/repository"
	"github.com/verumIgnis/busmapgen/internal/source"
	"github.com/verumIgnis/busmapgen/internal/static/gtfs"
)

// routeWriter is implemented by both the SQLite and the Postgres store
type routeWriter interface {
	UpsertRoutes(ctx context.Context, network string, routes []gtfs.Imported) (int, error)
}

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")
	cfg := config.Load()

	dbPath := flag.String("db", cfg.DatabasePath, "Path to SQLite database")
	gtfsDir := flag.String("gtfs-dir", "", "Directory containing GTFS zip files; when empty the routes CSV and geometry directory are imported")
	routesCSV := flag.String("routes", cfg.RoutesCSV, "Routes CSV to import")
	geometryDir := flag.String("geometry-dir", cfg.GeometryDir, "Directory of <serviceID>.json geometry files")
	toPostgres := flag.Bool("postgres", false, "Write to DATABASE_URL instead of the SQLite database")
	flag.Parse()

	ctx := context.Background()

	var target routeWriter
	if *toPostgres {
		store, err := repository.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer store.Close()
		if err := store.EnsureSchema(ctx); err != nil {
			log.Fatalf("Failed to ensure schema: %v", err)
		}
		target = store
		log.Println("Connected to Postgres")
	} else {
		database, err := db.Open(ctx, *dbPath)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer database.Close()
		target = database
	}

	if *gtfsDir != "" {
		importGTFSDir(ctx, target, *gtfsDir)
	} else {
		n, err := importCSV(ctx, target, *routesCSV, *geometryDir)
		if err != nil {
			log.Fatalf("Failed to import %s: %v", *routesCSV, err)
		}
		log.Printf("Imported %d routes from %s", n, *routesCSV)
	}

	log.Println("Import complete!")
}

func importGTFSDir(ctx context.Context, target routeWriter, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Fatalf("Failed to read GTFS directory: %v", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}

		zipPath := filepath.Join(dir, entry.Name())
		network := deriveNetworkName(entry.Name())
		log.Printf("Processing %s as network '%s'...", entry.Name(), network)

		data, err := gtfs.Parse(zipPath)
		if err != nil {
			log.Printf("ERROR importing %s: %v", entry.Name(), err)
			continue
		}

		routes := gtfs.BuildRoutes(data, network)
		withGeometry := 0
		for _, r := range routes {
			if r.Geometry != nil {
				withGeometry++
			}
		}

		n, err := target.UpsertRoutes(ctx, network, routes)
		if err != nil {
			log.Printf("ERROR importing %s: %v", entry.Name(), err)
			continue
		}
		log.Printf("SUCCESS: %s imported (%d routes, %d with shapes)", entry.Name(), n, withGeometry)
	}
}

// importCSV loads the route table and attaches each route's geometry file. Routes
// without a file are stored without geometry; routes whose file cannot be decoded
// are flagged so they tally the same way as with the CSV source.
func importCSV(ctx context.Context, target routeWriter, routesPath, geometryDir string) (int, error) {
	records, err := source.LoadRoutes(routesPath)
	if err != nil {
		return 0, err
	}
	routes, skipped := attachGeometry(ctx, records, source.GeometryDir{Dir: geometryDir})
	if skipped > 0 {
		log.Printf("Warning: skipped %d malformed rows in %s", skipped, routesPath)
	}
	return target.UpsertRoutes(ctx, "", routes)
}

func attachGeometry(ctx context.Context, records []filter.RouteRecord, geoms filter.GeometrySource) (routes []gtfs.Imported, skipped int) {
	missing, bad := 0, 0
	for _, rec := range records {
		if rec.Malformed {
			skipped++
			continue
		}
		imp := gtfs.Imported{Route: rec}
		g, err := geoms.Geometry(ctx, rec.ServiceID)
		switch {
		case err == nil:
			imp.Geometry = g
		case errors.Is(err, filter.ErrGeometryNotFound):
			missing++
		case errors.Is(err, filter.ErrBadGeometry):
			log.Printf("Warning: %v", err)
			imp.BadGeometry = true
			bad++
		default:
			log.Printf("Warning: %v", err)
			missing++
		}
		routes = append(routes, imp)
	}
	if missing+bad > 0 {
		log.Printf("Warning: %d of %d routes have no geometry, %d have unreadable geometry", missing, len(routes), bad)
	}
	return routes, skipped
}

// deriveNetworkName extracts a network identifier from a feed file name
func deriveNetworkName(filename string) string {
	name := strings.ToLower(strings.TrimSuffix(filename, ".zip"))
	name = strings.TrimSuffix(name, "_gtfs")
	name = strings.TrimSuffix(name, "-gtfs")

	// Normalize names of the common UK feeds
	switch {
	case strings.Contains(name, "tfgm") || strings.Contains(name, "manchester"):
		return "tfgm"
	case strings.Contains(name, "tfl") || strings.Contains(name, "london"):
		return "tfl"
	case strings.Contains(name, "bods") || strings.Contains(name, "itm"):
		return "bods"
	default:
		return name
	}
}
