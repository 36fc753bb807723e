package repository

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/paulmach/orb"

	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/static/gtfs"
)

func setupTestStore(t *testing.T) *PostgresStore {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set - skipping integration test")
	}

	store, err := NewPostgresStore(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("Failed to create test store: %v", err)
	}
	t.Cleanup(store.Close)

	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}
	return store
}

func TestPostgresRoutes(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	const network = "busmapgen-integration-test"
	t.Cleanup(func() {
		store.UpsertRoutes(context.Background(), network, nil)
	})

	line := orb.LineString{{-2.3, 53.4}, {-2.2, 53.5}}
	routes := []gtfs.Imported{
		{Route: filter.RouteRecord{ServiceID: network + "-1", Extent: "[-2.3, 53.4, -2.2, 53.5]", RouteNumber: "1", Frequency: 40, IsPublic: true, Mode: "bus", Operator: "TEST"}, Geometry: line},
		{Route: filter.RouteRecord{ServiceID: network + "-2", RouteNumber: "2", Frequency: 3, Mode: "bus", Operator: "TEST"}},
	}
	if _, err := store.UpsertRoutes(ctx, network, routes); err != nil {
		t.Fatalf("UpsertRoutes failed: %v", err)
	}

	all, err := store.ListRoutes(ctx)
	if err != nil {
		t.Fatalf("ListRoutes failed: %v", err)
	}
	found := 0
	for _, r := range all {
		if r == routes[0].Route || r == routes[1].Route {
			found++
		}
	}
	if found != 2 {
		t.Errorf("found %d of the 2 test routes in %d rows", found, len(all))
	}

	g, err := store.Geometry(ctx, network+"-1")
	if err != nil {
		t.Fatalf("Geometry failed: %v", err)
	}
	if !orb.Equal(g, line) {
		t.Errorf("Geometry = %v, want %v", g, line)
	}
	if _, err := store.Geometry(ctx, network+"-2"); !errors.Is(err, filter.ErrGeometryNotFound) {
		t.Errorf("err = %v, want ErrGeometryNotFound", err)
	}
}
