package job

import (
	"context"
	"testing"

	"github.com/verumIgnis/busmapgen/internal/config"
	"github.com/verumIgnis/busmapgen/internal/db"
	"github.com/verumIgnis/busmapgen/internal/source"
)

func TestOpenRoutes(t *testing.T) {
	ctx := context.Background()
	local := openRuns(t)

	store, release, err := OpenRoutes(ctx, &config.Config{RouteSource: config.SourceCSV, RoutesCSV: "r.csv", GeometryDir: "g"}, nil)
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	release()
	if csv, ok := store.(source.CSVStore); !ok || csv.RoutesPath != "r.csv" || csv.Dir != "g" {
		t.Errorf("csv store = %#v", store)
	}

	store, _, err = OpenRoutes(ctx, &config.Config{RouteSource: config.SourceSQLite}, local)
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}
	if store.(*db.DB) != local {
		t.Error("sqlite source should be the local database")
	}

	failures := []*config.Config{
		{RouteSource: config.SourceSQLite},
		{RouteSource: config.SourcePostgres},
		{RouteSource: "parquet"},
	}
	for _, cfg := range failures {
		if _, _, err := OpenRoutes(ctx, cfg, nil); err == nil {
			t.Errorf("%s: expected an error", cfg.RouteSource)
		}
	}
}
