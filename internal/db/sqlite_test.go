package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/metrics"
	"github.com/verumIgnis/busmapgen/internal/static/gtfs"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "busmap.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func imported(id string, freq int, g orb.Geometry) gtfs.Imported {
	return gtfs.Imported{
		Route: filter.RouteRecord{
			ServiceID:   id,
			Extent:      "[-2.3, 53.4, -2.2, 53.5]",
			RouteNumber: "R" + id,
			Frequency:   freq,
			IsPublic:    true,
			Mode:        "bus",
			Operator:    "FBRI",
		},
		Geometry: g,
	}
}

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := db.EnsureSchema(context.Background()); err != nil {
		t.Errorf("second EnsureSchema: %v", err)
	}
}

func TestRoutesRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	line := orb.LineString{{-2.3, 53.4}, {-2.2, 53.5}}

	n, err := db.UpsertRoutes(ctx, "", []gtfs.Imported{
		imported("b", 10, line),
		imported("a", 10, nil),
		imported("c", 2, orb.MultiLineString{line, line}),
	})
	if err != nil || n != 3 {
		t.Fatalf("UpsertRoutes = %d, %v", n, err)
	}

	routes, err := db.ListRoutes(ctx)
	if err != nil {
		t.Fatalf("ListRoutes: %v", err)
	}
	var ids []string
	for _, r := range routes {
		ids = append(ids, r.ServiceID)
	}
	if len(ids) != 3 || ids[0] != "c" || ids[1] != "a" || ids[2] != "b" {
		t.Errorf("order = %v, want [c a b] (frequency, then service id)", ids)
	}
	if routes[2] != imported("b", 10, nil).Route {
		t.Errorf("route b = %+v", routes[2])
	}

	g, err := db.Geometry(ctx, "b")
	if err != nil {
		t.Fatalf("Geometry(b): %v", err)
	}
	if !orb.Equal(g, line) {
		t.Errorf("Geometry(b) = %v", g)
	}
	if _, err := db.Geometry(ctx, "a"); !errors.Is(err, filter.ErrGeometryNotFound) {
		t.Errorf("Geometry(a) err = %v, want ErrGeometryNotFound", err)
	}
	if _, err := db.Geometry(ctx, "zzz"); !errors.Is(err, filter.ErrGeometryNotFound) {
		t.Errorf("Geometry(zzz) err = %v, want ErrGeometryNotFound", err)
	}
}

func TestGeometryBadData(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if _, err := db.UpsertRoutes(ctx, "", []gtfs.Imported{imported("x", 1, nil)}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.conn.Exec(`INSERT INTO route_geometries (service_id, geojson) VALUES ('x', '{"type":')`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Geometry(ctx, "x"); !errors.Is(err, filter.ErrBadGeometry) {
		t.Errorf("err = %v, want ErrBadGeometry", err)
	}
}

func TestUpsertRoutesFlagsBadGeometry(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	bad := imported("bad", 1, nil)
	bad.BadGeometry = true
	if _, err := db.UpsertRoutes(ctx, "", []gtfs.Imported{bad, imported("none", 1, nil)}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Geometry(ctx, "bad"); !errors.Is(err, filter.ErrBadGeometry) {
		t.Errorf("bad: err = %v, want ErrBadGeometry", err)
	}
	if _, err := db.Geometry(ctx, "none"); !errors.Is(err, filter.ErrGeometryNotFound) {
		t.Errorf("none: err = %v, want ErrGeometryNotFound", err)
	}
}

func TestUpsertRoutesReplacesNetwork(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	line := orb.LineString{{0, 0}, {1, 1}}

	if _, err := db.UpsertRoutes(ctx, "tfgm", []gtfs.Imported{imported("tfgm-1", 5, line), imported("tfgm-2", 6, line)}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpsertRoutes(ctx, "other", []gtfs.Imported{imported("other-1", 1, line)}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.UpsertRoutes(ctx, "tfgm", []gtfs.Imported{imported("tfgm-1", 7, line)}); err != nil {
		t.Fatal(err)
	}

	routes, err := db.ListRoutes(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(routes) != 2 || routes[0].ServiceID != "other-1" || routes[1].Frequency != 7 {
		t.Errorf("routes = %+v", routes)
	}
	if _, err := db.Geometry(ctx, "tfgm-2"); !errors.Is(err, filter.ErrGeometryNotFound) {
		t.Errorf("geometry of a dropped route should be gone, err = %v", err)
	}
	if n, _ := db.CountRoutes(ctx); n != 2 {
		t.Errorf("CountRoutes = %d, want 2", n)
	}
}

func TestRunLifecycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.CreateRun(ctx, NewRun{Preset: "leeds", BoundingBox: []float64{-1.7, 53.7, -1.4, 53.9}, MetersPerPixel: 20, Width: 100, Height: 80})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	run, err := db.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != RunRunning || run.FinishedAt != nil || run.Preset != "leeds" || len(run.BoundingBox) != 4 {
		t.Errorf("new run = %+v", run)
	}

	var freq metrics.Running
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		freq.Add(v)
	}
	err = db.FinishRun(ctx, id, Outcome{
		Total:      12,
		Drawn:      8,
		Frequency:  freq,
		Tally:      map[string]int{string(filter.ReasonOutOfBox): 3, string(filter.ReasonLowFrequency): 1},
		OutputPath: "maps/1.png",
	})
	if err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err = db.GetRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != RunFinished || run.FinishedAt == nil {
		t.Errorf("status = %s, finished = %v", run.Status, run.FinishedAt)
	}
	if run.Total != 12 || run.Drawn != 8 || run.OutputPath != "maps/1.png" {
		t.Errorf("run = %+v", run)
	}
	if run.Frequency.Count != 8 || run.Frequency.Mean != 5 || run.Frequency.Min != 2 || run.Frequency.Max != 9 {
		t.Errorf("frequency = %+v", run.Frequency)
	}
	if d := run.FrequencyStdDev - 2; d > 1e-9 || d < -1e-9 {
		t.Errorf("stddev = %v, want 2", run.FrequencyStdDev)
	}
	want := []TallyEntry{{Reason: "Low frequency", Count: 1}, {Reason: "Out of bounding box", Count: 3}}
	if len(run.Tally) != 2 || run.Tally[0] != want[0] || run.Tally[1] != want[1] {
		t.Errorf("tally = %+v, want %+v", run.Tally, want)
	}
}

func TestFailRunAndNotFound(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	id, err := db.CreateRun(ctx, NewRun{BoundingBox: []float64{0, 0, 1, 1}, MetersPerPixel: 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := db.FailRun(ctx, id, errors.New("canvas too large")); err != nil {
		t.Fatal(err)
	}
	run, err := db.GetRun(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != RunFailed || run.Error != "canvas too large" {
		t.Errorf("run = %+v", run)
	}

	if _, err := db.GetRun(ctx, "missing"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun err = %v, want ErrRunNotFound", err)
	}
	if err := db.FinishRun(ctx, "missing", Outcome{}); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FinishRun err = %v, want ErrRunNotFound", err)
	}
	if err := db.FailRun(ctx, "missing", nil); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("FailRun err = %v, want ErrRunNotFound", err)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := db.CreateRun(ctx, NewRun{BoundingBox: []float64{0, 0, 1, 1}, MetersPerPixel: 1})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	runs, err := db.ListRuns(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].ID != ids[2] || runs[1].ID != ids[1] {
		t.Errorf("runs = %v, want newest two of %v", runs, ids)
	}
}

func TestCleanup(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	oldID, _ := db.CreateRun(ctx, NewRun{BoundingBox: []float64{0, 0, 1, 1}, MetersPerPixel: 1})
	if err := db.FinishRun(ctx, oldID, Outcome{OutputPath: "maps/1.png", Tally: map[string]int{"Low frequency": 1}}); err != nil {
		t.Fatal(err)
	}
	stuckID, _ := db.CreateRun(ctx, NewRun{BoundingBox: []float64{0, 0, 1, 1}, MetersPerPixel: 1})
	newID, _ := db.CreateRun(ctx, NewRun{BoundingBox: []float64{0, 0, 1, 1}, MetersPerPixel: 1})

	old := time.Now().Add(-48 * time.Hour).UTC().Format(timeLayout)
	for _, id := range []string{oldID, stuckID} {
		if _, err := db.conn.Exec(`UPDATE render_runs SET created_at = ? WHERE run_id = ?`, old, id); err != nil {
			t.Fatal(err)
		}
	}

	paths, err := db.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if len(paths) != 1 || paths[0] != "maps/1.png" {
		t.Errorf("paths = %v", paths)
	}

	if _, err := db.GetRun(ctx, oldID); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("old run should be deleted, err = %v", err)
	}
	if _, err := db.GetRun(ctx, stuckID); err != nil {
		t.Errorf("running run should be kept: %v", err)
	}
	if _, err := db.GetRun(ctx, newID); err != nil {
		t.Errorf("recent run should be kept: %v", err)
	}
	var tally int
	db.conn.QueryRow(`SELECT COUNT(*) FROM render_tally`).Scan(&tally)
	if tally != 0 {
		t.Errorf("tally rows left = %d", tally)
	}
}
