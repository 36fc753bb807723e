package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"

	"github.com/verumIgnis/busmapgen/internal/config"
	"github.com/verumIgnis/busmapgen/internal/db"
	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/style"
)

type memoryStore struct {
	routes []filter.RouteRecord
	geoms  map[string]orb.Geometry
	err    error
}

func (m *memoryStore) ListRoutes(context.Context) ([]filter.RouteRecord, error) {
	return m.routes, m.err
}

func (m *memoryStore) Geometry(_ context.Context, id string) (orb.Geometry, error) {
	g, ok := m.geoms[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, filter.ErrGeometryNotFound)
	}
	return g, nil
}

func bristolStore() *memoryStore {
	return &memoryStore{
		routes: []filter.RouteRecord{
			{ServiceID: "1", Extent: "[-2.6, 51.45, -2.5, 51.5]", RouteNumber: "72", Frequency: 30, IsPublic: true, Mode: "bus", Operator: "FBRI"},
			{ServiceID: "2", Extent: "[-2.6, 51.45, -2.5, 51.5]", RouteNumber: "X1", Frequency: 30, IsPublic: true, Mode: "bus", Operator: "FBRI"},
			{ServiceID: "3", Extent: "[1, 1, 2, 2]", RouteNumber: "9", Frequency: 30, IsPublic: true, Mode: "bus", Operator: "FBRI"},
		},
		geoms: map[string]orb.Geometry{
			"1": orb.LineString{{-2.6, 51.45}, {-2.55, 51.47}, {-2.5, 51.5}},
		},
	}
}

func bristolSettings(t *testing.T) *config.Settings {
	t.Helper()
	s := config.DefaultSettings()
	if err := s.UsePreset("bristol"); err != nil {
		t.Fatal(err)
	}
	return s
}

func openRuns(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.Open(context.Background(), filepath.Join(t.TempDir(), "busmap.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRenderWritesMapAndRecordsRun(t *testing.T) {
	runs := openRuns(t)
	mapsDir := filepath.Join(t.TempDir(), "maps")
	r := NewRenderer(bristolStore(), runs, style.NewColorTable(nil), nil, mapsDir)

	progressCalls := 0
	report, err := r.Render(context.Background(), Request{
		Settings: bristolSettings(t),
		Preset:   "bristol",
		Progress: func(done, total int, last filter.Reason) { progressCalls++ },
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	if report.Path != filepath.Join(mapsDir, "1.png") {
		t.Errorf("Path = %s", report.Path)
	}
	if _, err := os.Stat(report.Path); err != nil {
		t.Errorf("map not written: %v", err)
	}
	if report.Total != 3 || report.Drawn != 1 || progressCalls != 3 {
		t.Errorf("total=%d drawn=%d progress=%d", report.Total, report.Drawn, progressCalls)
	}

	run, err := runs.GetRun(context.Background(), report.RunID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != db.RunFinished || run.Preset != "bristol" || run.OutputPath != report.Path {
		t.Errorf("run = %+v", run)
	}
	if run.Width != report.Width || run.Drawn != 1 || run.Frequency.Mean != 30 {
		t.Errorf("run = %+v", run)
	}
	want := map[string]int{string(filter.ReasonGeometryMissing): 1, string(filter.ReasonOutOfBox): 1}
	if len(run.Tally) != 2 {
		t.Fatalf("tally = %+v", run.Tally)
	}
	for _, e := range run.Tally {
		if want[e.Reason] != e.Count {
			t.Errorf("tally %q = %d, want %d", e.Reason, e.Count, want[e.Reason])
		}
	}

	// the next render gets the next number
	report, err = r.Render(context.Background(), Request{Settings: bristolSettings(t)})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(report.Path) != "2.png" {
		t.Errorf("second map = %s", report.Path)
	}
}

func TestRenderWithoutRunStore(t *testing.T) {
	r := NewRenderer(bristolStore(), nil, style.NewColorTable(nil), nil, t.TempDir())
	report, err := r.Render(context.Background(), Request{Settings: bristolSettings(t)})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if report.RunID != "" || report.Drawn != 1 {
		t.Errorf("report = %+v", report)
	}
}

func TestRenderRejectsInvalidSettings(t *testing.T) {
	s := bristolSettings(t)
	s.Styles = nil
	r := NewRenderer(bristolStore(), nil, style.NewColorTable(nil), nil, t.TempDir())
	if _, err := r.Render(context.Background(), Request{Settings: s}); !errors.Is(err, ErrInvalidSettings) {
		t.Errorf("err = %v, want ErrInvalidSettings", err)
	}
}

func TestRenderStoreError(t *testing.T) {
	store := bristolStore()
	store.err = errors.New("database is locked")
	r := NewRenderer(store, nil, style.NewColorTable(nil), nil, t.TempDir())
	if _, err := r.Render(context.Background(), Request{Settings: bristolSettings(t)}); err == nil {
		t.Error("Render should fail when routes cannot be listed")
	}
}

func TestRenderCancelledMarksRunFailed(t *testing.T) {
	runs := openRuns(t)
	mapsDir := t.TempDir()
	r := NewRenderer(bristolStore(), runs, style.NewColorTable(nil), nil, mapsDir)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, Request{Settings: bristolSettings(t)}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}

	list, err := runs.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Status != db.RunFailed {
		t.Errorf("runs = %+v", list)
	}
	entries, _ := os.ReadDir(mapsDir)
	if len(entries) != 0 {
		t.Errorf("cancelled render wrote %d files", len(entries))
	}
}
