package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/verumIgnis/busmapgen/internal/style"
)

func TestDefaultSettingsAreValid(t *testing.T) {
	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("default settings invalid: %v", err)
	}

	rules, err := s.Rules()
	if err != nil {
		t.Fatalf("Rules: %v", err)
	}
	if got := rules.ForFrequency(5); got.Width != 1 || got.Brightness != 80 {
		t.Errorf("ForFrequency(5) = %+v, want width 1 brightness 80", got)
	}
}

func TestLoadSettingsMissingFileUsesDefaults(t *testing.T) {
	s, loaded, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if loaded {
		t.Error("loaded should be false for a missing file")
	}
	if s.MetersPerPixel != 350 {
		t.Errorf("MetersPerPixel = %v, want default 350", s.MetersPerPixel)
	}
}

func TestLoadSettingsOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busmap.yaml")
	content := `
boundingBox: [-2.6, 53.3, -2.0, 53.65]
metersPerPixel: 50
excludeOperators: []
includeModes: [bus, tram]
styles:
  - {threshold: 10, width: 1, brightness: 100}
  - {threshold: 100, width: 4, brightness: 255}
routeLabels:
  enabled: true
  maxLength: 4
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, loaded, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	if !loaded {
		t.Error("loaded should be true")
	}
	if s.MetersPerPixel != 50 {
		t.Errorf("MetersPerPixel = %v, want 50", s.MetersPerPixel)
	}
	if len(s.ExcludeOperators) != 0 {
		t.Errorf("ExcludeOperators = %v, want empty", s.ExcludeOperators)
	}
	if len(s.IncludeModes) != 2 || s.IncludeModes[1] != "tram" {
		t.Errorf("IncludeModes = %v", s.IncludeModes)
	}
	if len(s.Styles) != 2 || s.Styles[1] != (style.Rule{Threshold: 100, Width: 4, Brightness: 255}) {
		t.Errorf("Styles = %+v", s.Styles)
	}
	if !s.RouteLabels.Enabled || s.RouteLabels.MaxLength != 4 {
		t.Errorf("RouteLabels = %+v", s.RouteLabels)
	}
	// untouched nested fields keep their defaults
	if s.RouteLabels.BoxPadding != 3 || s.RouteLabels.FontSize != 20 {
		t.Errorf("RouteLabels defaults lost: %+v", s.RouteLabels)
	}
	if _, ok := s.Presets["leeds"]; !ok {
		t.Error("default presets should survive")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadSettingsRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "busmap.yaml")
	if err := os.WriteFile(path, []byte("metersPerPixle: 50\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := LoadSettings(path); err == nil {
		t.Error("LoadSettings should reject a misspelled key")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		want   string
	}{
		{"inverted lon", func(s *Settings) { s.BoundingBox = []float64{2, 50, 1, 51} }, "minLon"},
		{"inverted lat", func(s *Settings) { s.BoundingBox = []float64{1, 52, 2, 51} }, "minLat"},
		{"short box", func(s *Settings) { s.BoundingBox = []float64{1, 2} }, "4 values"},
		{"zero scale", func(s *Settings) { s.MetersPerPixel = 0 }, "metersPerPixel"},
		{"zero hop", func(s *Settings) { s.MaxLineLength = 0 }, "maxLineLength"},
		{"min above max", func(s *Settings) { s.MinRouteLength = 10; s.MaxRouteLength = 5 }, "greater than maxRouteLength"},
		{"empty styles", func(s *Settings) { s.Styles = nil }, "styles must not be empty"},
		{"duplicate thresholds", func(s *Settings) {
			s.Styles = []style.Rule{{Threshold: 5, Width: 1}, {Threshold: 5, Width: 2}}
		}, "duplicate style threshold"},
		{"brightness range", func(s *Settings) { s.Styles[0].Brightness = 300 }, "brightness 300"},
		{"background", func(s *Settings) { s.Background = Color{1, 2} }, "background"},
		{"label length", func(s *Settings) {
			s.RouteLabels.Enabled = true
			s.RouteLabels.MaxLength = 0
		}, "routeLabels.maxLength"},
		{"bad preset", func(s *Settings) { s.Presets["broken"] = []float64{0, 0, 0, 0} }, "preset broken"},
		{"canvas too large", func(s *Settings) { s.MetersPerPixel = 1 }, "exceeds the limit"},
		{"canvas too small", func(s *Settings) { s.BoundingBox = []float64{-1, 53, -0.9999, 53.0001} }, "canvas is 0x0"},
		{"tiny scale", func(s *Settings) { s.MetersPerPixel = 1e-300 }, "exceeds the limit"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := DefaultSettings()
			tc.mutate(s)
			err := s.Validate()
			if err == nil {
				t.Fatal("Validate should fail")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestDefaultRulesWidthMonotonic(t *testing.T) {
	rules, err := DefaultSettings().Rules()
	if err != nil {
		t.Fatal(err)
	}
	prev := rules.ForFrequency(0).Width
	for f := 1; f <= 12000; f++ {
		w := rules.ForFrequency(f).Width
		if w < prev {
			t.Fatalf("width drops from %d to %d at frequency %d", prev, w, f)
		}
		prev = w
	}
}

func TestCanvasSize(t *testing.T) {
	s := DefaultSettings()
	w, h := s.CanvasSize()
	if w < 1 || h < 1 || w*h > MaxCanvasPixels {
		t.Errorf("default canvas %dx%d outside 1..%d pixels", w, h, MaxCanvasPixels)
	}
	for _, name := range s.PresetNames() {
		if err := s.UsePreset(name); err != nil {
			t.Fatal(err)
		}
		if err := s.Validate(); err != nil {
			t.Errorf("preset %s: %v", name, err)
		}
	}
}

func TestValidateJoinsMultipleErrors(t *testing.T) {
	s := DefaultSettings()
	s.MetersPerPixel = -1
	s.MaxLineLength = -1

	err := s.Validate()
	if err == nil {
		t.Fatal("Validate should fail")
	}
	if !strings.Contains(err.Error(), "metersPerPixel") || !strings.Contains(err.Error(), "maxLineLength") {
		t.Errorf("error should report both problems: %v", err)
	}
}

func TestUsePreset(t *testing.T) {
	s := DefaultSettings()
	if err := s.UsePreset("manchester"); err != nil {
		t.Fatalf("UsePreset: %v", err)
	}
	box := s.Box()
	if box.Min.Lon() != -2.6 || box.Max.Lat() != 53.65 {
		t.Errorf("Box = %v", box)
	}

	// the preset itself must not be aliased
	s.BoundingBox[0] = 99
	if s.Presets["manchester"][0] != -2.6 {
		t.Error("UsePreset should copy the preset box")
	}

	if err := s.UsePreset("atlantis"); err == nil {
		t.Error("unknown preset should fail")
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("DATA_DIR", "/srv/busmap")
	t.Setenv("ROUTE_SOURCE", "SQLite")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RETENTION_DAYS", "2")
	t.Setenv("GEOMETRY_CACHE_SIZE", "not a number")

	cfg := Load()
	if cfg.RoutesCSV != filepath.Join("/srv/busmap", "routes.csv") {
		t.Errorf("RoutesCSV = %q", cfg.RoutesCSV)
	}
	if cfg.RouteSource != SourceSQLite {
		t.Errorf("RouteSource = %q, want sqlite", cfg.RouteSource)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.RetentionDuration.Hours() != 48 {
		t.Errorf("RetentionDuration = %v, want 48h", cfg.RetentionDuration)
	}
	if cfg.GeometryCacheSize != 20000 {
		t.Errorf("GeometryCacheSize = %d, want default 20000", cfg.GeometryCacheSize)
	}
}
