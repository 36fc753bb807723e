package render

import (
	"context"
	"testing"

	"github.com/paulmach/orb"

	"github.com/verumIgnis/busmapgen/internal/config"
	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/style"
)

func TestNewSetupRendersPreset(t *testing.T) {
	s := config.DefaultSettings()
	if err := s.UsePreset("manchester"); err != nil {
		t.Fatal(err)
	}
	s.RouteLabels.Enabled = true
	s.CityLabels.Alpha = 255

	colors := style.NewColorTable(map[string]style.RGB{"FBRI": {200, 100, 50}})
	cities := []City{{Name: "Manchester", Lon: -2.24, Lat: 53.48}}

	setup, err := NewSetup(s, colors, cities)
	if err != nil {
		t.Fatalf("NewSetup: %v", err)
	}
	defer setup.Canvas.Close()

	if setup.Width <= 0 || setup.Height <= 0 {
		t.Fatalf("canvas %dx%d", setup.Width, setup.Height)
	}

	records := []filter.RouteRecord{
		{ServiceID: "1", Extent: "[-2.3, 53.4, -2.2, 53.5]", RouteNumber: "42", Frequency: 100, IsPublic: true, Operator: "FBRI"},
		{ServiceID: "2", Extent: "[-2.3, 53.4, -2.2, 53.5]", RouteNumber: "X", Frequency: 100, IsPublic: true, Operator: "NATX"},
	}
	geoms := mapSource{"1": orb.LineString{{-2.3, 53.4}, {-2.25, 53.45}, {-2.2, 53.5}}}

	res, err := setup.Pipeline.Run(context.Background(), records, geoms)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Drawn != 1 || res.Tally.Count(filter.ReasonOperatorExcluded) != 1 {
		t.Errorf("Drawn=%d tally=%v", res.Drawn, res.Tally.Map())
	}
	b := res.Image.Bounds()
	if b.Dx() != setup.Width || b.Dy() != setup.Height {
		t.Errorf("image %v, want %dx%d", b, setup.Width, setup.Height)
	}
}

func TestNewSetupBadFont(t *testing.T) {
	s := config.DefaultSettings()
	s.RouteLabels.Enabled = true
	s.RouteLabels.FontPath = "/nope/font.ttf"
	if _, err := NewSetup(s, style.NewColorTable(nil), nil); err == nil {
		t.Error("missing route label font should fail")
	}
}
