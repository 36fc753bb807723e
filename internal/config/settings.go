package config

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/paulmach/orb"
	"gopkg.in/yaml.v2"

	"github.com/verumIgnis/busmapgen/internal/geo"
	"github.com/verumIgnis/busmapgen/internal/style"
)

// MaxCanvasPixels caps width*height of the output image. The canvas is held in
// memory as RGBA, so this is roughly 200 MB.
const MaxCanvasPixels = 50_000_000

// Color is an [r, g, b] triple in 0-255
type Color []int

// RGB converts c to a style colour. Call Validate first.
func (c Color) RGB() style.RGB {
	if len(c) != 3 {
		return style.RGB{}
	}
	return style.RGB{R: uint8(c[0]), G: uint8(c[1]), B: uint8(c[2])}
}

func (c Color) validate(name string) error {
	if len(c) != 3 {
		return fmt.Errorf("%s must have 3 components, got %d", name, len(c))
	}
	for _, v := range c {
		if v < 0 || v > 255 {
			return fmt.Errorf("%s component %d out of range 0-255", name, v)
		}
	}
	return nil
}

// RouteLabelSettings controls route number labels
type RouteLabelSettings struct {
	Enabled       bool    `yaml:"enabled"`
	FontPath      string  `yaml:"fontPath"` // empty uses the built-in Go font
	FontSize      float64 `yaml:"fontSize"`
	Alpha         int     `yaml:"alpha"`
	OverrideColor bool    `yaml:"overrideColor"`
	Color         Color   `yaml:"color"`
	Background    Color   `yaml:"background"`
	DrawBox       bool    `yaml:"drawBox"`
	BoxWidth      int     `yaml:"boxWidth"`
	BoxPadding    int     `yaml:"boxPadding"`
	MaxLength     int     `yaml:"maxLength"`
}

// CityLabelSettings controls city name labels
type CityLabelSettings struct {
	FontPath  string  `yaml:"fontPath"`
	FontSize  float64 `yaml:"fontSize"`
	Color     Color   `yaml:"color"`
	Alpha     int     `yaml:"alpha"`
	Uppercase bool    `yaml:"uppercase"`
}

// Settings holds the render options. They are read from a YAML file and fall
// back to DefaultSettings for anything the file leaves out.
type Settings struct {
	BoundingBox    []float64            `yaml:"boundingBox"` // minLon, minLat, maxLon, maxLat
	Presets        map[string][]float64 `yaml:"presets"`
	MetersPerPixel float64              `yaml:"metersPerPixel"`
	MaxLineLength  float64              `yaml:"maxLineLength"` // meters between consecutive points
	Background     Color                `yaml:"background"`

	IgnorePrivateRoutes   bool `yaml:"ignorePrivateRoutes"`
	ShowOnlyPrivateRoutes bool `yaml:"showOnlyPrivateRoutes"`

	IncludeOperators []string `yaml:"includeOperators"`
	ExcludeOperators []string `yaml:"excludeOperators"`
	IncludeModes     []string `yaml:"includeModes"`
	ExcludeModes     []string `yaml:"excludeModes"`

	MinRouteLength float64 `yaml:"minRouteLength"`
	MaxRouteLength float64 `yaml:"maxRouteLength"`

	Styles []style.Rule `yaml:"styles"`

	RouteLabels RouteLabelSettings `yaml:"routeLabels"`
	CityLabels  CityLabelSettings  `yaml:"cityLabels"`
}

// DefaultSettings renders the whole of Great Britain with the stock style table
func DefaultSettings() *Settings {
	return &Settings{
		BoundingBox: []float64{-10.8, 49.85, 2.1, 59.5},
		Presets: map[string][]float64{
			"uk":         {-10.8, 49.85, 2.1, 59.5},
			"manchester": {-2.6, 53.3, -2, 53.65},
			"leeds":      {-1.75, 53.65, -1.35, 54.0},
			"london":     {-0.6, 51.2, 0.4, 51.75},
			"bristol":    {-2.8, 51.35, -2.4, 51.6},
		},
		MetersPerPixel: 350,
		MaxLineLength:  100000,
		Background:     Color{20, 20, 20},

		ExcludeOperators: []string{"NATX", "RSTY", "PCCO", "GTSL", "REPS", "TCNT", "HNTC", "VOLN", "HADC", "CATS", "WINS", "OCNT", "SHCO"},

		MinRouteLength: 0,
		MaxRouteLength: 1e10,

		Styles: []style.Rule{
			{Threshold: 8, Width: 1, Brightness: 80},
			{Threshold: 20, Width: 2, Brightness: 124},
			{Threshold: 70, Width: 2, Brightness: 169},
			{Threshold: 120, Width: 3, Brightness: 212},
			{Threshold: 10000, Width: 3, Brightness: 255},
		},

		RouteLabels: RouteLabelSettings{
			Enabled:    false,
			FontSize:   20,
			Alpha:      255,
			Color:      Color{255, 255, 255},
			Background: Color{15, 15, 15},
			DrawBox:    true,
			BoxWidth:   1,
			BoxPadding: 3,
			MaxLength:  8,
		},
		CityLabels: CityLabelSettings{
			FontSize:  32,
			Color:     Color{255, 255, 255},
			Alpha:     0,
			Uppercase: true,
		},
	}
}

// LoadSettings reads path over the defaults. A missing file is not an error:
// loaded is false and the defaults are returned.
func LoadSettings(path string) (s *Settings, loaded bool, err error) {
	s = DefaultSettings()
	if path == "" {
		return s, false, nil
	}

	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read settings %s: %w", path, err)
	}

	if err := yaml.UnmarshalStrict(b, s); err != nil {
		return nil, false, fmt.Errorf("failed to parse settings %s: %w", path, err)
	}
	return s, true, nil
}

// Box returns the configured bounding box
func (s *Settings) Box() orb.Bound {
	if len(s.BoundingBox) != 4 {
		return orb.Bound{}
	}
	return geo.NewBound(s.BoundingBox[0], s.BoundingBox[1], s.BoundingBox[2], s.BoundingBox[3])
}

// CanvasSize returns the pixel dimensions of the output image
func (s *Settings) CanvasSize() (width, height int) {
	box := s.Box()
	return geo.NewProjector(box, s.MetersPerPixel).CanvasSize(box)
}

// UsePreset replaces the bounding box with a named preset
func (s *Settings) UsePreset(name string) error {
	box, ok := s.Presets[name]
	if !ok {
		return fmt.Errorf("unknown preset %q (known: %v)", name, s.PresetNames())
	}
	s.BoundingBox = append([]float64(nil), box...)
	return nil
}

// PresetNames returns the preset names in sorted order
func (s *Settings) PresetNames() []string {
	names := make([]string, 0, len(s.Presets))
	for name := range s.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Rules builds the ordered style table
func (s *Settings) Rules() (style.Rules, error) {
	return style.NewRules(s.Styles)
}

// Validate checks every setting and returns all problems joined together
func (s *Settings) Validate() error {
	var errs []error

	if err := validateBox("boundingBox", s.BoundingBox); err != nil {
		errs = append(errs, err)
	}
	for _, name := range s.PresetNames() {
		if err := validateBox("preset "+name, s.Presets[name]); err != nil {
			errs = append(errs, err)
		}
	}

	if s.MetersPerPixel <= 0 {
		errs = append(errs, fmt.Errorf("metersPerPixel must be positive, got %v", s.MetersPerPixel))
	} else if validateBox("boundingBox", s.BoundingBox) == nil {
		if err := s.validateCanvas(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.MaxLineLength <= 0 {
		errs = append(errs, fmt.Errorf("maxLineLength must be positive, got %v", s.MaxLineLength))
	}
	if s.MinRouteLength < 0 {
		errs = append(errs, fmt.Errorf("minRouteLength must not be negative, got %v", s.MinRouteLength))
	}
	if s.MinRouteLength > s.MaxRouteLength {
		errs = append(errs, fmt.Errorf("minRouteLength %v is greater than maxRouteLength %v", s.MinRouteLength, s.MaxRouteLength))
	}

	if len(s.Styles) == 0 {
		errs = append(errs, errors.New("styles must not be empty"))
	} else if _, err := s.Rules(); err != nil {
		errs = append(errs, err)
	}
	for _, r := range s.Styles {
		if r.Brightness < 0 || r.Brightness > 255 {
			errs = append(errs, fmt.Errorf("style threshold %d brightness %d out of range 0-255", r.Threshold, r.Brightness))
		}
	}

	if err := s.Background.validate("background"); err != nil {
		errs = append(errs, err)
	}

	rl := s.RouteLabels
	if rl.Enabled {
		if rl.MaxLength <= 0 {
			errs = append(errs, fmt.Errorf("routeLabels.maxLength must be positive when labels are enabled, got %d", rl.MaxLength))
		}
		if rl.FontSize <= 0 {
			errs = append(errs, fmt.Errorf("routeLabels.fontSize must be positive, got %v", rl.FontSize))
		}
		if err := rl.Color.validate("routeLabels.color"); err != nil {
			errs = append(errs, err)
		}
		if err := rl.Background.validate("routeLabels.background"); err != nil {
			errs = append(errs, err)
		}
		if rl.Alpha < 0 || rl.Alpha > 255 {
			errs = append(errs, fmt.Errorf("routeLabels.alpha %d out of range 0-255", rl.Alpha))
		}
		if rl.BoxWidth < 0 || rl.BoxPadding < 0 {
			errs = append(errs, errors.New("routeLabels box width and padding must not be negative"))
		}
	}

	cl := s.CityLabels
	if cl.FontSize <= 0 {
		errs = append(errs, fmt.Errorf("cityLabels.fontSize must be positive, got %v", cl.FontSize))
	}
	if err := cl.Color.validate("cityLabels.color"); err != nil {
		errs = append(errs, err)
	}
	if cl.Alpha < 0 || cl.Alpha > 255 {
		errs = append(errs, fmt.Errorf("cityLabels.alpha %d out of range 0-255", cl.Alpha))
	}

	return errors.Join(errs...)
}

// validateCanvas checks the image size before anything is allocated. The pixel
// count is computed in floats so an absurd scale cannot overflow int.
func (s *Settings) validateCanvas() error {
	box := s.Box()
	p := geo.NewProjector(box, s.MetersPerPixel)
	w, h := p.Scale.Meters(box.Max.Lon()-box.Min.Lon(), box.Max.Lat()-box.Min.Lat())
	if pixels := (w / s.MetersPerPixel) * (h / s.MetersPerPixel); pixels > MaxCanvasPixels {
		return fmt.Errorf("canvas of %.0f pixels exceeds the limit of %d; raise metersPerPixel or shrink the bounding box", pixels, MaxCanvasPixels)
	}
	width, height := p.CanvasSize(box)
	if width < 1 || height < 1 {
		return fmt.Errorf("canvas is %dx%d pixels; lower metersPerPixel or grow the bounding box", width, height)
	}
	return nil
}

func validateBox(name string, box []float64) error {
	if len(box) != 4 {
		return fmt.Errorf("%s must have 4 values [minLon, minLat, maxLon, maxLat], got %d", name, len(box))
	}
	if box[0] >= box[2] {
		return fmt.Errorf("%s: minLon %v must be less than maxLon %v", name, box[0], box[2])
	}
	if box[1] >= box[3] {
		return fmt.Errorf("%s: minLat %v must be less than maxLat %v", name, box[1], box[3])
	}
	return nil
}
