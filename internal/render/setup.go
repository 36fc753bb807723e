package render

import (
	"fmt"

	"github.com/gogpu/gg/text"
	"github.com/paulmach/orb"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/verumIgnis/busmapgen/internal/config"
	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/geo"
	"github.com/verumIgnis/busmapgen/internal/style"
)

// LoadFace returns a face at size points from the font file at path,
// or from the built-in Go Regular font when path is empty.
func LoadFace(path string, size float64) (text.Face, error) {
	var (
		source *text.FontSource
		err    error
	)
	if path == "" {
		source, err = text.NewFontSource(goregular.TTF)
	} else {
		source, err = text.NewFontSourceFromFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load font %q: %w", path, err)
	}
	return source.Face(size), nil
}

// Setup is everything needed to render one map from settings
type Setup struct {
	Box       orb.Bound
	Projector geo.Projector
	Width     int
	Height    int
	Pipeline  *Pipeline
	Canvas    *Canvas
}

// NewSetup builds the filter chain, projector, canvas and pipeline for the settings'
// current bounding box. Settings must already be validated.
func NewSetup(s *config.Settings, colors style.ColorTable, cities []City) (*Setup, error) {
	rules, err := s.Rules()
	if err != nil {
		return nil, fmt.Errorf("invalid style table: %w", err)
	}

	box := s.Box()
	projector := geo.NewProjector(box, s.MetersPerPixel)
	width, height := projector.CanvasSize(box)

	chain := filter.NewChain(filter.Options{
		Box:   box,
		Scale: projector.Scale,
		Visibility: filter.Visibility{
			ExcludePrivate: s.IgnorePrivateRoutes,
			OnlyPrivate:    s.ShowOnlyPrivateRoutes,
		},
		IncludeOperators: s.IncludeOperators,
		ExcludeOperators: s.ExcludeOperators,
		IncludeModes:     s.IncludeModes,
		ExcludeModes:     s.ExcludeModes,
		MinLength:        s.MinRouteLength,
		MaxLength:        s.MaxRouteLength,
		MaxHopMeters:     s.MaxLineLength,
		Rules:            rules,
	})

	canvasOpts := CanvasOptions{
		Width:           width,
		Height:          height,
		Background:      s.Background.RGB(),
		RouteLabelAlpha: uint8(s.RouteLabels.Alpha),
		LabelBackground: s.RouteLabels.Background.RGB(),
		DrawLabelBox:    s.RouteLabels.DrawBox,
		LabelBoxWidth:   s.RouteLabels.BoxWidth,
		LabelBoxPadding: s.RouteLabels.BoxPadding,
		CityColor:       s.CityLabels.Color.RGB(),
		CityAlpha:       uint8(s.CityLabels.Alpha),
	}
	if s.RouteLabels.Enabled {
		if canvasOpts.RouteFont, err = LoadFace(s.RouteLabels.FontPath, s.RouteLabels.FontSize); err != nil {
			return nil, err
		}
	}
	if s.CityLabels.Alpha > 0 && len(cities) > 0 {
		if canvasOpts.CityFont, err = LoadFace(s.CityLabels.FontPath, s.CityLabels.FontSize); err != nil {
			return nil, err
		}
	}

	canvas, err := NewCanvas(canvasOpts)
	if err != nil {
		return nil, err
	}

	labels := LabelOptions{
		Enabled:   s.RouteLabels.Enabled,
		MaxLength: s.RouteLabels.MaxLength,
	}
	if s.RouteLabels.OverrideColor {
		c := s.RouteLabels.Color.RGB()
		labels.Override = &c
	}

	pipeline := NewPipeline(Options{
		Chain:           chain,
		Colors:          colors,
		Projector:       projector,
		Labels:          labels,
		Cities:          cities,
		UppercaseCities: s.CityLabels.Uppercase,
	}, canvas)

	return &Setup{
		Box:       box,
		Projector: projector,
		Width:     width,
		Height:    height,
		Pipeline:  pipeline,
		Canvas:    canvas,
	}, nil
}
