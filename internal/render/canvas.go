package render

import (
	"fmt"
	"image"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"

	"github.com/verumIgnis/busmapgen/internal/config"
	"github.com/verumIgnis/busmapgen/internal/style"
)

// CanvasOptions configures the raster surface
type CanvasOptions struct {
	Width      int
	Height     int
	Background style.RGB

	RouteFont       text.Face // nil disables route label text
	RouteLabelAlpha uint8
	LabelBackground style.RGB
	DrawLabelBox    bool
	LabelBoxWidth   int
	LabelBoxPadding int

	CityFont  text.Face // nil disables city labels
	CityColor style.RGB
	CityAlpha uint8
}

// Canvas is the production Surface, backed by a gg software context
type Canvas struct {
	dc   *gg.Context
	opts CanvasOptions
}

// NewCanvas allocates a canvas and fills it with the background colour
func NewCanvas(opts CanvasOptions) (*Canvas, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("canvas size %dx%d must be positive", opts.Width, opts.Height)
	}
	if int64(opts.Width)*int64(opts.Height) > config.MaxCanvasPixels {
		return nil, fmt.Errorf("canvas size %dx%d exceeds %d pixels", opts.Width, opts.Height, config.MaxCanvasPixels)
	}

	dc := gg.NewContext(opts.Width, opts.Height)
	bg := opts.Background
	dc.ClearWithColor(gg.RGB(unit(bg.R), unit(bg.G), unit(bg.B)))
	dc.SetLineCap(gg.LineCapRound)
	dc.SetLineJoin(gg.LineJoinRound)

	return &Canvas{dc: dc, opts: opts}, nil
}

// Polyline strokes an open path through points. Pixel coordinates are shifted to
// pixel centres so one-pixel lines stay crisp.
func (c *Canvas) Polyline(points []image.Point, width int, col style.RGB) error {
	if len(points) < 2 || width <= 0 {
		return nil
	}

	c.dc.SetRGB(unit(col.R), unit(col.G), unit(col.B))
	c.dc.SetLineWidth(float64(width))
	c.dc.MoveTo(center(points[0]))
	for _, pt := range points[1:] {
		c.dc.LineTo(center(pt))
	}
	return c.dc.Stroke()
}

// RouteLabel draws text centred on at, optionally inside a filled, outlined box
func (c *Canvas) RouteLabel(s string, at image.Point, col style.RGB) error {
	if c.opts.RouteFont == nil {
		return nil
	}
	c.dc.SetFont(c.opts.RouteFont)
	x, y := float64(at.X), float64(at.Y)

	if c.opts.DrawLabelBox {
		w, h := c.dc.MeasureString(s)
		pad := float64(c.opts.LabelBoxPadding)
		bx, by := x-w/2-pad, y-h/2-pad
		bw, bh := w+2*pad, h+2*pad

		bg := c.opts.LabelBackground
		c.dc.SetRGB(unit(bg.R), unit(bg.G), unit(bg.B))
		c.dc.DrawRectangle(bx, by, bw, bh)
		if err := c.dc.Fill(); err != nil {
			return fmt.Errorf("failed to fill label box: %w", err)
		}

		if c.opts.LabelBoxWidth > 0 {
			c.dc.SetRGB(unit(col.R), unit(col.G), unit(col.B))
			c.dc.SetLineWidth(float64(c.opts.LabelBoxWidth))
			c.dc.DrawRectangle(bx, by, bw, bh)
			if err := c.dc.Stroke(); err != nil {
				return fmt.Errorf("failed to outline label box: %w", err)
			}
		}
	}

	c.dc.SetRGBA(unit(col.R), unit(col.G), unit(col.B), unit(c.opts.RouteLabelAlpha))
	c.dc.DrawStringAnchored(s, x, y, 0.5, 0.5)
	return nil
}

// CityLabel draws a city name centred on at. Fully transparent labels are skipped.
func (c *Canvas) CityLabel(name string, at image.Point) error {
	if c.opts.CityFont == nil || c.opts.CityAlpha == 0 {
		return nil
	}
	col := c.opts.CityColor
	c.dc.SetFont(c.opts.CityFont)
	c.dc.SetRGBA(unit(col.R), unit(col.G), unit(col.B), unit(c.opts.CityAlpha))
	c.dc.DrawStringAnchored(name, float64(at.X), float64(at.Y), 0.5, 0.5)
	return nil
}

// Snapshot returns the finished image
func (c *Canvas) Snapshot() image.Image {
	_ = c.dc.FlushGPU()
	return c.dc.Image()
}

// Close releases the context
func (c *Canvas) Close() error {
	return c.dc.Close()
}

func unit(v uint8) float64 {
	return float64(v) / 255
}

func center(p image.Point) (float64, float64) {
	return float64(p.X) + 0.5, float64(p.Y) + 0.5
}
