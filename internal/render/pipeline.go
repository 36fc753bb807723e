package render

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"strings"

	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/geo"
	"github.com/verumIgnis/busmapgen/internal/label"
	"github.com/verumIgnis/busmapgen/internal/metrics"
	"github.com/verumIgnis/busmapgen/internal/style"
)

// ErrAlreadyRun is returned when Run is called on a pipeline that has already run
var ErrAlreadyRun = errors.New("pipeline has already run")

// State is a pipeline phase
type State int

const (
	StateInit State = iota
	StateFiltering
	StateRasterizing
	StateLabelPass
	StateCityLabelPass
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateFiltering:
		return "filtering"
	case StateRasterizing:
		return "rasterizing"
	case StateLabelPass:
		return "label-pass"
	case StateCityLabelPass:
		return "city-label-pass"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Surface is where the pipeline draws. Calls arrive in pipeline order.
type Surface interface {
	Polyline(points []image.Point, width int, c style.RGB) error
	RouteLabel(text string, at image.Point, c style.RGB) error
	CityLabel(name string, at image.Point) error
	Snapshot() image.Image
}

// City is a named place drawn on top of the routes
type City struct {
	Name string
	Lon  float64
	Lat  float64
}

// Label is a route label captured during rasterization and drawn after every route
type Label struct {
	RouteNumber string
	Color       style.RGB
	Points      []image.Point
}

// LabelOptions controls route labels
type LabelOptions struct {
	Enabled   bool
	MaxLength int
	// Override replaces the route colour when set
	Override *style.RGB
}

// Options configures a Pipeline
type Options struct {
	Chain     *filter.Chain
	Colors    style.ColorTable
	Projector geo.Projector
	Labels    LabelOptions

	Cities          []City
	UppercaseCities bool

	// Progress is called after each record, if set
	Progress func(done, total int, last filter.Reason)
}

// Result summarizes a finished run
type Result struct {
	Total     int
	Drawn     int
	Tally     *filter.Tally
	Frequency metrics.Running
	Image     image.Image
}

// Pipeline filters, rasterizes and labels one map. A Pipeline runs once.
type Pipeline struct {
	opts    Options
	surface Surface
	state   State
	labels  []Label
}

// NewPipeline creates a pipeline drawing onto surface
func NewPipeline(opts Options, surface Surface) *Pipeline {
	return &Pipeline{opts: opts, surface: surface}
}

// OnProgress sets the progress callback
func (p *Pipeline) OnProgress(fn func(done, total int, last filter.Reason)) {
	p.opts.Progress = fn
}

// State returns the current phase
func (p *Pipeline) State() State {
	return p.state
}

// Run draws records in input order. Drawing order is the stacking order, so the same
// records in the same order always give the same image.
func (p *Pipeline) Run(ctx context.Context, records []filter.RouteRecord, geoms filter.GeometrySource) (*Result, error) {
	if p.state != StateInit {
		return nil, ErrAlreadyRun
	}

	res := &Result{Total: len(records), Tally: filter.NewTally()}
	var last filter.Reason

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("render cancelled after %d of %d routes: %w", i, len(records), err)
		}

		p.state = StateFiltering
		outcome := p.opts.Chain.Evaluate(ctx, rec, geoms)
		if !outcome.Accepted {
			res.Tally.Add(outcome.Reason)
			last = outcome.Reason
			p.progress(i+1, len(records), last)
			continue
		}

		p.state = StateRasterizing
		res.Drawn++
		res.Frequency.Add(float64(rec.Frequency))
		p.rasterize(rec, outcome)
		p.progress(i+1, len(records), last)
	}

	p.state = StateLabelPass
	for _, l := range p.labels {
		p.drawLabel(l)
	}

	p.state = StateCityLabelPass
	for _, c := range p.opts.Cities {
		name := c.Name
		if p.opts.UppercaseCities {
			name = strings.ToUpper(name)
		}
		at := p.opts.Projector.ToPixel(c.Lon, c.Lat)
		if err := p.surface.CityLabel(name, at); err != nil {
			log.Printf("Warning: failed to draw city %s: %v", c.Name, err)
		}
	}

	p.state = StateFinalized
	res.Image = p.surface.Snapshot()
	return res, nil
}

func (p *Pipeline) rasterize(rec filter.RouteRecord, outcome filter.Result) {
	color := p.opts.Colors.Resolve(rec.Operator, outcome.Style.Brightness)

	var anchorLine []image.Point
	for _, line := range outcome.Lines {
		if len(line) < 2 {
			continue
		}
		points := p.opts.Projector.ProjectLine(line)
		if err := p.surface.Polyline(points, outcome.Style.Width, color); err != nil {
			log.Printf("Warning: failed to draw service %s: %v", rec.ServiceID, err)
			continue
		}
		anchorLine = points
	}

	if !p.opts.Labels.Enabled || anchorLine == nil {
		return
	}
	labelColor := color
	if p.opts.Labels.Override != nil {
		labelColor = *p.opts.Labels.Override
	}
	p.labels = append(p.labels, Label{
		RouteNumber: rec.RouteNumber,
		Color:       labelColor,
		Points:      anchorLine,
	})
}

func (p *Pipeline) drawLabel(l Label) {
	if !label.Placeable(l.RouteNumber, p.opts.Labels.MaxLength) {
		return
	}
	at, ok := label.Anchor(l.Points)
	if !ok {
		return
	}
	if err := p.surface.RouteLabel(l.RouteNumber, at, l.Color); err != nil {
		log.Printf("Warning: failed to draw label %s: %v", l.RouteNumber, err)
	}
}

func (p *Pipeline) progress(done, total int, last filter.Reason) {
	if p.opts.Progress != nil {
		p.opts.Progress(done, total, last)
	}
}
