package job

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/verumIgnis/busmapgen/internal/config"
	"github.com/verumIgnis/busmapgen/internal/db"
	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/maps"
	"github.com/verumIgnis/busmapgen/internal/render"
	"github.com/verumIgnis/busmapgen/internal/style"
)

// ErrInvalidSettings wraps every settings validation failure
var ErrInvalidSettings = errors.New("invalid settings")

// RouteStore supplies the route table and its geometry
type RouteStore interface {
	filter.GeometrySource
	ListRoutes(ctx context.Context) ([]filter.RouteRecord, error)
}

// RunStore records render runs
type RunStore interface {
	CreateRun(ctx context.Context, r db.NewRun) (string, error)
	FinishRun(ctx context.Context, id string, o db.Outcome) error
	FailRun(ctx context.Context, id string, cause error) error
}

// Request is one map to render. Settings must have their bounding box chosen.
type Request struct {
	Settings *config.Settings
	Preset   string
	Progress func(done, total int, last filter.Reason)
}

// Report describes a written map
type Report struct {
	RunID  string
	Path   string
	Width  int
	Height int
	*render.Result
}

// Renderer renders maps one at a time into a maps directory
type Renderer struct {
	routes  RouteStore
	runs    RunStore
	colors  style.ColorTable
	cities  []render.City
	mapsDir string

	mu sync.Mutex
}

// NewRenderer creates a renderer. runs may be nil, in which case runs are not recorded.
func NewRenderer(routes RouteStore, runs RunStore, colors style.ColorTable, cities []render.City, mapsDir string) *Renderer {
	return &Renderer{
		routes:  routes,
		runs:    runs,
		colors:  colors,
		cities:  cities,
		mapsDir: mapsDir,
	}
}

// Render validates the settings, draws every route and writes the next numbered PNG.
// Concurrent calls wait for each other.
func (r *Renderer) Render(ctx context.Context, req Request) (*Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := req.Settings.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}

	setup, err := render.NewSetup(req.Settings, r.colors, r.cities)
	if err != nil {
		return nil, fmt.Errorf("failed to set up render: %w", err)
	}
	defer setup.Canvas.Close()

	routes, err := r.routes.ListRoutes(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load routes: %w", err)
	}

	runID := r.createRun(ctx, req, setup)
	if req.Progress != nil {
		setup.Pipeline.OnProgress(req.Progress)
	}

	res, err := setup.Pipeline.Run(ctx, routes, r.routes)
	if err != nil {
		r.failRun(ctx, runID, err)
		return nil, err
	}

	path, err := maps.NextPath(r.mapsDir)
	if err == nil {
		err = maps.WritePNG(path, res.Image)
	}
	if err != nil {
		r.failRun(ctx, runID, err)
		return nil, err
	}

	if r.runs != nil && runID != "" {
		outcome := db.Outcome{
			Total:      res.Total,
			Drawn:      res.Drawn,
			Frequency:  res.Frequency,
			Tally:      res.Tally.Map(),
			OutputPath: path,
		}
		if err := r.runs.FinishRun(context.WithoutCancel(ctx), runID, outcome); err != nil {
			log.Printf("Warning: failed to record run %s: %v", runID, err)
		}
	}

	log.Printf("Rendered %d of %d routes to %s", res.Drawn, res.Total, path)
	return &Report{
		RunID:  runID,
		Path:   path,
		Width:  setup.Width,
		Height: setup.Height,
		Result: res,
	}, nil
}

func (r *Renderer) createRun(ctx context.Context, req Request, setup *render.Setup) string {
	if r.runs == nil {
		return ""
	}
	id, err := r.runs.CreateRun(context.WithoutCancel(ctx), db.NewRun{
		Preset:         req.Preset,
		BoundingBox:    append([]float64(nil), req.Settings.BoundingBox...),
		MetersPerPixel: req.Settings.MetersPerPixel,
		Width:          setup.Width,
		Height:         setup.Height,
	})
	if err != nil {
		log.Printf("Warning: failed to record run start: %v", err)
		return ""
	}
	return id
}

func (r *Renderer) failRun(ctx context.Context, id string, cause error) {
	if r.runs == nil || id == "" {
		return
	}
	if err := r.runs.FailRun(context.WithoutCancel(ctx), id, cause); err != nil {
		log.Printf("Warning: failed to mark run %s failed: %v", id, err)
	}
}
