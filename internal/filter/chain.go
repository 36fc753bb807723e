package filter

import (
	"context"
	"errors"

	"github.com/paulmach/orb"

	"github.com/verumIgnis/busmapgen/internal/geo"
	"github.com/verumIgnis/busmapgen/internal/style"
)

var (
	// ErrGeometryNotFound is returned by a GeometrySource when a route has no stored geometry
	ErrGeometryNotFound = errors.New("geometry not found")
	// ErrBadGeometry is returned when stored geometry exists but cannot be decoded
	ErrBadGeometry = errors.New("geometry could not be decoded")
)

// RouteRecord is one row of the route table
type RouteRecord struct {
	ServiceID   string `json:"serviceId"`
	Extent      string `json:"extent"`
	RouteNumber string `json:"routeNumber"`
	Frequency   int    `json:"frequency"`
	IsPublic    bool   `json:"isPublicService"`
	Mode        string `json:"mode"`
	Operator    string `json:"operator"`

	// Malformed marks a row that could not be parsed. It is kept so the run's
	// total matches the input and is rejected before any other step.
	Malformed bool `json:"-"`
}

// GeometrySource looks up a route's line geometry by service id
type GeometrySource interface {
	Geometry(ctx context.Context, serviceID string) (orb.Geometry, error)
}

// Visibility selects routes by their public/private flag.
// OnlyPrivate takes precedence over ExcludePrivate.
type Visibility struct {
	ExcludePrivate bool
	OnlyPrivate    bool
}

// Options configures a Chain
type Options struct {
	Box        orb.Bound
	Scale      geo.Scale
	Visibility Visibility

	IncludeOperators []string
	ExcludeOperators []string
	IncludeModes     []string
	ExcludeModes     []string

	MinLength    float64 // meters, inclusive
	MaxLength    float64 // meters, inclusive
	MaxHopMeters float64

	Rules style.Rules
}

// Result is the outcome of evaluating one route. Lines and Style are set only when
// the route is accepted.
type Result struct {
	Accepted bool
	Reason   Reason
	Style    style.Rule
	Lines    []orb.LineString
}

// Chain applies the filter steps in a fixed order. It is safe for concurrent use once built.
type Chain struct {
	opts        Options
	includeOps  map[string]struct{}
	excludeOps  map[string]struct{}
	includeMode map[string]struct{}
	excludeMode map[string]struct{}
}

// NewChain builds a chain, turning the include/exclude lists into sets
func NewChain(opts Options) *Chain {
	return &Chain{
		opts:        opts,
		includeOps:  toSet(opts.IncludeOperators),
		excludeOps:  toSet(opts.ExcludeOperators),
		includeMode: toSet(opts.IncludeModes),
		excludeMode: toSet(opts.ExcludeModes),
	}
}

// Evaluate runs every step against rec and stops at the first failure.
// The cheap attribute checks run before any geometry is loaded.
func (c *Chain) Evaluate(ctx context.Context, rec RouteRecord, geoms GeometrySource) Result {
	if rec.Malformed {
		return reject(ReasonBadRecord)
	}

	if c.opts.Visibility.OnlyPrivate && rec.IsPublic {
		return reject(ReasonPublic)
	}
	if !c.opts.Visibility.OnlyPrivate && c.opts.Visibility.ExcludePrivate && !rec.IsPublic {
		return reject(ReasonPrivate)
	}

	if len(c.includeOps) > 0 && !contains(c.includeOps, rec.Operator) {
		return reject(ReasonOperatorNotIn)
	}
	if contains(c.excludeOps, rec.Operator) {
		return reject(ReasonOperatorExcluded)
	}
	if len(c.includeMode) > 0 && !contains(c.includeMode, rec.Mode) {
		return reject(ReasonModeNotIn)
	}
	if contains(c.excludeMode, rec.Mode) {
		return reject(ReasonModeExcluded)
	}

	extent, err := geo.ParseExtent(rec.Extent)
	if err != nil {
		return reject(ReasonBadBox)
	}
	if !geo.Intersects(extent, c.opts.Box) {
		return reject(ReasonOutOfBox)
	}

	diagonal := geo.DiagonalMeters(extent, c.opts.Scale)
	if diagonal > c.opts.MaxLength {
		return reject(ReasonTooLong)
	}
	if diagonal < c.opts.MinLength {
		return reject(ReasonTooShort)
	}

	rule := c.opts.Rules.ForFrequency(rec.Frequency)
	if !rule.Drawable() {
		return reject(ReasonLowFrequency)
	}

	g, err := geoms.Geometry(ctx, rec.ServiceID)
	switch {
	case errors.Is(err, ErrGeometryNotFound):
		return reject(ReasonGeometryMissing)
	case errors.Is(err, ErrBadGeometry):
		return reject(ReasonInvalidLine)
	case err != nil:
		return reject(ReasonGeometryIO)
	}

	lines, ok := geo.Lines(g)
	if !ok {
		return reject(ReasonInvalidLine)
	}

	if geo.SegmentTooLong(lines, c.opts.Scale, c.opts.MaxHopMeters) {
		return reject(ReasonSegmentTooLong)
	}

	return Result{Accepted: true, Style: rule, Lines: lines}
}

func reject(r Reason) Result {
	return Result{Reason: r}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func contains(set map[string]struct{}, v string) bool {
	_, ok := set[v]
	return ok
}
