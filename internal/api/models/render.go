package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Scale limits accepted from API callers
const (
	MinMetersPerPixel = 1
	MaxMetersPerPixel = 10000
)

// CreateRenderRequest is the body of POST /api/renders. Exactly one of Preset and
// BoundingBox must be set.
type CreateRenderRequest struct {
	Preset         string    `json:"preset,omitempty"`
	BoundingBox    []float64 `json:"bbox,omitempty"`
	MetersPerPixel *float64  `json:"metersPerPixel,omitempty"`
}

// Validate checks the request shape. Box ordering and scale limits are checked
// later with the rest of the settings.
func (r *CreateRenderRequest) Validate() error {
	if r.Preset == "" && len(r.BoundingBox) == 0 {
		return errors.New("preset or bbox is required")
	}
	if r.Preset != "" && len(r.BoundingBox) > 0 {
		return errors.New("preset and bbox are mutually exclusive")
	}
	if len(r.BoundingBox) > 0 && len(r.BoundingBox) != 4 {
		return fmt.Errorf("bbox must be [minLon, minLat, maxLon, maxLat], got %d values", len(r.BoundingBox))
	}
	if r.MetersPerPixel != nil {
		if m := *r.MetersPerPixel; m < MinMetersPerPixel || m > MaxMetersPerPixel {
			return fmt.Errorf("metersPerPixel must be between %d and %d, got %v", MinMetersPerPixel, MaxMetersPerPixel, m)
		}
	}
	return nil
}

// RenderSummary is the response of POST /api/renders
type RenderSummary struct {
	RunID       string         `json:"runId,omitempty"`
	File        string         `json:"file"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	TotalRoutes int            `json:"totalRoutes"`
	DrawnRoutes int            `json:"drawnRoutes"`
	Rejected    map[string]int `json:"rejected"`
	RenderedAt  time.Time      `json:"renderedAt"`
}

// ValidRunID reports whether id looks like a run id
func ValidRunID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
