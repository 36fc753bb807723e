package geo

import (
	"encoding/json"
	"fmt"
	"image"
	"math"

	"github.com/paulmach/orb"
)

// Scale holds local meters per degree for both axes at a reference latitude
type Scale struct {
	Lat float64 // meters per degree of latitude
	Lon float64 // meters per degree of longitude
}

// MetersPerDegree approximates meters per degree on the WGS84 ellipsoid at the given latitude.
// The latitude axis uses cos(2φ) and cos(4φ) terms, the longitude axis cos(φ) and cos(3φ).
func MetersPerDegree(lat float64) Scale {
	phi := lat * math.Pi / 180
	return Scale{
		Lat: 111132.92 - 559.82*math.Cos(2*phi) + 1.175*math.Cos(4*phi),
		Lon: 111412.84*math.Cos(phi) - 93.5*math.Cos(3*phi),
	}
}

// Meters converts a lon/lat delta in degrees to planar meters
func (s Scale) Meters(dLon, dLat float64) (dx, dy float64) {
	return dLon * s.Lon, dLat * s.Lat
}

// Projector maps lon/lat to pixel coordinates for a fixed render box.
// The origin is the north-west corner of the box, so north is up.
type Projector struct {
	OriginLon      float64
	OriginLat      float64
	Scale          Scale
	MetersPerPixel float64
}

// NewProjector builds a projector for box, taking the scale at the box's centre latitude
func NewProjector(box orb.Bound, metersPerPixel float64) Projector {
	centerLat := (box.Min.Lat() + box.Max.Lat()) / 2
	return Projector{
		OriginLon:      box.Min.Lon(),
		OriginLat:      box.Max.Lat(),
		Scale:          MetersPerDegree(centerLat),
		MetersPerPixel: metersPerPixel,
	}
}

// ToPixel projects a lon/lat pair. Pixel values are truncated toward zero, never rounded,
// so output images are reproducible bit for bit.
func (p Projector) ToPixel(lon, lat float64) image.Point {
	dx := (lon - p.OriginLon) * p.Scale.Lon
	dy := (p.OriginLat - lat) * p.Scale.Lat
	return image.Point{
		X: int(dx / p.MetersPerPixel),
		Y: int(dy / p.MetersPerPixel),
	}
}

// ProjectLine projects every point of a line
func (p Projector) ProjectLine(line orb.LineString) []image.Point {
	points := make([]image.Point, len(line))
	for i, pt := range line {
		points[i] = p.ToPixel(pt.Lon(), pt.Lat())
	}
	return points
}

// CanvasSize returns the pixel dimensions covering box
func (p Projector) CanvasSize(box orb.Bound) (width, height int) {
	w, h := p.Scale.Meters(box.Max.Lon()-box.Min.Lon(), box.Max.Lat()-box.Min.Lat())
	return int(w / p.MetersPerPixel), int(h / p.MetersPerPixel)
}

// Intersects reports whether two boxes overlap. Boxes that only touch along an edge
// or a corner count as intersecting.
func Intersects(a, b orb.Bound) bool {
	return !(a.Max.Lon() < b.Min.Lon() ||
		a.Min.Lon() > b.Max.Lon() ||
		a.Max.Lat() < b.Min.Lat() ||
		a.Min.Lat() > b.Max.Lat())
}

// DiagonalMeters is the corner-to-corner length of box in meters.
// Used as a cheap stand-in for route length.
func DiagonalMeters(box orb.Bound, s Scale) float64 {
	dx, dy := s.Meters(box.Max.Lon()-box.Min.Lon(), box.Max.Lat()-box.Min.Lat())
	return math.Sqrt(dx*dx + dy*dy)
}

// NewBound builds a box from [minLon, minLat, maxLon, maxLat] without reordering corners
func NewBound(minLon, minLat, maxLon, maxLat float64) orb.Bound {
	return orb.Bound{
		Min: orb.Point{minLon, minLat},
		Max: orb.Point{maxLon, maxLat},
	}
}

// ParseExtent decodes a route extent stored as a JSON array
// [minLon, minLat, maxLon, maxLat].
func ParseExtent(raw string) (orb.Bound, error) {
	var values []float64
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return orb.Bound{}, fmt.Errorf("failed to decode extent %q: %w", raw, err)
	}
	if len(values) != 4 {
		return orb.Bound{}, fmt.Errorf("extent has %d values, want 4", len(values))
	}
	return NewBound(values[0], values[1], values[2], values[3]), nil
}
