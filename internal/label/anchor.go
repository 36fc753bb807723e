// Package label places route number labels along drawn routes.
package label

import (
	"image"
	"math"
	"unicode/utf8"
)

// Anchor returns the point halfway along a polyline, measured by arc length.
// It reports false for fewer than two points or a line of zero length.
func Anchor(points []image.Point) (image.Point, bool) {
	if len(points) < 2 {
		return image.Point{}, false
	}

	distances := make([]float64, len(points))
	for i := 1; i < len(points); i++ {
		dx := float64(points[i].X - points[i-1].X)
		dy := float64(points[i].Y - points[i-1].Y)
		distances[i] = distances[i-1] + math.Hypot(dx, dy)
	}

	total := distances[len(distances)-1]
	if total == 0 {
		return image.Point{}, false
	}

	half := total / 2
	for i := 1; i < len(distances); i++ {
		if distances[i] < half {
			continue
		}
		a, b := points[i-1], points[i]
		ratio := (half - distances[i-1]) / (distances[i] - distances[i-1])
		return image.Point{
			X: int(float64(a.X) + ratio*float64(b.X-a.X)),
			Y: int(float64(a.Y) + ratio*float64(b.Y-a.Y)),
		}, true
	}

	// Unreachable for finite input, kept as a guard against float drift
	return points[len(points)/2], true
}

// Placeable reports whether text can be drawn as a label of at most maxLen characters
func Placeable(text string, maxLen int) bool {
	return text != "" && utf8.RuneCountInString(text) <= maxLen
}
