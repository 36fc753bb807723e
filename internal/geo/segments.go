package geo

import (
	"math"

	"github.com/paulmach/orb"
)

// SegmentTooLong reports whether any single hop between consecutive points in lines
// is longer than maxMeters. Distances are planar, using the same per-degree scale as
// the projection. A long hop is usually broken geometry or a long-distance coach, and
// the caller drops the whole route rather than truncating it.
func SegmentTooLong(lines []orb.LineString, s Scale, maxMeters float64) bool {
	for _, line := range lines {
		for i := 0; i < len(line)-1; i++ {
			dx, dy := s.Meters(line[i+1].Lon()-line[i].Lon(), line[i+1].Lat()-line[i].Lat())
			if math.Sqrt(dx*dx+dy*dy) > maxMeters {
				return true
			}
		}
	}
	return false
}

// Lines flattens a geometry into its line parts. Only LineString and MultiLineString
// are line geometries; anything else returns ok=false.
func Lines(g orb.Geometry) (lines []orb.LineString, ok bool) {
	switch v := g.(type) {
	case orb.LineString:
		return []orb.LineString{v}, true
	case orb.MultiLineString:
		return []orb.LineString(v), true
	default:
		return nil, false
	}
}
