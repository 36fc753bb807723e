package gtfs

import (
	"encoding/json"
	"sort"

	"github.com/paulmach/orb"

	"github.com/verumIgnis/busmapgen/internal/filter"
)

// Imported is a route record derived from a feed, with its line geometry.
// Geometry is nil when none of the route's trips reference a usable shape.
type Imported struct {
	Route    filter.RouteRecord
	Geometry orb.Geometry

	// BadGeometry is set when the source had geometry for the route that could not
	// be decoded, as opposed to having none at all
	BadGeometry bool
}

// ModeForRouteType maps basic and extended GTFS route types to a transport mode
func ModeForRouteType(t int) string {
	switch {
	case t == 0 || (t >= 900 && t < 1000):
		return "tram"
	case t == 1 || (t >= 400 && t < 500):
		return "metro"
	case t == 2 || (t >= 100 && t < 200):
		return "rail"
	case t == 3 || (t >= 700 && t < 800):
		return "bus"
	case t == 4 || (t >= 1000 && t < 1100) || (t >= 1200 && t < 1300):
		return "ferry"
	case t == 5 || t == 6 || (t >= 1300 && t < 1400):
		return "cable"
	case t == 7 || (t >= 1400 && t < 1500):
		return "funicular"
	case t == 11 || t == 800:
		return "trolleybus"
	case t == 12:
		return "monorail"
	case t >= 200 && t < 300:
		return "coach"
	case t >= 1100 && t < 1200:
		return "air"
	default:
		return ""
	}
}

// BuildRoutes converts a parsed feed into route records ordered by route id.
// Service ids are prefixed with network so several feeds can share one store.
//
// Frequency is the trip count of the route's busiest calendar (service_id), both
// directions together, which is the number of journeys on a typical day.
func BuildRoutes(data *Data, network string) []Imported {
	defaultAgency := ""
	if len(data.Agency) == 1 {
		defaultAgency = data.Agency[0].AgencyID
	}

	tripsPerService := make(map[string]map[string]int) // route -> service -> trips
	shapesPerRoute := make(map[string]map[string]struct{})
	for _, t := range data.Trips {
		if tripsPerService[t.RouteID] == nil {
			tripsPerService[t.RouteID] = make(map[string]int)
		}
		tripsPerService[t.RouteID][t.ServiceID]++

		if t.ShapeID == "" {
			continue
		}
		if shapesPerRoute[t.RouteID] == nil {
			shapesPerRoute[t.RouteID] = make(map[string]struct{})
		}
		shapesPerRoute[t.RouteID][t.ShapeID] = struct{}{}
	}

	routes := make([]Route, len(data.Routes))
	copy(routes, data.Routes)
	sort.Slice(routes, func(i, j int) bool { return routes[i].RouteID < routes[j].RouteID })

	out := make([]Imported, 0, len(routes))
	for _, r := range routes {
		frequency := 0
		for _, n := range tripsPerService[r.RouteID] {
			frequency = max(frequency, n)
		}

		operator := r.AgencyID
		if operator == "" {
			operator = defaultAgency
		}

		number := r.RouteShortName
		if number == "" {
			number = r.RouteLongName
		}

		serviceID := r.RouteID
		if network != "" {
			serviceID = network + "-" + r.RouteID
		}

		geom := routeGeometry(data.Shapes, shapesPerRoute[r.RouteID])
		extent := ""
		if geom != nil {
			extent = formatExtent(geom.Bound())
		}

		out = append(out, Imported{
			Route: filter.RouteRecord{
				ServiceID:   serviceID,
				Extent:      extent,
				RouteNumber: number,
				Frequency:   frequency,
				IsPublic:    true,
				Mode:        ModeForRouteType(r.RouteType),
				Operator:    operator,
			},
			Geometry: geom,
		})
	}

	return out
}

// routeGeometry joins the distinct shapes of a route, ordered by shape id.
// Shapes with fewer than two points are dropped.
func routeGeometry(shapes map[string][]ShapePoint, ids map[string]struct{}) orb.Geometry {
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	var lines orb.MultiLineString
	for _, id := range sorted {
		pts := shapes[id]
		if len(pts) < 2 {
			continue
		}
		line := make(orb.LineString, len(pts))
		for i, p := range pts {
			line[i] = orb.Point{p.ShapePtLon, p.ShapePtLat}
		}
		lines = append(lines, line)
	}

	switch len(lines) {
	case 0:
		return nil
	case 1:
		return lines[0]
	default:
		return lines
	}
}

func formatExtent(b orb.Bound) string {
	data, _ := json.Marshal([]float64{b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat()})
	return string(data)
}
