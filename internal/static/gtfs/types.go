package gtfs

// Data holds the parts of a GTFS feed needed to draw route maps
type Data struct {
	Routes []Route
	Trips  []Trip
	Shapes map[string][]ShapePoint // keyed by shape_id
	Agency []Agency
}

// Route represents a route from routes.txt
type Route struct {
	RouteID        string
	AgencyID       string
	RouteShortName string
	RouteLongName  string
	RouteType      int
}

// Trip represents a trip from trips.txt
type Trip struct {
	RouteID     string
	ServiceID   string
	TripID      string
	DirectionID int
	ShapeID     string
}

// ShapePoint represents a point from shapes.txt
type ShapePoint struct {
	ShapeID         string
	ShapePtLat      float64
	ShapePtLon      float64
	ShapePtSequence int
}

// Agency represents an agency from agency.txt
type Agency struct {
	AgencyID   string
	AgencyName string
}
