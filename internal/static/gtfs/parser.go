package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"strings"
)

// Parse reads a GTFS zip file and returns parsed data. Missing or unreadable
// member files are logged and left empty.
func Parse(zipPath string) (*Data, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}
	defer r.Close()

	data := &Data{
		Shapes: make(map[string][]ShapePoint),
	}

	// Build file map for easy lookup
	files := make(map[string]*zip.File)
	for _, f := range r.File {
		files[f.Name] = f
	}

	if f, ok := files["routes.txt"]; ok {
		if err := readFile(f, func(rec row) {
			routeType, _ := strconv.Atoi(rec.get("route_type"))
			data.Routes = append(data.Routes, Route{
				RouteID:        rec.get("route_id"),
				AgencyID:       rec.get("agency_id"),
				RouteShortName: rec.get("route_short_name"),
				RouteLongName:  rec.get("route_long_name"),
				RouteType:      routeType,
			})
		}); err != nil {
			log.Printf("Warning: failed to parse routes.txt: %v", err)
		}
	}

	if f, ok := files["trips.txt"]; ok {
		if err := readFile(f, func(rec row) {
			directionID, _ := strconv.Atoi(rec.get("direction_id"))
			data.Trips = append(data.Trips, Trip{
				RouteID:     rec.get("route_id"),
				ServiceID:   rec.get("service_id"),
				TripID:      rec.get("trip_id"),
				DirectionID: directionID,
				ShapeID:     rec.get("shape_id"),
			})
		}); err != nil {
			log.Printf("Warning: failed to parse trips.txt: %v", err)
		}
	}

	if f, ok := files["shapes.txt"]; ok {
		if err := readFile(f, func(rec row) {
			shapeID := rec.get("shape_id")
			lat, errLat := strconv.ParseFloat(rec.get("shape_pt_lat"), 64)
			lon, errLon := strconv.ParseFloat(rec.get("shape_pt_lon"), 64)
			if errLat != nil || errLon != nil {
				return
			}
			seq, _ := strconv.Atoi(rec.get("shape_pt_sequence"))
			data.Shapes[shapeID] = append(data.Shapes[shapeID], ShapePoint{
				ShapeID:         shapeID,
				ShapePtLat:      lat,
				ShapePtLon:      lon,
				ShapePtSequence: seq,
			})
		}); err != nil {
			log.Printf("Warning: failed to parse shapes.txt: %v", err)
		}

		// Sort each shape by sequence
		for shapeID := range data.Shapes {
			pts := data.Shapes[shapeID]
			sort.SliceStable(pts, func(i, j int) bool {
				return pts[i].ShapePtSequence < pts[j].ShapePtSequence
			})
		}
	}

	if f, ok := files["agency.txt"]; ok {
		if err := readFile(f, func(rec row) {
			data.Agency = append(data.Agency, Agency{
				AgencyID:   rec.get("agency_id"),
				AgencyName: rec.get("agency_name"),
			})
		}); err != nil {
			log.Printf("Warning: failed to parse agency.txt: %v", err)
		}
	}

	log.Printf("GTFS parsed: %d routes, %d trips, %d shapes, %d agencies",
		len(data.Routes), len(data.Trips), len(data.Shapes), len(data.Agency))

	return data, nil
}

// row is one CSV record with its header index
type row struct {
	record []string
	idx    map[string]int
}

func (r row) get(field string) string {
	return getField(r.record, r.idx, field)
}

// readFile calls fn for every well-formed record of a CSV member file
func readFile(f *zip.File, fn func(row)) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	reader := csv.NewReader(rc)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	idx := makeIndex(header)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue
		}
		fn(row{record: record, idx: idx})
	}
	return nil
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int)
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	return idx
}

func getField(record []string, idx map[string]int, field string) string {
	if i, ok := idx[field]; ok && i < len(record) {
		return strings.TrimSpace(record[i])
	}
	return ""
}
