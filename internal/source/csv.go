package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/render"
	"github.com/verumIgnis/busmapgen/internal/style"
)

// RouteColumns is the header written and expected for route tables
var RouteColumns = []string{"serviceID", "extent", "routeNumber", "frequency", "isPublicService", "mode", "operator"}

// ReadRoutesCSV reads route records in file order. Rows with an unusable frequency
// or broken CSV are logged and returned with Malformed set, so they are tallied
// rather than lost.
func ReadRoutesCSV(r io.Reader) ([]filter.RouteRecord, error) {
	reader, idx, err := openCSV(r, "serviceID", "extent", "frequency")
	if err != nil {
		return nil, fmt.Errorf("failed to read routes header: %w", err)
	}

	var routes []filter.RouteRecord
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: bad routes line %d: %v", line, err)
			routes = append(routes, filter.RouteRecord{ServiceID: getField(record, idx, "serviceID"), Malformed: true})
			continue
		}

		serviceID := getField(record, idx, "serviceID")
		frequency, err := strconv.Atoi(getField(record, idx, "frequency"))
		if err != nil || frequency < 0 {
			log.Printf("Warning: service %s has bad frequency %q", serviceID, getField(record, idx, "frequency"))
			routes = append(routes, filter.RouteRecord{ServiceID: serviceID, Malformed: true})
			continue
		}

		routes = append(routes, filter.RouteRecord{
			ServiceID:   serviceID,
			Extent:      getField(record, idx, "extent"),
			RouteNumber: getField(record, idx, "routeNumber"),
			Frequency:   frequency,
			IsPublic:    strings.EqualFold(getField(record, idx, "isPublicService"), "true"),
			Mode:        getField(record, idx, "mode"),
			Operator:    getField(record, idx, "operator"),
		})
	}

	return routes, nil
}

// LoadRoutes reads the routes CSV at path
func LoadRoutes(path string) ([]filter.RouteRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open routes: %w", err)
	}
	defer f.Close()
	return ReadRoutesCSV(f)
}

// WriteRoutesCSV writes routes with the standard header
func WriteRoutesCSV(w io.Writer, routes []filter.RouteRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(RouteColumns); err != nil {
		return err
	}
	for _, r := range routes {
		err := writer.Write([]string{
			r.ServiceID,
			r.Extent,
			r.RouteNumber,
			strconv.Itoa(r.Frequency),
			strconv.FormatBool(r.IsPublic),
			r.Mode,
			r.Operator,
		})
		if err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadOperatorColors reads operator,color_r,color_g,color_b rows. Rows that fail to
// parse are logged and skipped. DEFAULT is white unless the file sets it.
func ReadOperatorColors(r io.Reader) (style.ColorTable, error) {
	reader, idx, err := openCSV(r, "operator", "color_r", "color_g", "color_b")
	if err != nil {
		return style.ColorTable{}, fmt.Errorf("failed to read operator colors header: %w", err)
	}

	entries := make(map[string]style.RGB)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: skipping operator color row: %v", err)
			continue
		}

		op := getField(record, idx, "operator")
		c, err := parseRGB(getField(record, idx, "color_r"), getField(record, idx, "color_g"), getField(record, idx, "color_b"))
		if err != nil {
			log.Printf("Warning: bad operator color for %s: %v", op, err)
			continue
		}
		entries[op] = c
	}

	return style.NewColorTable(entries), nil
}

// LoadOperatorColors reads the colour table at path. A missing file gives a table
// holding only the white DEFAULT.
func LoadOperatorColors(path string) (style.ColorTable, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		log.Printf("Warning: %s not found, using fallback white", path)
		return style.NewColorTable(nil), nil
	}
	if err != nil {
		return style.ColorTable{}, fmt.Errorf("failed to open operator colors: %w", err)
	}
	defer f.Close()
	return ReadOperatorColors(f)
}

// ReadCities reads name,longitude,latitude rows, skipping rows that fail to parse
func ReadCities(r io.Reader) ([]render.City, error) {
	reader, idx, err := openCSV(r, "name", "longitude", "latitude")
	if err != nil {
		return nil, fmt.Errorf("failed to read cities header: %w", err)
	}

	var cities []render.City
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Printf("Warning: skipping city row: %v", err)
			continue
		}

		name := getField(record, idx, "name")
		lon, errLon := strconv.ParseFloat(getField(record, idx, "longitude"), 64)
		lat, errLat := strconv.ParseFloat(getField(record, idx, "latitude"), 64)
		if errLon != nil || errLat != nil {
			log.Printf("Warning: failed to read city %s: bad coordinates", name)
			continue
		}
		cities = append(cities, render.City{Name: name, Lon: lon, Lat: lat})
	}

	return cities, nil
}

// LoadCities reads the cities CSV at path. A missing file yields no cities.
func LoadCities(path string) ([]render.City, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		log.Printf("Warning: %s not found, skipping city labels", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open cities: %w", err)
	}
	defer f.Close()
	return ReadCities(f)
}

func openCSV(r io.Reader, required ...string) (*csv.Reader, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return nil, nil, err
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	idx := makeIndex(header)
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			return nil, nil, fmt.Errorf("missing column %q", col)
		}
	}
	return reader, idx, nil
}

func parseRGB(r, g, b string) (style.RGB, error) {
	var out [3]uint8
	for i, s := range []string{r, g, b} {
		v, err := strconv.Atoi(s)
		if err != nil {
			return style.RGB{}, err
		}
		if v < 0 || v > 255 {
			return style.RGB{}, fmt.Errorf("channel %d out of range", v)
		}
		out[i] = uint8(v)
	}
	return style.RGB{R: out[0], G: out[1], B: out[2]}, nil
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

// CSVStore serves routes from the routes CSV and geometry from a directory of JSON
// files, the layout the data download produces
type CSVStore struct {
	RoutesPath string
	GeometryDir
}

// ListRoutes loads the routes CSV in file order
func (s CSVStore) ListRoutes(ctx context.Context) ([]filter.RouteRecord, error) {
	return LoadRoutes(s.RoutesPath)
}
