package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bluele/gcache"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/verumIgnis/busmapgen/internal/filter"
)

// geometryFile is the on-disk layout of <serviceID>.json
type geometryFile struct {
	Geometry *geojson.Geometry `json:"geometry"`
}

// GeometryDir reads route geometry from one JSON file per service
type GeometryDir struct {
	Dir string
}

// Geometry loads <Dir>/<serviceID>.json
func (d GeometryDir) Geometry(ctx context.Context, serviceID string) (orb.Geometry, error) {
	if serviceID == "" || filepath.Base(serviceID) != serviceID {
		return nil, fmt.Errorf("service %q: %w", serviceID, filter.ErrGeometryNotFound)
	}

	data, err := os.ReadFile(filepath.Join(d.Dir, serviceID+".json"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("service %s: %w", serviceID, filter.ErrGeometryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read geometry for %s: %w", serviceID, err)
	}

	return DecodeGeometryFile(data)
}

// DecodeGeometryFile decodes a {"geometry": {...}} document
func DecodeGeometryFile(data []byte) (orb.Geometry, error) {
	var file geometryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %v", filter.ErrBadGeometry, err)
	}
	if file.Geometry == nil || file.Geometry.Coordinates == nil {
		return nil, fmt.Errorf("%w: no geometry member", filter.ErrBadGeometry)
	}
	return file.Geometry.Geometry(), nil
}

// EncodeGeometryFile is the inverse of DecodeGeometryFile
func EncodeGeometryFile(g orb.Geometry) ([]byte, error) {
	return json.Marshal(geometryFile{Geometry: geojson.NewGeometry(g)})
}

// WriteGeometry stores g as <dir>/<serviceID>.json
func WriteGeometry(dir, serviceID string, g orb.Geometry) error {
	data, err := EncodeGeometryFile(g)
	if err != nil {
		return fmt.Errorf("failed to encode geometry for %s: %w", serviceID, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, serviceID+".json"), data, 0644)
}

// MarshalGeometry encodes g as a bare GeoJSON geometry, the column format of the
// route_geometries table
func MarshalGeometry(g orb.Geometry) ([]byte, error) {
	return json.Marshal(geojson.NewGeometry(g))
}

// UnreadableGeometry is stored in place of geometry that exists at the source but
// could not be decoded. UnmarshalGeometry reports it as filter.ErrBadGeometry.
const UnreadableGeometry = "null"

// UnmarshalGeometry decodes a bare GeoJSON geometry written by MarshalGeometry
func UnmarshalGeometry(data []byte) (orb.Geometry, error) {
	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", filter.ErrBadGeometry, err)
	}
	if g.Coordinates == nil {
		return nil, fmt.Errorf("%w: empty geometry", filter.ErrBadGeometry)
	}
	return g.Geometry(), nil
}

// CachedGeometry keeps recently used geometry in an LRU cache in front of another
// source. Only successful lookups are cached.
type CachedGeometry struct {
	next  filter.GeometrySource
	cache gcache.Cache
}

// NewCachedGeometry wraps next with a cache of up to size entries kept for ttl.
// A zero ttl keeps entries until they are evicted.
func NewCachedGeometry(next filter.GeometrySource, size int, ttl time.Duration) *CachedGeometry {
	if size <= 0 {
		size = 1
	}
	builder := gcache.New(size).LRU()
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	return &CachedGeometry{next: next, cache: builder.Build()}
}

// Geometry returns the cached geometry or loads it from the wrapped source
func (c *CachedGeometry) Geometry(ctx context.Context, serviceID string) (orb.Geometry, error) {
	if cached, err := c.cache.Get(serviceID); err == nil {
		return cached.(orb.Geometry), nil
	}

	g, err := c.next.Geometry(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	_ = c.cache.Set(serviceID, g)
	return g, nil
}

// Stats reports cache hits and misses
func (c *CachedGeometry) Stats() (hits, misses uint64) {
	return c.cache.HitCount(), c.cache.MissCount()
}
