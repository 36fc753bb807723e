package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"

	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/source"
	"github.com/verumIgnis/busmapgen/internal/static/gtfs"
)

const schema = `
CREATE TABLE IF NOT EXISTS routes (
	service_id    TEXT PRIMARY KEY,
	network       TEXT NOT NULL DEFAULT '',
	extent        TEXT NOT NULL DEFAULT '',
	route_number  TEXT NOT NULL DEFAULT '',
	frequency     INTEGER NOT NULL DEFAULT 0,
	is_public     BOOLEAN NOT NULL DEFAULT TRUE,
	mode          TEXT NOT NULL DEFAULT '',
	operator      TEXT NOT NULL DEFAULT '',
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_routes_frequency ON routes (frequency, service_id);
CREATE TABLE IF NOT EXISTS route_geometries (
	service_id  TEXT PRIMARY KEY REFERENCES routes (service_id) ON DELETE CASCADE,
	geojson     TEXT NOT NULL
);
`

// PostgresStore reads routes and geometry from a shared Postgres database laid out
// like the local SQLite store
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// EnsureSchema creates the route tables if they don't exist
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// UpsertRoutes writes routes and geometry in one transaction, replacing the
// routes previously stored for network when it is set
func (s *PostgresStore) UpsertRoutes(ctx context.Context, network string, routes []gtfs.Imported) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if network != "" {
		if _, err := tx.Exec(ctx, `DELETE FROM routes WHERE network = $1`, network); err != nil {
			return 0, fmt.Errorf("failed to clear network %s: %w", network, err)
		}
	}

	batch := &pgx.Batch{}
	for _, imp := range routes {
		r := imp.Route
		batch.Queue(`
			INSERT INTO routes (service_id, network, extent, route_number, frequency, is_public, mode, operator, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
			ON CONFLICT (service_id) DO UPDATE SET
				network = EXCLUDED.network,
				extent = EXCLUDED.extent,
				route_number = EXCLUDED.route_number,
				frequency = EXCLUDED.frequency,
				is_public = EXCLUDED.is_public,
				mode = EXCLUDED.mode,
				operator = EXCLUDED.operator,
				updated_at = EXCLUDED.updated_at
		`, r.ServiceID, network, r.Extent, r.RouteNumber, r.Frequency, r.IsPublic, r.Mode, r.Operator)

		if imp.BadGeometry {
			batch.Queue(`
				INSERT INTO route_geometries (service_id, geojson) VALUES ($1, $2)
				ON CONFLICT (service_id) DO UPDATE SET geojson = EXCLUDED.geojson
			`, r.ServiceID, source.UnreadableGeometry)
			continue
		}
		if imp.Geometry == nil {
			batch.Queue(`DELETE FROM route_geometries WHERE service_id = $1`, r.ServiceID)
			continue
		}
		data, err := source.MarshalGeometry(imp.Geometry)
		if err != nil {
			return 0, fmt.Errorf("failed to encode geometry for %s: %w", r.ServiceID, err)
		}
		batch.Queue(`
			INSERT INTO route_geometries (service_id, geojson) VALUES ($1, $2)
			ON CONFLICT (service_id) DO UPDATE SET geojson = EXCLUDED.geojson
		`, r.ServiceID, string(data))
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("failed to upsert routes: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit routes: %w", err)
	}
	return len(routes), nil
}

// ListRoutes returns every route, least frequent first
func (s *PostgresStore) ListRoutes(ctx context.Context) ([]filter.RouteRecord, error) {
	query := `
		SELECT service_id, extent, route_number, frequency, is_public, mode, operator
		FROM routes
		ORDER BY frequency, service_id
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	var routes []filter.RouteRecord
	for rows.Next() {
		var r filter.RouteRecord
		if err := rows.Scan(&r.ServiceID, &r.Extent, &r.RouteNumber, &r.Frequency, &r.IsPublic, &r.Mode, &r.Operator); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating routes: %w", err)
	}

	return routes, nil
}

// Geometry implements filter.GeometrySource
func (s *PostgresStore) Geometry(ctx context.Context, serviceID string) (orb.Geometry, error) {
	var data string
	err := s.pool.QueryRow(ctx, `SELECT geojson FROM route_geometries WHERE service_id = $1`, serviceID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("service %s: %w", serviceID, filter.ErrGeometryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query geometry for %s: %w", serviceID, err)
	}
	return source.UnmarshalGeometry([]byte(data))
}
