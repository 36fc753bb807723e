package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/verumIgnis/busmapgen/internal/filter"
	"github.com/verumIgnis/busmapgen/internal/source"
	"github.com/verumIgnis/busmapgen/internal/static/gtfs"
)

// UpsertRoutes stores routes and their geometry in one transaction. When network is
// set, routes previously imported for that network and absent from routes are removed.
// A route with nil geometry keeps its record but loses any stored geometry; one
// flagged BadGeometry stores a marker that reads back as filter.ErrBadGeometry.
func (db *DB) UpsertRoutes(ctx context.Context, network string, routes []gtfs.Imported) (int, error) {
	db.LockWrite()
	defer db.UnlockWrite()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if network != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM route_geometries WHERE service_id IN (SELECT service_id FROM routes WHERE network = ?)`, network); err != nil {
			return 0, fmt.Errorf("failed to clear geometry for network %s: %w", network, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE network = ?`, network); err != nil {
			return 0, fmt.Errorf("failed to clear network %s: %w", network, err)
		}
	}

	routeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO routes (service_id, network, extent, route_number, frequency, is_public, mode, operator, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (service_id) DO UPDATE SET
			network = excluded.network,
			extent = excluded.extent,
			route_number = excluded.route_number,
			frequency = excluded.frequency,
			is_public = excluded.is_public,
			mode = excluded.mode,
			operator = excluded.operator,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare route insert: %w", err)
	}
	defer routeStmt.Close()

	geomStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO route_geometries (service_id, geojson) VALUES (?, ?)
		ON CONFLICT (service_id) DO UPDATE SET geojson = excluded.geojson
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare geometry insert: %w", err)
	}
	defer geomStmt.Close()

	updatedAt := now()
	for _, imp := range routes {
		r := imp.Route
		if _, err := routeStmt.ExecContext(ctx, r.ServiceID, network, r.Extent, r.RouteNumber,
			r.Frequency, r.IsPublic, r.Mode, r.Operator, updatedAt); err != nil {
			return 0, fmt.Errorf("failed to upsert route %s: %w", r.ServiceID, err)
		}

		if imp.BadGeometry {
			if _, err := geomStmt.ExecContext(ctx, r.ServiceID, source.UnreadableGeometry); err != nil {
				return 0, fmt.Errorf("failed to mark geometry for %s: %w", r.ServiceID, err)
			}
			continue
		}
		if imp.Geometry == nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM route_geometries WHERE service_id = ?`, r.ServiceID); err != nil {
				return 0, fmt.Errorf("failed to clear geometry for %s: %w", r.ServiceID, err)
			}
			continue
		}
		data, err := source.MarshalGeometry(imp.Geometry)
		if err != nil {
			return 0, fmt.Errorf("failed to encode geometry for %s: %w", r.ServiceID, err)
		}
		if _, err := geomStmt.ExecContext(ctx, r.ServiceID, string(data)); err != nil {
			return 0, fmt.Errorf("failed to upsert geometry for %s: %w", r.ServiceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit routes: %w", err)
	}
	return len(routes), nil
}

// ListRoutes returns every stored route, least frequent first so busier routes are
// drawn on top
func (db *DB) ListRoutes(ctx context.Context) ([]filter.RouteRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT service_id, extent, route_number, frequency, is_public, mode, operator
		FROM routes
		ORDER BY frequency, service_id
	`)
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
	return routes, rows.Err()
}

// CountRoutes returns the number of stored routes
func (db *DB) CountRoutes(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM routes`).Scan(&n)
	return n, err
}

// Geometry implements filter.GeometrySource
func (db *DB) Geometry(ctx context.Context, serviceID string) (orb.Geometry, error) {
	var data string
	err := db.conn.QueryRowContext(ctx, `SELECT geojson FROM route_geometries WHERE service_id = ?`, serviceID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %s: %w", serviceID, filter.ErrGeometryNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query geometry for %s: %w", serviceID, err)
	}
	return source.UnmarshalGeometry([]byte(data))
}
