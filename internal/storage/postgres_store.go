package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/example/bus-tracking/internal/models"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore persists fixes and reads route/stop metadata from
// postgres. Schema lives in migrations/001_create_tracking.sql.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) DB() *sql.DB { return p.db }

func (p *PostgresStore) RecordFix(ctx context.Context, fix *models.PositionFix) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO position_fixes(driver_id, vehicle_id, latitude, longitude, captured_at)
		 VALUES($1, $2, $3, $4, $5) RETURNING id`,
		fix.DriverID, nullString(fix.VehicleID), fix.Loc.Lat, fix.Loc.Lon, fix.CapturedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%w: record fix: %v", ErrUnavailable, err)
	}
	fix.ID = id
	return id, nil
}

func (p *PostgresStore) LatestFixByVehicle(ctx context.Context, vehicleID string) (*models.PositionFix, error) {
	return p.latestFix(ctx, `vehicle_id = $1`, vehicleID)
}

func (p *PostgresStore) LatestFixByDriver(ctx context.Context, driverID string) (*models.PositionFix, error) {
	return p.latestFix(ctx, `driver_id = $1`, driverID)
}

func (p *PostgresStore) latestFix(ctx context.Context, where, arg string) (*models.PositionFix, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, driver_id, COALESCE(vehicle_id, ''), latitude, longitude, captured_at
		 FROM position_fixes WHERE `+where+` ORDER BY captured_at DESC LIMIT 1`, arg)
	var f models.PositionFix
	err := row.Scan(&f.ID, &f.DriverID, &f.VehicleID, &f.Loc.Lat, &f.Loc.Lon, &f.CapturedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: latest fix: %v", ErrUnavailable, err)
	}
	return &f, nil
}

func (p *PostgresStore) RouteByID(ctx context.Context, id int64) (*models.Route, error) {
	return p.route(ctx, `id = $1`, id)
}

func (p *PostgresStore) ActiveRouteForDriver(ctx context.Context, driverID string) (*models.Route, error) {
	return p.route(ctx, `driver_id = $1 AND active`, driverID)
}

func (p *PostgresStore) ActiveRouteForVehicle(ctx context.Context, vehicleID string) (*models.Route, error) {
	return p.route(ctx, `vehicle_id = $1 AND active`, vehicleID)
}

func (p *PostgresStore) route(ctx context.Context, where string, arg any) (*models.Route, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, name, origin, destination, vehicle_id, COALESCE(driver_id, ''), active
		 FROM routes WHERE `+where+` LIMIT 1`, arg)
	var r models.Route
	err := row.Scan(&r.ID, &r.Name, &r.Origin, &r.Destination, &r.VehicleID, &r.DriverID, &r.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: route: %v", ErrUnavailable, err)
	}
	return &r, nil
}

func (p *PostgresStore) ActiveRoutes(ctx context.Context) ([]models.Route, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, name, origin, destination, vehicle_id, COALESCE(driver_id, ''), active
		 FROM routes WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%w: active routes: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []models.Route
	for rows.Next() {
		var r models.Route
		if err := rows.Scan(&r.ID, &r.Name, &r.Origin, &r.Destination, &r.VehicleID, &r.DriverID, &r.Active); err != nil {
			return nil, fmt.Errorf("%w: scan route: %v", ErrUnavailable, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *PostgresStore) StopsForRoute(ctx context.Context, routeID int64) ([]models.Stop, error) {
	return p.stops(ctx,
		`SELECT id, route_id, name, location_name, stop_order, latitude, longitude
		 FROM route_stops WHERE route_id = $1 ORDER BY stop_order`, routeID)
}

func (p *PostgresStore) AllStops(ctx context.Context) ([]models.Stop, error) {
	return p.stops(ctx,
		`SELECT id, route_id, name, location_name, stop_order, latitude, longitude
		 FROM route_stops ORDER BY id`)
}

func (p *PostgresStore) StopByID(ctx context.Context, id int64) (*models.Stop, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT id, route_id, name, location_name, stop_order, latitude, longitude
		 FROM route_stops WHERE id = $1`, id)
	s, err := scanStop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: stop: %v", ErrUnavailable, err)
	}
	return s, nil
}

func (p *PostgresStore) SearchStops(ctx context.Context, name string) ([]models.Stop, error) {
	matches, err := p.stops(ctx,
		`SELECT id, route_id, name, location_name, stop_order, latitude, longitude
		 FROM route_stops WHERE name ILIKE '%' || $1 || '%' ORDER BY id`, name)
	if err != nil {
		return nil, err
	}
	if len(matches) > 0 {
		return matches, nil
	}
	// token-overlap fallback is done in process; the set of stops is small
	all, err := p.AllStops(ctx)
	if err != nil {
		return nil, err
	}
	var out []models.Stop
	for _, s := range all {
		if matchTokens(s.Name, name) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (p *PostgresStore) UpdateStopCoords(ctx context.Context, stopID int64, lat, lon float64) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE route_stops SET latitude = $1, longitude = $2 WHERE id = $3`, lat, lon, stopID)
	if err != nil {
		return fmt.Errorf("%w: update stop coords: %v", ErrUnavailable, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) stops(ctx context.Context, query string, args ...any) ([]models.Stop, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: stops: %v", ErrUnavailable, err)
	}
	defer rows.Close()
	var out []models.Stop
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan stop: %v", ErrUnavailable, err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStop(row rowScanner) (*models.Stop, error) {
	var s models.Stop
	var lat, lon sql.NullFloat64
	if err := row.Scan(&s.ID, &s.RouteID, &s.Name, &s.LocationName, &s.Order, &lat, &lon); err != nil {
		return nil, err
	}
	if lat.Valid && lon.Valid {
		s.Lat = &lat.Float64
		s.Lon = &lon.Float64
	}
	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
