package storage

import (
	"context"
	"errors"

	"github.com/example/bus-tracking/internal/models"
)

// ErrNotFound means the requested fix, stop, or route does not exist.
// Distinct from geocoding/routing exhaustion, which is not a storage
// concern.
var ErrNotFound = errors.New("not found")

// ErrUnavailable wraps infrastructure failures from the backing store.
var ErrUnavailable = errors.New("storage unavailable")

// FixStore is an append-only ledger of position fixes. There are no
// updates or deletes; callers needing current state ask for the latest
// fix by capture time.
type FixStore interface {
	RecordFix(ctx context.Context, fix *models.PositionFix) (int64, error)
	// LatestFixByVehicle selects by maximum CapturedAt, not insertion order.
	LatestFixByVehicle(ctx context.Context, vehicleID string) (*models.PositionFix, error)
	LatestFixByDriver(ctx context.Context, driverID string) (*models.PositionFix, error)
}

// RouteStore reads route/stop metadata and persists lazily geocoded
// stop coordinates.
type RouteStore interface {
	RouteByID(ctx context.Context, id int64) (*models.Route, error)
	ActiveRouteForDriver(ctx context.Context, driverID string) (*models.Route, error)
	ActiveRouteForVehicle(ctx context.Context, vehicleID string) (*models.Route, error)
	ActiveRoutes(ctx context.Context) ([]models.Route, error)
	// StopsForRoute returns stops ordered by their order index.
	StopsForRoute(ctx context.Context, routeID int64) ([]models.Stop, error)
	StopByID(ctx context.Context, id int64) (*models.Stop, error)
	AllStops(ctx context.Context) ([]models.Stop, error)
	// SearchStops matches by case-insensitive substring, falling back to
	// token overlap when nothing matches.
	SearchStops(ctx context.Context, name string) ([]models.Stop, error)
	// UpdateStopCoords backfills lazily discovered coordinates.
	// Idempotent, last write wins under concurrent backfill.
	UpdateStopCoords(ctx context.Context, stopID int64, lat, lon float64) error
}

// Store is the full persistence surface consumed by the engine.
type Store interface {
	FixStore
	RouteStore
}

