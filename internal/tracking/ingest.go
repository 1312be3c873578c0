package tracking

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/bus-tracking/internal/geo"
	"github.com/example/bus-tracking/internal/models"
	"github.com/example/bus-tracking/internal/observability"
	"github.com/example/bus-tracking/internal/storage"
)

// FixPublisher streams accepted fixes to downstream consumers.
type FixPublisher interface {
	PublishFix(fix models.PositionFix) error
}

// FixIndexer keeps a fast "where is every vehicle now" index current.
type FixIndexer interface {
	Upsert(ctx context.Context, fix models.PositionFix) error
}

// AlertDispatcher pushes a proximity alert to the driver's device.
type AlertDispatcher interface {
	Alert(driverID string, alert models.ProximityAlert) error
}

// IngestRequest is one position fix pushed by a driver.
type IngestRequest struct {
	DriverID   string    `json:"driver_id"`
	VehicleID  string    `json:"vehicle_id,omitempty"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	CapturedAt time.Time `json:"captured_at,omitempty"`
}

// IngestResult is returned synchronously to the pushing driver: the
// stored fix id, a proximity alert when one triggered, and the next
// stop annotation when the driver has an active route.
type IngestResult struct {
	FixID    int64                `json:"fix_id"`
	Alert    *models.ProximityAlert `json:"proximity_alert,omitempty"`
	NextStop *models.StopDistance   `json:"next_stop,omitempty"`
}

// Ingestor is the driver-side ingestion pipeline: persist the fix,
// fan it out (stream + index, both best-effort), then run the proximity
// check against the driver's active route.
type Ingestor struct {
	Store    storage.Store
	Detector *Detector
	Producer FixPublisher    // optional
	Index    FixIndexer      // optional
	Dispatch AlertDispatcher // optional
	Logger   *slog.Logger
}

func (in *Ingestor) IngestFix(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	loc := models.Coord{Lat: req.Lat, Lon: req.Lon}
	if err := geo.Validate(loc); err != nil {
		return nil, err
	}
	capturedAt := req.CapturedAt
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}

	fix := models.PositionFix{
		DriverID:   req.DriverID,
		VehicleID:  req.VehicleID,
		Loc:        loc,
		CapturedAt: capturedAt,
	}
	id, err := in.Store.RecordFix(ctx, &fix)
	if err != nil {
		return nil, err
	}
	observability.FixesIngested.Inc()

	if in.Producer != nil {
		if err := in.Producer.PublishFix(fix); err != nil {
			in.log().Warn("fix publish failed", "driver_id", req.DriverID, "error", err)
		}
	}
	if in.Index != nil {
		if err := in.Index.Upsert(ctx, fix); err != nil {
			in.log().Warn("fix index update failed", "vehicle_id", req.VehicleID, "error", err)
		}
	}

	result := &IngestResult{FixID: id}

	route, err := in.Store.ActiveRouteForDriver(ctx, req.DriverID)
	if errors.Is(err, storage.ErrNotFound) {
		return result, nil
	}
	if err != nil {
		in.log().Warn("active route lookup failed", "driver_id", req.DriverID, "error", err)
		return result, nil
	}

	next, ok, err := in.Detector.NextStop(ctx, route.ID, req.Lat, req.Lon)
	if err != nil {
		in.log().Warn("next stop lookup failed", "route_id", route.ID, "error", err)
		return result, nil
	}
	if !ok {
		return result, nil
	}
	result.NextStop = &next

	if next.DistanceM <= in.Detector.ThresholdMeters {
		alert := models.ProximityAlert{
			StopID:         next.Stop.ID,
			StopName:       next.Stop.Name,
			DistanceMeters: next.DistanceM,
			Triggered:      true,
			Message:        "Approaching " + next.Stop.Name,
		}
		result.Alert = &alert
		observability.ProximityAlerts.Inc()
		if in.Dispatch != nil {
			if err := in.Dispatch.Alert(req.DriverID, alert); err != nil {
				in.log().Debug("alert push failed", "driver_id", req.DriverID, "error", err)
			}
		}
	}
	return result, nil
}

func (in *Ingestor) log() *slog.Logger {
	if in.Logger != nil {
		return in.Logger
	}
	return slog.Default()
}
