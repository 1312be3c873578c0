package routeplan

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/example/bus-tracking/internal/directions"
	"github.com/example/bus-tracking/internal/geo"
	"github.com/example/bus-tracking/internal/geocode"
	"github.com/example/bus-tracking/internal/models"
	"github.com/example/bus-tracking/internal/observability"
	"github.com/example/bus-tracking/internal/storage"
)

// ErrUnresolved means fewer than two waypoints have resolvable
// coordinates; nothing can be drawn or measured.
var ErrUnresolved = errors.New("route unresolved: fewer than two locatable waypoints")

// PlaceResolver is the slice of the geocoder the resolver needs.
type PlaceResolver interface {
	Resolve(ctx context.Context, name string) (models.Coord, geocode.Tier, error)
}

// Resolver turns an ordered list of waypoints into geometry, distance
// and duration through a tiered fallback chain: named-route directions,
// coordinate directions, then straight-line composition. Resolve is
// side-effecting by contract: coordinates discovered through the
// geocoder are written back to the owning stops so future resolutions
// skip the geocoder.
type Resolver struct {
	Geocoder   PlaceResolver
	Directions directions.Client
	Stops      storage.RouteStore
	// AvgSpeedKmh feeds the straight-line duration estimate (no buffer).
	AvgSpeedKmh float64
	// Deadline bounds one full resolution including all geocode
	// variants; on expiry remaining tiers degrade rather than hang.
	Deadline time.Duration
	Cache    *Cache
	Logger   *slog.Logger
}

// Resolve attempts each tier in order and returns the first success.
func (r *Resolver) Resolve(ctx context.Context, waypoints []models.Waypoint) (*models.ResolvedRoute, error) {
	if r.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Deadline)
		defer cancel()
	}

	wps := make([]models.Waypoint, len(waypoints))
	copy(wps, waypoints)

	allNamed := r.geocodeMissing(ctx, wps)

	// tier 1: named-route directions over fully geocoded waypoints
	if allNamed && r.Directions != nil {
		if resolved := r.tryDirections(ctx, wps, models.TierNamed); resolved != nil {
			return resolved, nil
		}
	}

	// tier 2: directions over whatever coordinates are known
	if r.Directions != nil {
		if resolved := r.tryDirections(ctx, wps, models.TierCoordinate); resolved != nil {
			return resolved, nil
		}
	}

	// tier 3: straight segments between consecutive known points
	return r.straightLine(wps)
}

// geocodeMissing fills in coordinates for waypoints that lack them,
// writing discoveries through to the owning stop. Returns true when
// every waypoint ended up with coordinates.
func (r *Resolver) geocodeMissing(ctx context.Context, wps []models.Waypoint) bool {
	all := true
	for i := range wps {
		if wps[i].Loc != nil {
			continue
		}
		if wps[i].Name == "" || r.Geocoder == nil || ctx.Err() != nil {
			all = false
			continue
		}
		c, tier, err := r.Geocoder.Resolve(ctx, wps[i].Name)
		if err != nil {
			r.log().Debug("waypoint geocode failed", "name", wps[i].Name, "error", err)
			all = false
			continue
		}
		observability.GeocodeResolutions.WithLabelValues(string(tier)).Inc()
		loc := c
		wps[i].Loc = &loc
		if wps[i].StopID != 0 && r.Stops != nil {
			if err := r.Stops.UpdateStopCoords(ctx, wps[i].StopID, c.Lat, c.Lon); err != nil {
				r.log().Warn("stop coordinate backfill failed", "stop_id", wps[i].StopID, "error", err)
			}
		}
	}
	return all
}

func (r *Resolver) tryDirections(ctx context.Context, wps []models.Waypoint, tier models.ResolutionTier) *models.ResolvedRoute {
	if ctx.Err() != nil {
		return nil
	}
	coords := knownCoords(wps)
	if len(coords) < 2 {
		return nil
	}
	resp, err := r.Directions.Route(ctx, coords)
	if err != nil {
		r.log().Debug("directions call failed", "tier", string(tier), "error", err)
		return nil
	}
	observability.RouteResolutions.WithLabelValues(string(tier)).Inc()
	return &models.ResolvedRoute{
		Waypoints:       wps,
		Geometry:        resp.Geometry,
		DistanceKm:      resp.TotalDistanceKm(),
		DurationMinutes: resp.TotalDurationMinutes(),
		Tier:            tier,
	}
}

func (r *Resolver) straightLine(wps []models.Waypoint) (*models.ResolvedRoute, error) {
	coords := knownCoords(wps)
	if len(coords) < 2 {
		return nil, ErrUnresolved
	}
	var totalKm float64
	for i := 0; i < len(coords)-1; i++ {
		km, err := geo.DistanceKm(coords[i], coords[i+1])
		if err != nil {
			return nil, err
		}
		totalKm += km
	}
	speed := r.AvgSpeedKmh
	if speed <= 0 {
		speed = 40
	}
	observability.RouteResolutions.WithLabelValues(string(models.TierStraightLine)).Inc()
	return &models.ResolvedRoute{
		Waypoints:       wps,
		Geometry:        coords,
		DistanceKm:      totalKm,
		DurationMinutes: totalKm / speed * 60,
		Tier:            models.TierStraightLine,
	}, nil
}

// ResolveForRoute builds the waypoint path for a stored route (origin,
// stops in order, destination) and resolves it, serving repeat requests
// from the cache.
func (r *Resolver) ResolveForRoute(ctx context.Context, routeID int64) (*models.RouteDisplay, error) {
	route, err := r.Stops.RouteByID(ctx, routeID)
	if err != nil {
		return nil, err
	}
	stops, err := r.Stops.StopsForRoute(ctx, routeID)
	if err != nil {
		return nil, err
	}

	if r.Cache != nil {
		if resolved, ok := r.Cache.Get(routeID); ok {
			return &models.RouteDisplay{
				RouteID:   route.ID,
				RouteName: route.Name,
				VehicleID: route.VehicleID,
				Stops:     stops,
				Resolved:  resolved,
			}, nil
		}
	}

	wps := make([]models.Waypoint, 0, len(stops)+2)
	if route.Origin != "" {
		wps = append(wps, models.Waypoint{Name: route.Origin})
	}
	for _, s := range stops {
		wp := models.Waypoint{Name: s.LocationName, StopID: s.ID}
		if c, ok := s.Coords(); ok {
			loc := c
			wp.Loc = &loc
		}
		wps = append(wps, wp)
	}
	if route.Destination != "" && route.Destination != route.Origin {
		wps = append(wps, models.Waypoint{Name: route.Destination})
	}

	resolved, err := r.Resolve(ctx, wps)
	if err != nil {
		return nil, err
	}
	if r.Cache != nil {
		r.Cache.Set(routeID, resolved)
	}
	return &models.RouteDisplay{
		RouteID:   route.ID,
		RouteName: route.Name,
		VehicleID: route.VehicleID,
		Stops:     stops,
		Resolved:  resolved,
	}, nil
}

func knownCoords(wps []models.Waypoint) []models.Coord {
	out := make([]models.Coord, 0, len(wps))
	for _, w := range wps {
		if w.Loc != nil {
			out = append(out, *w.Loc)
		}
	}
	return out
}

func (r *Resolver) log() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
