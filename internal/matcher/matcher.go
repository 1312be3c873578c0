package matcher

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/example/bus-tracking/internal/geo"
	"github.com/example/bus-tracking/internal/models"
	"github.com/example/bus-tracking/internal/observability"
	"github.com/example/bus-tracking/internal/storage"
)

// GeoIndex is a fast "vehicles near here" lookup, typically backed by
// Redis. Optional; the service falls back to scanning the store when it
// is absent or fails.
type GeoIndex interface {
	Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]models.NearbyVehicle, error)
}

// RoutePlanner renders route geometry for a connectivity match.
type RoutePlanner interface {
	ResolveForRoute(ctx context.Context, routeID int64) (*models.RouteDisplay, error)
}

// Service answers passenger-side queries: which vehicles are nearby,
// and which running vehicle connects two stops.
type Service struct {
	Store           storage.Store
	Index           GeoIndex     // optional
	Planner         RoutePlanner // optional, geometry on connectivity results
	DefaultRadiusKm float64
	ETA             geo.ETAParams
	Logger          *slog.Logger
}

// RadiusSearch returns active vehicles whose latest fix falls within
// radiusKm of the given point, nearest first. A vehicle with no fix on
// record is simply not nearby.
func (s *Service) RadiusSearch(ctx context.Context, lat, lon, radiusKm float64) ([]models.NearbyVehicle, error) {
	origin := models.Coord{Lat: lat, Lon: lon}
	if err := geo.Validate(origin); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		radiusKm = s.DefaultRadiusKm
	}
	observability.RadiusSearches.Inc()

	if s.Index != nil {
		if out, err := s.Index.Nearby(ctx, lat, lon, radiusKm, 0); err == nil {
			return s.annotate(ctx, origin, out), nil
		} else {
			s.log().Warn("geo index lookup failed, scanning store", "error", err)
		}
	}

	routes, err := s.Store.ActiveRoutes(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.NearbyVehicle, 0, len(routes))
	for _, rt := range routes {
		if rt.VehicleID == "" {
			continue
		}
		fix, err := s.Store.LatestFixByVehicle(ctx, rt.VehicleID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		km, err := geo.DistanceKm(origin, fix.Loc)
		if err != nil {
			continue
		}
		if km > radiusKm {
			continue
		}
		out = append(out, models.NearbyVehicle{
			VehicleID:  rt.VehicleID,
			RouteID:    rt.ID,
			RouteName:  rt.Name,
			Loc:        fix.Loc,
			DistanceKm: km,
			ETAMinutes: s.ETA.Minutes(km),
			CapturedAt: fix.CapturedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out, nil
}

// annotate fills route metadata and ETA for index-sourced results. The
// index only knows vehicle ids and positions.
func (s *Service) annotate(ctx context.Context, origin models.Coord, vehicles []models.NearbyVehicle) []models.NearbyVehicle {
	out := make([]models.NearbyVehicle, 0, len(vehicles))
	for _, v := range vehicles {
		if km, err := geo.DistanceKm(origin, v.Loc); err == nil {
			v.DistanceKm = km
		}
		v.ETAMinutes = s.ETA.Minutes(v.DistanceKm)
		if v.RouteID == 0 {
			if rt, err := s.Store.ActiveRouteForVehicle(ctx, v.VehicleID); err == nil {
				v.RouteID = rt.ID
				v.RouteName = rt.Name
			}
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

// Connectivity finds running vehicles that can carry a rider from a
// source stop to a destination stop: routes serving both stops with the
// source strictly before the destination, narrowed to vehicles with a
// live fix. Zero matches is a normal outcome reported with a reason
// code, never an error.
func (s *Service) Connectivity(ctx context.Context, q models.ConnectivityQuery) (*models.ConnectivityResult, error) {
	src, err := s.findStop(ctx, q.SourceStopID, q.SourceName)
	if err != nil {
		return nil, err
	}
	dst, err := s.findStop(ctx, q.DestStopID, q.DestName)
	if err != nil {
		return nil, err
	}
	if src == nil || dst == nil {
		observability.ConnectivitySearches.WithLabelValues(models.ReasonNoMatchingStop).Inc()
		res := &models.ConnectivityResult{Reason: models.ReasonNoMatchingStop}
		if src != nil {
			res.Source = *src
		}
		if dst != nil {
			res.Destination = *dst
		}
		return res, nil
	}

	result := &models.ConnectivityResult{Source: *src, Destination: *dst}

	pairs, err := s.connectingRoutes(ctx, *src, *dst)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		observability.ConnectivitySearches.WithLabelValues(models.ReasonNoConnectingRoute).Inc()
		result.Reason = models.ReasonNoConnectingRoute
		return result, nil
	}

	anchor, haveAnchor := s.anchor(q, *src)
	radius := q.RadiusKm
	if radius <= 0 {
		radius = s.DefaultRadiusKm
	}

	for _, p := range pairs {
		if p.route.VehicleID == "" {
			continue
		}
		fix, err := s.Store.LatestFixByVehicle(ctx, p.route.VehicleID)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		m := models.ConnectivityMatch{
			RouteID:        p.route.ID,
			RouteName:      p.route.Name,
			VehicleID:      p.route.VehicleID,
			Loc:            fix.Loc,
			StopsRemaining: p.stopsBetween,
		}
		if haveAnchor {
			if km, err := geo.DistanceKm(anchor, fix.Loc); err == nil {
				if radius > 0 && km > radius {
					continue
				}
				m.DistanceKm = km
				m.ETAMinutes = s.ETA.Minutes(km)
			}
		}
		result.Matches = append(result.Matches, m)
	}

	if len(result.Matches) == 0 {
		observability.ConnectivitySearches.WithLabelValues(models.ReasonNoLiveVehicle).Inc()
		result.Reason = models.ReasonNoLiveVehicle
		return result, nil
	}
	sort.Slice(result.Matches, func(i, j int) bool {
		return result.Matches[i].DistanceKm < result.Matches[j].DistanceKm
	})
	observability.ConnectivitySearches.WithLabelValues("matched").Inc()

	if s.Planner != nil {
		if disp, err := s.Planner.ResolveForRoute(ctx, result.Matches[0].RouteID); err == nil {
			result.Geometry = disp.Resolved
		} else {
			s.log().Warn("connectivity geometry resolution failed", "route_id", result.Matches[0].RouteID, "error", err)
		}
	}
	return result, nil
}

// findStop resolves a stop reference: by id when given, by fuzzy name
// otherwise. nil means nothing matched; only infrastructure failures
// surface as errors.
func (s *Service) findStop(ctx context.Context, id int64, name string) (*models.Stop, error) {
	if id != 0 {
		stop, err := s.Store.StopByID(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return stop, err
	}
	if name == "" {
		return nil, nil
	}
	stops, err := s.Store.SearchStops(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(stops) == 0 {
		return nil, nil
	}
	return &stops[0], nil
}

type routePair struct {
	route        models.Route
	stopsBetween int
}

// connectingRoutes returns active routes serving a stop matching the
// source before a stop matching the destination. Matching is by name,
// not id: the same place appears as distinct stop rows on different
// routes.
func (s *Service) connectingRoutes(ctx context.Context, src, dst models.Stop) ([]routePair, error) {
	routes, err := s.Store.ActiveRoutes(ctx)
	if err != nil {
		return nil, err
	}
	var out []routePair
	for _, rt := range routes {
		stops, err := s.Store.StopsForRoute(ctx, rt.ID)
		if err != nil {
			return nil, err
		}
		srcOrder, dstOrder := -1, -1
		for _, st := range stops {
			if srcOrder < 0 && sameStop(st, src) {
				srcOrder = st.Order
			}
			if sameStop(st, dst) {
				dstOrder = st.Order
			}
		}
		if srcOrder < 0 || dstOrder < 0 || srcOrder >= dstOrder {
			continue
		}
		out = append(out, routePair{route: rt, stopsBetween: dstOrder - srcOrder})
	}
	return out, nil
}

// sameStop reports whether two stop rows refer to the same physical
// place: identity, equal normalized names, or one full name containing
// the other. Stops sharing only a generic token like "Bus Stand" are
// not the same place; token overlap stays in SearchStops, where it
// resolves free-text queries rather than stop identity.
func sameStop(a, b models.Stop) bool {
	if a.ID == b.ID {
		return true
	}
	return samePlaceName(a.Name, b.Name) || samePlaceName(a.LocationName, b.LocationName)
}

func samePlaceName(a, b string) bool {
	an := strings.ToLower(strings.TrimSpace(a))
	bn := strings.ToLower(strings.TrimSpace(b))
	if an == "" || bn == "" {
		return false
	}
	return an == bn || strings.Contains(an, bn) || strings.Contains(bn, an)
}

// anchor picks the point distances are measured from: the rider when
// given, else the source stop's coordinates when known.
func (s *Service) anchor(q models.ConnectivityQuery, src models.Stop) (models.Coord, bool) {
	if q.Rider != nil {
		return *q.Rider, true
	}
	if c, ok := src.Coords(); ok {
		return c, true
	}
	return models.Coord{}, false
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
