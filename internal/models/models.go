package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// PositionFix is a single timestamped GPS reading pushed by a driver.
// Fixes are immutable once written; "current position" is always the
// fix with the greatest CapturedAt, never the last one inserted.
type PositionFix struct {
	ID         int64     `json:"id"`
	DriverID   string    `json:"driver_id"`
	VehicleID  string    `json:"vehicle_id,omitempty"`
	Loc        Coord     `json:"loc"`
	CapturedAt time.Time `json:"captured_at"`
}

// Stop belongs to exactly one route, ordered by Order within it.
// Coordinates are optional at creation and may be backfilled later by
// the geocoder, at which point they are persisted.
type Stop struct {
	ID           int64    `json:"id"`
	RouteID      int64    `json:"route_id"`
	Name         string   `json:"name"`
	LocationName string   `json:"location_name"`
	Order        int      `json:"stop_order"`
	Lat          *float64 `json:"latitude,omitempty"`
	Lon          *float64 `json:"longitude,omitempty"`
}

// Coords returns the stop position and whether it is known.
func (s Stop) Coords() (Coord, bool) {
	if s.Lat == nil || s.Lon == nil {
		return Coord{}, false
	}
	return Coord{Lat: *s.Lat, Lon: *s.Lon}, true
}

type Route struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	VehicleID   string `json:"vehicle_id"`
	DriverID    string `json:"driver_id,omitempty"`
	Active      bool   `json:"active"`
}

// ResolutionTier records which fallback level produced a resolved route.
type ResolutionTier string

const (
	TierNamed        ResolutionTier = "named"
	TierCoordinate   ResolutionTier = "coordinate"
	TierStraightLine ResolutionTier = "straight-line"
)

// Waypoint is one entry in an ordered path handed to the route resolver.
// Loc is nil until coordinates are known; StopID links back to the owning
// stop so lazily discovered coordinates can be written through.
type Waypoint struct {
	Name   string `json:"name"`
	StopID int64  `json:"stop_id,omitempty"`
	Loc    *Coord `json:"loc,omitempty"`
}

// ResolvedRoute is derived on demand and never persisted.
type ResolvedRoute struct {
	Waypoints       []Waypoint     `json:"waypoints"`
	Geometry        []Coord        `json:"geometry"`
	DistanceKm      float64        `json:"total_distance_km"`
	DurationMinutes float64        `json:"total_duration_minutes"`
	Tier            ResolutionTier `json:"resolution_tier"`
}

// RouteDisplay is the caller-facing shape of resolve-route-for-display.
type RouteDisplay struct {
	RouteID   int64          `json:"route_id"`
	RouteName string         `json:"route_name"`
	VehicleID string         `json:"vehicle_id"`
	Stops     []Stop         `json:"stops"`
	Resolved  *ResolvedRoute `json:"resolved"`
}

// ProximityAlert is returned synchronously from fix ingestion. It is
// at-least-once: a vehicle lingering near a stop re-triggers the alert
// on every check.
type ProximityAlert struct {
	StopID         int64   `json:"stop_id"`
	StopName       string  `json:"stop_name"`
	DistanceMeters float64 `json:"distance_meters"`
	Triggered      bool    `json:"triggered"`
	Message        string  `json:"message"`
}

// StopDistance annotates a stop with the distance from a live position.
type StopDistance struct {
	Stop       Stop    `json:"stop"`
	DistanceM  float64 `json:"distance_meters"`
	DistanceKm float64 `json:"distance_km"`
	ETAMinutes int     `json:"eta_minutes"`
}

type NearbyVehicle struct {
	VehicleID  string    `json:"vehicle_id"`
	RouteID    int64     `json:"route_id"`
	RouteName  string    `json:"route_name"`
	Loc        Coord     `json:"loc"`
	DistanceKm float64   `json:"distance_km"`
	ETAMinutes int       `json:"eta_minutes"`
	CapturedAt time.Time `json:"captured_at"`
}

// ConnectivityQuery asks which running vehicles can take a rider from a
// source stop to a destination stop. Stops are addressed by id when
// known, by fuzzy name otherwise. Rider is optional; when absent the
// source stop's coordinates anchor distance calculations.
type ConnectivityQuery struct {
	SourceStopID int64   `json:"source_stop_id,omitempty"`
	DestStopID   int64   `json:"destination_stop_id,omitempty"`
	SourceName   string  `json:"source_stop_name,omitempty"`
	DestName     string  `json:"destination_stop_name,omitempty"`
	Rider        *Coord  `json:"rider,omitempty"`
	RadiusKm     float64 `json:"max_distance_km,omitempty"`
}

type ConnectivityMatch struct {
	RouteID        int64   `json:"route_id"`
	RouteName      string  `json:"route_name"`
	VehicleID      string  `json:"vehicle_id"`
	Loc            Coord   `json:"loc"`
	DistanceKm     float64 `json:"distance_km"`
	ETAMinutes     int     `json:"eta_minutes"`
	StopsRemaining int     `json:"stops_remaining"`
}

// Reason codes for an empty connectivity result. Zero matches is a
// normal outcome, not an error.
const (
	ReasonNoMatchingStop    = "no_matching_stop"
	ReasonNoConnectingRoute = "no_connecting_route"
	ReasonNoLiveVehicle     = "no_live_vehicle"
)

type ConnectivityResult struct {
	Source      Stop                `json:"source_stop"`
	Destination Stop                `json:"destination_stop"`
	Matches     []ConnectivityMatch `json:"matches"`
	Geometry    *ResolvedRoute      `json:"geometry,omitempty"`
	Reason      string              `json:"reason,omitempty"`
}
