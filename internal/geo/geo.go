package geo

import (
	"errors"
	"math"

	"github.com/example/bus-tracking/internal/models"
)

// ErrInvalidCoordinate is returned for latitudes outside [-90,90] or
// longitudes outside [-180,180]. Out-of-range values are rejected at the
// boundary, never clamped.
var ErrInvalidCoordinate = errors.New("invalid coordinate: latitude must be in [-90,90], longitude in [-180,180]")

const earthRadiusKm = 6371.0

// Validate checks a coordinate pair against the valid lat/lon ranges.
func Validate(c models.Coord) error {
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return ErrInvalidCoordinate
	}
	return nil
}

// DistanceKm returns the great-circle distance between two points in
// kilometers using the haversine formula on the mean earth radius.
func DistanceKm(a, b models.Coord) (float64, error) {
	if err := Validate(a); err != nil {
		return 0, err
	}
	if err := Validate(b); err != nil {
		return 0, err
	}
	if a.Lat == b.Lat && a.Lon == b.Lon {
		return 0, nil
	}
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c, nil
}

// DistanceMeters is DistanceKm scaled to meters.
func DistanceMeters(a, b models.Coord) (float64, error) {
	km, err := DistanceKm(a, b)
	if err != nil {
		return 0, err
	}
	return km * 1000, nil
}

// Bearing returns the initial bearing from a to b in degrees [0,360).
func Bearing(a, b models.Coord) (float64, error) {
	if err := Validate(a); err != nil {
		return 0, err
	}
	if err := Validate(b); err != nil {
		return 0, err
	}
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	dLon := toRad(b.Lon - a.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360), nil
}

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// ETAParams holds the fixed assumptions an ETA estimate is built on:
// average city speed, a per-kilometer buffer for stops and signals, and
// a floor so short hops never report an implausible arrival time.
type ETAParams struct {
	AvgSpeedKmh    float64
	BufferMinPerKm float64
	MinimumMinutes int
}

// DefaultETAParams mirrors the assumptions used across the engine:
// 40 km/h average speed, 2 min/km buffer, 5 minute floor.
func DefaultETAParams() ETAParams {
	return ETAParams{AvgSpeedKmh: 40, BufferMinPerKm: 2, MinimumMinutes: 5}
}

// Minutes estimates travel time for distanceKm. Monotonically
// non-decreasing in distance.
func (p ETAParams) Minutes(distanceKm float64) int {
	speed := p.AvgSpeedKmh
	if speed <= 0 {
		speed = 40
	}
	travel := distanceKm / speed * 60
	total := travel + distanceKm*p.BufferMinPerKm
	if est := int(total); est > p.MinimumMinutes {
		return est
	}
	return p.MinimumMinutes
}
