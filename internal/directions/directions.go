package directions

import (
	"context"
	"errors"

	"github.com/example/bus-tracking/internal/models"
)

// ErrUnavailable covers both a failed call and a client that was never
// configured (missing credential). The route resolver treats the two
// identically and falls to the next tier.
var ErrUnavailable = errors.New("directions unavailable")

// Segment is the per-leg distance/duration reported by the routing
// engine between consecutive waypoints.
type Segment struct {
	DistanceMeters  float64 `json:"distance_meters"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// RouteResponse is a road-network route through the given waypoints.
type RouteResponse struct {
	Geometry []models.Coord `json:"geometry"`
	Segments []Segment      `json:"segments"`
}

func (r *RouteResponse) TotalDistanceKm() float64 {
	var m float64
	for _, s := range r.Segments {
		m += s.DistanceMeters
	}
	return m / 1000
}

func (r *RouteResponse) TotalDurationMinutes() float64 {
	var sec float64
	for _, s := range r.Segments {
		sec += s.DurationSeconds
	}
	return sec / 60
}

// Client is the external road-network routing capability.
type Client interface {
	Route(ctx context.Context, waypoints []models.Coord) (*RouteResponse, error)
}
