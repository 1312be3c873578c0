package tracking

import (
	"context"
	"fmt"

	"github.com/example/bus-tracking/internal/geo"
	"github.com/example/bus-tracking/internal/models"
	"github.com/example/bus-tracking/internal/storage"
)

// StopPolicy selects how the detector picks the stop to report.
type StopPolicy int

const (
	// PolicyNearest reports the globally closest stop, even one already
	// passed. This matches the deployed behavior: on a route that loops
	// near its starting point the detector can report proximity to a
	// stop behind the vehicle. Preserved for compatibility.
	PolicyNearest StopPolicy = iota
	// PolicyNextInSequence locates the route segment the vehicle is
	// travelling (the consecutive stop pair it deviates least from) and
	// reports that segment's end stop. The alternate, sequence-aware
	// interpretation; not the default.
	PolicyNextInSequence
)

// Detector answers "how close is this vehicle to its next stop" from a
// live position and a route's ordered stop list.
type Detector struct {
	Store storage.Store
	// ThresholdMeters is process-wide and shared by all entities.
	ThresholdMeters float64
	ETA             geo.ETAParams
	Policy          StopPolicy
}

type stopCandidate struct {
	stop models.Stop
	m    float64
}

// NextStop scans the route's stops and returns the chosen one with its
// distance from the current position. The bool reports whether any stop
// with known coordinates existed; false is a normal no-data outcome,
// not an error.
func (d *Detector) NextStop(ctx context.Context, routeID int64, lat, lon float64) (models.StopDistance, bool, error) {
	cur := models.Coord{Lat: lat, Lon: lon}
	if err := geo.Validate(cur); err != nil {
		return models.StopDistance{}, false, err
	}
	stops, err := d.Store.StopsForRoute(ctx, routeID)
	if err != nil {
		return models.StopDistance{}, false, err
	}

	var candidates []stopCandidate
	for _, s := range stops {
		c, ok := s.Coords()
		if !ok {
			continue
		}
		m, err := geo.DistanceMeters(cur, c)
		if err != nil {
			return models.StopDistance{}, false, err
		}
		candidates = append(candidates, stopCandidate{stop: s, m: m})
	}
	if len(candidates) == 0 {
		return models.StopDistance{}, false, nil
	}

	var chosen stopCandidate
	if d.Policy == PolicyNextInSequence && len(candidates) > 1 {
		chosen = nextInSequence(cur, candidates)
	} else {
		chosen = nearest(candidates)
	}

	km := chosen.m / 1000
	return models.StopDistance{
		Stop:       chosen.stop,
		DistanceM:  chosen.m,
		DistanceKm: km,
		ETAMinutes: d.ETA.Minutes(km),
	}, true, nil
}

func nearest(candidates []stopCandidate) stopCandidate {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.m < best.m {
			best = c
		}
	}
	return best
}

// nextInSequence finds the consecutive stop pair the position deviates
// least from (distance to both ends minus the leg length) and returns
// the pair's end stop: the next one the vehicle will reach if it is
// following the route order.
func nextInSequence(cur models.Coord, candidates []stopCandidate) stopCandidate {
	best := candidates[len(candidates)-1]
	bestDeviation := -1.0
	for i := 0; i < len(candidates)-1; i++ {
		a, b := candidates[i], candidates[i+1]
		ca, _ := a.stop.Coords()
		cb, _ := b.stop.Coords()
		leg, err := geo.DistanceMeters(ca, cb)
		if err != nil {
			continue
		}
		deviation := a.m + b.m - leg
		if bestDeviation < 0 || deviation < bestDeviation {
			bestDeviation = deviation
			best = b
		}
	}
	return best
}

// CheckProximity returns a triggered alert when the chosen stop is
// within the configured threshold, nil otherwise. Stateless and
// at-least-once: nothing remembers which stops were already alerted, so
// a vehicle lingering near a stop re-triggers on every call.
func (d *Detector) CheckProximity(ctx context.Context, routeID int64, lat, lon float64) (*models.ProximityAlert, error) {
	next, ok, err := d.NextStop(ctx, routeID, lat, lon)
	if err != nil || !ok {
		return nil, err
	}
	if next.DistanceM > d.ThresholdMeters {
		return nil, nil
	}
	return &models.ProximityAlert{
		StopID:         next.Stop.ID,
		StopName:       next.Stop.Name,
		DistanceMeters: next.DistanceM,
		Triggered:      true,
		Message:        fmt.Sprintf("Approaching %s", next.Stop.Name),
	}, nil
}
