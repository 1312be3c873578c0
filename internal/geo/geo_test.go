package geo

import (
	"errors"
	"math"
	"testing"

	"github.com/example/bus-tracking/internal/models"
)

func TestDistanceSamePointIsZero(t *testing.T) {
	p := models.Coord{Lat: 10.4495, Lon: 77.5153}
	d, err := DistanceKm(p, p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceSymmetry(t *testing.T) {
	a := models.Coord{Lat: 11.0168, Lon: 76.9558}
	b := models.Coord{Lat: 10.4495, Lon: 77.5153}
	ab, err := DistanceKm(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ba, err := DistanceKm(b, a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(ab-ba) > 1e-9 {
		t.Fatalf("distance not symmetric: %f vs %f", ab, ba)
	}
}

func TestDistanceKnownSeparation(t *testing.T) {
	// ~65m apart per the driver proximity scenario
	a := models.Coord{Lat: 10.4495, Lon: 77.5153}
	b := models.Coord{Lat: 10.4490, Lon: 77.5150}
	m, err := DistanceMeters(a, b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m < 60 || m > 70 {
		t.Fatalf("expected ~65m, got %f", m)
	}
}

func TestDistanceRejectsInvalidCoordinates(t *testing.T) {
	bad := []models.Coord{
		{Lat: 91, Lon: 0},
		{Lat: -91, Lon: 0},
		{Lat: 0, Lon: 181},
		{Lat: 0, Lon: -181},
	}
	good := models.Coord{Lat: 0, Lon: 0}
	for _, c := range bad {
		if _, err := DistanceKm(c, good); !errors.Is(err, ErrInvalidCoordinate) {
			t.Fatalf("coord %+v: expected ErrInvalidCoordinate, got %v", c, err)
		}
		if _, err := DistanceKm(good, c); !errors.Is(err, ErrInvalidCoordinate) {
			t.Fatalf("coord %+v as second arg: expected ErrInvalidCoordinate, got %v", c, err)
		}
	}
}

func TestETAMonotonicInDistance(t *testing.T) {
	p := DefaultETAParams()
	prev := 0
	for d := 0.0; d <= 200; d += 0.5 {
		m := p.Minutes(d)
		if m < prev {
			t.Fatalf("eta decreased at %f km: %d < %d", d, m, prev)
		}
		prev = m
	}
}

func TestETAFloor(t *testing.T) {
	p := DefaultETAParams()
	if got := p.Minutes(0.1); got != 5 {
		t.Fatalf("expected 5 minute floor, got %d", got)
	}
}

func TestETAFormula(t *testing.T) {
	p := ETAParams{AvgSpeedKmh: 40, BufferMinPerKm: 2, MinimumMinutes: 5}
	// 10 km: 10/40*60 + 10*2 = 35 minutes
	if got := p.Minutes(10); got != 35 {
		t.Fatalf("expected 35, got %d", got)
	}
}

func TestBearingCardinal(t *testing.T) {
	origin := models.Coord{Lat: 0, Lon: 0}
	north := models.Coord{Lat: 1, Lon: 0}
	east := models.Coord{Lat: 0, Lon: 1}
	if b, _ := Bearing(origin, north); math.Abs(b) > 0.01 {
		t.Fatalf("expected bearing 0 (north), got %f", b)
	}
	if b, _ := Bearing(origin, east); math.Abs(b-90) > 0.01 {
		t.Fatalf("expected bearing 90 (east), got %f", b)
	}
}
