package routeplan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/bus-tracking/internal/directions"
	"github.com/example/bus-tracking/internal/geocode"
	"github.com/example/bus-tracking/internal/models"
	"github.com/example/bus-tracking/internal/storage"
)

// fakeGeocoder resolves from a fixed table.
type fakeGeocoder struct {
	table map[string]models.Coord
	calls int
}

func (f *fakeGeocoder) Resolve(ctx context.Context, name string) (models.Coord, geocode.Tier, error) {
	f.calls++
	if c, ok := f.table[name]; ok {
		return c, geocode.TierGazetteer, nil
	}
	return models.Coord{}, "", geocode.ErrUnresolved
}

// fakeDirections fails a configured number of calls before succeeding.
type fakeDirections struct {
	fail  int
	calls int
}

func (f *fakeDirections) Route(ctx context.Context, wps []models.Coord) (*directions.RouteResponse, error) {
	f.calls++
	if f.calls <= f.fail {
		return nil, directions.ErrUnavailable
	}
	return &directions.RouteResponse{
		Geometry: wps,
		Segments: []directions.Segment{{DistanceMeters: 107000, DurationSeconds: 9000}},
	}, nil
}

var (
	palani     = models.Coord{Lat: 10.4495, Lon: 77.5153}
	coimbatore = models.Coord{Lat: 11.0168, Lon: 76.9558}
)

func namedWaypoints() []models.Waypoint {
	return []models.Waypoint{{Name: "Palani"}, {Name: "Coimbatore"}}
}

func fullTable() map[string]models.Coord {
	return map[string]models.Coord{"Palani": palani, "Coimbatore": coimbatore}
}

func TestResolveNamedTier(t *testing.T) {
	r := &Resolver{
		Geocoder:   &fakeGeocoder{table: fullTable()},
		Directions: &fakeDirections{},
	}
	got, err := r.Resolve(context.Background(), namedWaypoints())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Tier != models.TierNamed {
		t.Fatalf("expected named tier, got %s", got.Tier)
	}
	if got.DistanceKm != 107 {
		t.Fatalf("expected segment distance, got %f", got.DistanceKm)
	}
}

func TestResolveFallsToCoordinateTierWhenNamedCallFails(t *testing.T) {
	// first (named) directions call fails, retry with the same known
	// coordinates succeeds
	d := &fakeDirections{fail: 1}
	r := &Resolver{
		Geocoder:   &fakeGeocoder{table: fullTable()},
		Directions: d,
	}
	got, err := r.Resolve(context.Background(), namedWaypoints())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Tier != models.TierCoordinate {
		t.Fatalf("expected coordinate tier, got %s", got.Tier)
	}
	if d.calls != 2 {
		t.Fatalf("expected 2 directions calls, got %d", d.calls)
	}
}

func TestResolveCoordinateTierOnPartialGeocode(t *testing.T) {
	// one waypoint is ungeocodable and has no stored coordinates; the
	// named tier cannot run but two known points remain for directions
	d := &fakeDirections{}
	r := &Resolver{
		Geocoder:   &fakeGeocoder{table: map[string]models.Coord{}},
		Directions: d,
	}
	p, c := palani, coimbatore
	wps := []models.Waypoint{
		{Name: "Palani Bus Stand", Loc: &p},
		{Name: "Somewhere Unknown"},
		{Name: "Ukkadam Bus Stand", Loc: &c},
	}
	got, err := r.Resolve(context.Background(), wps)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Tier != models.TierCoordinate {
		t.Fatalf("expected coordinate tier, got %s", got.Tier)
	}
	if d.calls != 1 {
		t.Fatalf("named tier must be skipped on partial geocode, calls=%d", d.calls)
	}
}

func TestResolveFallsToStraightLine(t *testing.T) {
	// directions permanently unavailable
	r := &Resolver{
		Geocoder:    &fakeGeocoder{table: fullTable()},
		Directions:  &fakeDirections{fail: 100},
		AvgSpeedKmh: 40,
	}
	got, err := r.Resolve(context.Background(), namedWaypoints())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Tier != models.TierStraightLine {
		t.Fatalf("expected straight-line tier, got %s", got.Tier)
	}
	// Palani to Coimbatore is ~85 km as the crow flies
	if got.DistanceKm < 80 || got.DistanceKm > 95 {
		t.Fatalf("unexpected straight-line distance %f", got.DistanceKm)
	}
	if got.DurationMinutes <= 0 {
		t.Fatalf("expected positive duration, got %f", got.DurationMinutes)
	}
	if len(got.Geometry) != 2 {
		t.Fatalf("expected 2-point geometry, got %d", len(got.Geometry))
	}
}

func TestResolveNoDirectionsClientStillResolves(t *testing.T) {
	r := &Resolver{Geocoder: &fakeGeocoder{table: fullTable()}}
	got, err := r.Resolve(context.Background(), namedWaypoints())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.Tier != models.TierStraightLine {
		t.Fatalf("expected straight-line tier without a directions client, got %s", got.Tier)
	}
}

func TestResolveUnresolvedWithFewerThanTwoPoints(t *testing.T) {
	r := &Resolver{
		Geocoder:   &fakeGeocoder{table: map[string]models.Coord{"Palani": palani}},
		Directions: &fakeDirections{fail: 100},
	}
	_, err := r.Resolve(context.Background(), namedWaypoints())
	if !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
}

func TestResolveBackfillsStopCoordinates(t *testing.T) {
	store := storage.NewMemoryStore()
	store.AddRoute(models.Route{ID: 1, Name: "R1", Origin: "Palani", Destination: "Coimbatore", Active: true})
	store.AddStop(models.Stop{ID: 10, RouteID: 1, Name: "Palani Bus Stand", LocationName: "Palani", Order: 1})
	store.AddStop(models.Stop{ID: 11, RouteID: 1, Name: "Coimbatore Bus Stand", LocationName: "Coimbatore", Order: 2})

	r := &Resolver{
		Geocoder:   &fakeGeocoder{table: fullTable()},
		Directions: &fakeDirections{},
		Stops:      store,
	}
	display, err := r.ResolveForRoute(context.Background(), 1)
	if err != nil {
		t.Fatalf("resolve for route: %v", err)
	}
	if display.Resolved == nil || display.Resolved.Tier != models.TierNamed {
		t.Fatalf("unexpected resolution %+v", display.Resolved)
	}

	s, err := store.StopByID(context.Background(), 10)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	c, ok := s.Coords()
	if !ok {
		t.Fatal("expected backfilled coordinates on stop 10")
	}
	if c != palani {
		t.Fatalf("expected %+v, got %+v", palani, c)
	}
}

func TestResolveForRouteUsesCache(t *testing.T) {
	store := storage.NewMemoryStore()
	store.AddRoute(models.Route{ID: 1, Name: "R1", Origin: "Palani", Destination: "Coimbatore", Active: true})

	g := &fakeGeocoder{table: fullTable()}
	r := &Resolver{
		Geocoder:   g,
		Directions: &fakeDirections{},
		Stops:      store,
		Cache:      NewCache(time.Minute),
	}
	if _, err := r.ResolveForRoute(context.Background(), 1); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	callsAfterFirst := g.calls
	if _, err := r.ResolveForRoute(context.Background(), 1); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if g.calls != callsAfterFirst {
		t.Fatalf("second resolve should be served from cache, geocoder calls %d -> %d", callsAfterFirst, g.calls)
	}
}
