package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/bus-tracking/internal/config"
	"github.com/example/bus-tracking/internal/logging"
	"github.com/example/bus-tracking/internal/models"
	"github.com/example/bus-tracking/internal/storage"
)

func ptr(f float64) *float64 { return &f }

// newTestServer builds a fully wired server on the in-memory store,
// with a file gazetteer so no request leaves the process.
func newTestServer(t *testing.T) (*Server, *storage.MemoryStore) {
	t.Helper()
	gazPath := filepath.Join(t.TempDir(), "gazetteer.json")
	gaz := `{"palani": {"lat": 10.4495, "lon": 77.5153}, "pollachi": {"lat": 10.6588, "lon": 77.0087}, "ukkadam": {"lat": 10.9895, "lon": 76.9561}}`
	if err := os.WriteFile(gazPath, []byte(gaz), 0o644); err != nil {
		t.Fatalf("write gazetteer: %v", err)
	}

	cfg := config.ServerConfig{
		ProximityThresholdM: 100,
		AvgSpeedKmh:         40,
		ETABufferMinPerKm:   2,
		MinETAMinutes:       5,
		DefaultRadiusKm:     3,
		GazetteerPath:       gazPath,
		RouteCacheTTL:       time.Minute,
	}
	s := NewServer(cfg, logging.NewLogger("error"))
	store, ok := s.Store.(*storage.MemoryStore)
	if !ok {
		t.Fatalf("expected in-memory store, got %T", s.Store)
	}
	return s, store
}

func seedPalaniRoute(t *testing.T, store *storage.MemoryStore) {
	t.Helper()
	store.AddRoute(models.Route{ID: 1, Name: "Palani Coimbatore", Origin: "Palani", Destination: "Ukkadam", VehicleID: "TN-38-1001", DriverID: "d1", Active: true})
	store.AddStop(models.Stop{ID: 10, RouteID: 1, Name: "Palani Bus Stand", LocationName: "Palani", Order: 1, Lat: ptr(10.4495), Lon: ptr(77.5153)})
	store.AddStop(models.Stop{ID: 11, RouteID: 1, Name: "Pollachi", LocationName: "Pollachi", Order: 2, Lat: ptr(10.6588), Lon: ptr(77.0087)})
	store.AddStop(models.Stop{ID: 12, RouteID: 1, Name: "Ukkadam Bus Stand", LocationName: "Ukkadam", Order: 3, Lat: ptr(10.9895), Lon: ptr(76.9561)})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestIngestFixEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	seedPalaniRoute(t, store)

	rec := doJSON(t, s, "POST", "/internal/driver/locations", map[string]any{
		"driver_id":  "d1",
		"vehicle_id": "TN-38-1001",
		"lat":        10.4490,
		"lon":        77.5150,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		FixID int64                  `json:"fix_id"`
		Alert *models.ProximityAlert `json:"proximity_alert"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.FixID == 0 {
		t.Fatal("expected a fix id")
	}
	if res.Alert == nil || res.Alert.StopName != "Palani Bus Stand" {
		t.Fatalf("expected proximity alert at Palani Bus Stand, got %+v", res.Alert)
	}
}

func TestIngestFixEndpointRejectsBadCoordinates(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "POST", "/internal/driver/locations", map[string]any{
		"driver_id": "d1", "lat": 95.0, "lon": 77.0,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestNextStopEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	seedPalaniRoute(t, store)
	doJSON(t, s, "POST", "/internal/driver/locations", map[string]any{
		"driver_id": "d1", "vehicle_id": "TN-38-1001", "lat": 10.4490, "lon": 77.5150,
	})

	rec := doJSON(t, s, "GET", "/api/v1/driver/d1/next-stop", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		NextStop *models.StopDistance `json:"next_stop"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.NextStop == nil || res.NextStop.Stop.ID != 10 {
		t.Fatalf("expected next stop 10, got %+v", res.NextStop)
	}
}

func TestNextStopEndpointUnknownDriver(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "GET", "/api/v1/driver/ghost/next-stop", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestNearbyEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	seedPalaniRoute(t, store)
	if _, err := store.RecordFix(context.Background(), &models.PositionFix{
		DriverID: "d1", VehicleID: "TN-38-1001",
		Loc:        models.Coord{Lat: 10.9900, Lon: 76.9570},
		CapturedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("record fix: %v", err)
	}

	rec := doJSON(t, s, "GET", "/api/v1/passenger/nearby?lat=10.9895&lon=76.9561&radius_km=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Vehicles []models.NearbyVehicle `json:"vehicles"`
		Count    int                    `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Count != 1 || res.Vehicles[0].VehicleID != "TN-38-1001" {
		t.Fatalf("expected TN-38-1001 nearby, got %+v", res)
	}
}

func TestNearbyEndpointRequiresCoordinates(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "GET", "/api/v1/passenger/nearby", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFindRouteEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	seedPalaniRoute(t, store)
	if _, err := store.RecordFix(context.Background(), &models.PositionFix{
		DriverID: "d1", VehicleID: "TN-38-1001",
		Loc:        models.Coord{Lat: 10.4500, Lon: 77.5150},
		CapturedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("record fix: %v", err)
	}

	rec := doJSON(t, s, "POST", "/api/v1/passenger/find-route", models.ConnectivityQuery{
		SourceName: "Palani",
		DestName:   "Ukkadam",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res models.ConnectivityResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Matches) != 1 || res.Matches[0].VehicleID != "TN-38-1001" {
		t.Fatalf("expected a connectivity match, got %+v", res)
	}
	if res.Geometry == nil {
		t.Fatal("expected route geometry on the result")
	}
}

func TestRouteMapEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	seedPalaniRoute(t, store)

	rec := doJSON(t, s, "GET", "/api/v1/routes/1/map", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res models.RouteDisplay
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Resolved == nil || res.Resolved.Tier != models.TierStraightLine {
		t.Fatalf("expected straight-line resolution without a directions client, got %+v", res.Resolved)
	}
	if len(res.Stops) != 3 {
		t.Fatalf("expected 3 stops, got %d", len(res.Stops))
	}
}

func TestStopSearchEndpoint(t *testing.T) {
	s, store := newTestServer(t)
	seedPalaniRoute(t, store)

	rec := doJSON(t, s, "GET", "/api/v1/stops/search?q=ukkadam", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Stops []models.Stop `json:"stops"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Stops) != 1 || res.Stops[0].ID != 12 {
		t.Fatalf("expected Ukkadam stop, got %+v", res.Stops)
	}
}

func TestGeocodeEndpointServedFromGazetteer(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "POST", "/api/v1/geocode", map[string]string{"name": "Palani"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		Loc models.Coord `json:"loc"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Loc.Lat != 10.4495 {
		t.Fatalf("expected gazetteer coordinates, got %+v", res.Loc)
	}
}

func TestHealthz(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doJSON(t, s, "GET", "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
