package storage

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/example/bus-tracking/internal/models"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore keeps the full data set in process. Used for local runs
// without a PG_DSN and as the fixture store in tests.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	fixes  []models.PositionFix
	routes map[int64]models.Route
	stops  map[int64]models.Stop
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		routes: make(map[int64]models.Route),
		stops:  make(map[int64]models.Stop),
	}
}

func (m *MemoryStore) RecordFix(ctx context.Context, fix *models.PositionFix) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fix.ID = m.nextID
	m.nextID++
	m.fixes = append(m.fixes, *fix)
	return fix.ID, nil
}

func (m *MemoryStore) LatestFixByVehicle(ctx context.Context, vehicleID string) (*models.PositionFix, error) {
	return m.latestFix(func(f models.PositionFix) bool { return f.VehicleID == vehicleID })
}

func (m *MemoryStore) LatestFixByDriver(ctx context.Context, driverID string) (*models.PositionFix, error) {
	return m.latestFix(func(f models.PositionFix) bool { return f.DriverID == driverID })
}

func (m *MemoryStore) latestFix(match func(models.PositionFix) bool) (*models.PositionFix, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var best *models.PositionFix
	for i := range m.fixes {
		f := m.fixes[i]
		if !match(f) {
			continue
		}
		if best == nil || f.CapturedAt.After(best.CapturedAt) {
			best = &f
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	out := *best
	return &out, nil
}

// AddRoute seeds a route. Not part of the Store interface; route
// creation belongs to the excluded admin surface.
func (m *MemoryStore) AddRoute(r models.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[r.ID] = r
}

// AddStop seeds a stop for a previously added route.
func (m *MemoryStore) AddStop(s models.Stop) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops[s.ID] = s
}

func (m *MemoryStore) RouteByID(ctx context.Context, id int64) (*models.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.routes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (m *MemoryStore) ActiveRouteForDriver(ctx context.Context, driverID string) (*models.Route, error) {
	return m.activeRoute(func(r models.Route) bool { return r.DriverID == driverID })
}

func (m *MemoryStore) ActiveRouteForVehicle(ctx context.Context, vehicleID string) (*models.Route, error) {
	return m.activeRoute(func(r models.Route) bool { return r.VehicleID == vehicleID })
}

func (m *MemoryStore) activeRoute(match func(models.Route) bool) (*models.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.routes {
		if r.Active && match(r) {
			out := r
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ActiveRoutes(ctx context.Context) ([]models.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Route, 0, len(m.routes))
	for _, r := range m.routes {
		if r.Active {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) StopsForRoute(ctx context.Context, routeID int64) ([]models.Stop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.Stop
	for _, s := range m.stops {
		if s.RouteID == routeID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (m *MemoryStore) StopByID(ctx context.Context, id int64) (*models.Stop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.stops[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *MemoryStore) AllStops(ctx context.Context) ([]models.Stop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Stop, 0, len(m.stops))
	for _, s := range m.stops {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) SearchStops(ctx context.Context, name string) ([]models.Stop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var bySubstring, byTokens []models.Stop
	for _, s := range m.stops {
		if matchSubstring(s.Name, name) {
			bySubstring = append(bySubstring, s)
		} else if matchTokens(s.Name, name) {
			byTokens = append(byTokens, s)
		}
	}
	out := bySubstring
	if len(out) == 0 {
		out = byTokens
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) UpdateStopCoords(ctx context.Context, stopID int64, lat, lon float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stops[stopID]
	if !ok {
		return ErrNotFound
	}
	s.Lat = &lat
	s.Lon = &lon
	m.stops[stopID] = s
	return nil
}

func matchSubstring(stopName, query string) bool {
	sn := strings.ToLower(strings.TrimSpace(stopName))
	q := strings.ToLower(strings.TrimSpace(query))
	if sn == "" || q == "" {
		return false
	}
	return strings.Contains(sn, q) || strings.Contains(q, sn)
}

func matchTokens(stopName, query string) bool {
	sn := strings.ToLower(stopName)
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(sn, tok) {
			return true
		}
	}
	return false
}
