package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/bus-tracking/internal/config"
	"github.com/example/bus-tracking/internal/directions"
	"github.com/example/bus-tracking/internal/dispatch"
	"github.com/example/bus-tracking/internal/geo"
	"github.com/example/bus-tracking/internal/geocode"
	"github.com/example/bus-tracking/internal/ingest"
	"github.com/example/bus-tracking/internal/locate"
	"github.com/example/bus-tracking/internal/matcher"
	"github.com/example/bus-tracking/internal/models"
	"github.com/example/bus-tracking/internal/routeplan"
	"github.com/example/bus-tracking/internal/storage"
	"github.com/example/bus-tracking/internal/tracking"
)

type Server struct {
	Store    storage.Store
	Ingestor *tracking.Ingestor
	Detector *tracking.Detector
	Matcher  *matcher.Service
	Planner  *routeplan.Resolver
	Geocoder *geocode.Geocoder
	WSReg    *dispatch.WSRegistry

	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires every service from config: postgres (or the in-memory
// store when no DSN is set), the optional Redis index and Kafka
// producer, the tiered geocoder and route resolver, and the
// detector/matcher pair on top.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	var store storage.Store
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Error("postgres unavailable, using in-memory store", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	var index *locate.RedisIndex
	if cfg.RedisAddr != "" {
		index = locate.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	}

	var producer *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	gazetteer := geocode.Gazetteer{}
	if cfg.GazetteerPath != "" {
		if g, err := geocode.LoadGazetteer(cfg.GazetteerPath); err == nil {
			gazetteer = g
		} else {
			logger.Warn("gazetteer load failed", "path", cfg.GazetteerPath, "error", err)
		}
	}
	geocoder := &geocode.Geocoder{
		Gazetteer:       gazetteer,
		Client:          geocode.NewNominatimClient(cfg.GeocoderURL, cfg.GeocoderAgent, cfg.GeocoderTimeout),
		Bounds:          geocode.BoundingBox{MinLat: cfg.BoundsMinLat, MaxLat: cfg.BoundsMaxLat, MinLon: cfg.BoundsMinLon, MaxLon: cfg.BoundsMaxLon},
		RegionSuffix:    cfg.RegionSuffix,
		RegionalContext: cfg.RegionalContext,
		Logger:          logger,
	}

	var dirClient directions.Client
	if cfg.DirectionsAPIKey != "" {
		dirClient = directions.NewORSClient(cfg.DirectionsURL, cfg.DirectionsAPIKey, cfg.DirectionsTimeout)
	}

	planner := &routeplan.Resolver{
		Geocoder:    geocoder,
		Directions:  dirClient,
		Stops:       store,
		AvgSpeedKmh: cfg.AvgSpeedKmh,
		Deadline:    cfg.ResolveDeadline,
		Cache:       routeplan.NewCache(cfg.RouteCacheTTL),
		Logger:      logger,
	}

	eta := geo.ETAParams{AvgSpeedKmh: cfg.AvgSpeedKmh, BufferMinPerKm: cfg.ETABufferMinPerKm, MinimumMinutes: cfg.MinETAMinutes}
	detector := &tracking.Detector{Store: store, ThresholdMeters: cfg.ProximityThresholdM, ETA: eta}

	wsreg := dispatch.NewWSRegistry()
	ingestor := &tracking.Ingestor{
		Store:    store,
		Detector: detector,
		Dispatch: dispatch.NewPushDispatcher(cfg.PushEndpoint, wsreg),
		Logger:   logger,
	}
	if producer != nil {
		ingestor.Producer = producer
	}
	if index != nil {
		ingestor.Index = index
	}

	m := &matcher.Service{
		Store:           store,
		Planner:         planner,
		DefaultRadiusKm: cfg.DefaultRadiusKm,
		ETA:             eta,
		Logger:          logger,
	}
	if index != nil {
		m.Index = index
	}

	s := &Server{
		Store:    store,
		Ingestor: ingestor,
		Detector: detector,
		Matcher:  m,
		Planner:  planner,
		Geocoder: geocoder,
		WSReg:    wsreg,
		logger:   logger,
		mux:      mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/internal/driver/locations", s.handleIngestFix).Methods("POST")
	s.mux.HandleFunc("/api/v1/driver/{driver_id}/next-stop", s.handleNextStop).Methods("GET")
	s.mux.HandleFunc("/api/v1/driver/{driver_id}/proximity", s.handleProximity).Methods("GET")
	s.mux.HandleFunc("/api/v1/routes/{route_id}/map", s.handleRouteMap).Methods("GET")
	s.mux.HandleFunc("/api/v1/vehicles/{vehicle_id}/live-location", s.handleLiveLocation).Methods("GET")
	s.mux.HandleFunc("/api/v1/passenger/nearby", s.handleNearby).Methods("GET")
	s.mux.HandleFunc("/api/v1/passenger/find-route", s.handleFindRoute).Methods("POST")
	s.mux.HandleFunc("/api/v1/stops/search", s.handleStopSearch).Methods("GET")
	s.mux.HandleFunc("/api/v1/geocode", s.handleGeocode).Methods("POST")
	s.mux.HandleFunc("/api/v1/geocode/reverse", s.handleReverseGeocode).Methods("GET")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/{driver_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleIngestFix(w http.ResponseWriter, r *http.Request) {
	var req tracking.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.Ingestor.IngestFix(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleNextStop(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	route, err := s.Store.ActiveRouteForDriver(r.Context(), driverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	fix, err := s.Store.LatestFixByDriver(r.Context(), driverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	next, ok, err := s.Detector.NextStop(r.Context(), route.ID, fix.Loc.Lat, fix.Loc.Lon)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, map[string]any{"route_id": route.ID, "next_stop": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"route_id": route.ID, "next_stop": next})
}

func (s *Server) handleProximity(w http.ResponseWriter, r *http.Request) {
	driverID := mux.Vars(r)["driver_id"]
	route, err := s.Store.ActiveRouteForDriver(r.Context(), driverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	fix, err := s.Store.LatestFixByDriver(r.Context(), driverID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	alert, err := s.Detector.CheckProximity(r.Context(), route.ID, fix.Loc.Lat, fix.Loc.Lon)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if alert == nil {
		writeJSON(w, http.StatusOK, map[string]any{"triggered": false})
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

func (s *Server) handleRouteMap(w http.ResponseWriter, r *http.Request) {
	routeID, err := strconv.ParseInt(mux.Vars(r)["route_id"], 10, 64)
	if err != nil {
		http.Error(w, "invalid route id", http.StatusBadRequest)
		return
	}
	display, err := s.Planner.ResolveForRoute(r.Context(), routeID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, display)
}

func (s *Server) handleLiveLocation(w http.ResponseWriter, r *http.Request) {
	vehicleID := mux.Vars(r)["vehicle_id"]
	fix, err := s.Store.LatestFixByVehicle(r.Context(), vehicleID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]any{"vehicle_id": vehicleID, "loc": fix.Loc, "captured_at": fix.CapturedAt}
	if route, err := s.Store.ActiveRouteForVehicle(r.Context(), vehicleID); err == nil {
		resp["route_id"] = route.ID
		resp["route_name"] = route.Name
		if next, ok, err := s.Detector.NextStop(r.Context(), route.ID, fix.Loc.Lat, fix.Loc.Lon); err == nil && ok {
			resp["next_stop"] = next
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}
	radiusKm := 0.0
	if v := r.URL.Query().Get("radius_km"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			http.Error(w, "invalid radius_km", http.StatusBadRequest)
			return
		}
		radiusKm = f
	}
	vehicles, err := s.Matcher.RadiusSearch(r.Context(), lat, lon, radiusKm)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"vehicles": vehicles, "count": len(vehicles)})
}

func (s *Server) handleFindRoute(w http.ResponseWriter, r *http.Request) {
	var q models.ConnectivityQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.Matcher.Connectivity(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStopSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}
	stops, err := s.Store.SearchStops(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stops": stops, "count": len(stops)})
}

func (s *Server) handleGeocode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}
	loc, tier, err := s.Geocoder.Resolve(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"name": req.Name, "loc": loc, "tier": tier})
}

func (s *Server) handleReverseGeocode(w http.ResponseWriter, r *http.Request) {
	lat, latErr := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(r.URL.Query().Get("lon"), 64)
	if latErr != nil || lonErr != nil {
		http.Error(w, "lat and lon are required", http.StatusBadRequest)
		return
	}
	if err := geo.Validate(models.Coord{Lat: lat, Lon: lon}); err != nil {
		s.writeError(w, err)
		return
	}
	name, err := s.Geocoder.Reverse(r.Context(), models.Coord{Lat: lat, Lon: lon})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"display_name": name})
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["driver_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(id, conn)
}

// writeError maps domain sentinels onto HTTP statuses. Unresolved
// geocoding and routing are client-visible outcomes, not server faults.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, geo.ErrInvalidCoordinate):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, geocode.ErrUnresolved), errors.Is(err, routeplan.ErrUnresolved):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, storage.ErrUnavailable):
		s.logger.Error("storage failure", "error", err)
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
	default:
		s.logger.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
