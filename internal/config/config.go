package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ServerConfig captures all tunable parameters for the HTTP API process.
// Values are primarily loaded from environment variables with sane defaults
// so the binary can run locally without excessive setup.
type ServerConfig struct {
	HTTPAddr        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisGeoKey   string

	KafkaBrokers []string
	KafkaTopic   string

	PGDSN string

	PushEndpoint string

	// Proximity and ETA tuning.
	ProximityThresholdM float64
	AvgSpeedKmh         float64
	ETABufferMinPerKm   float64
	MinETAMinutes       int
	DefaultRadiusKm     float64

	// Geocoding.
	GazetteerPath    string
	GeocoderURL      string
	GeocoderAgent    string
	GeocoderTimeout  time.Duration
	RegionSuffix     string
	RegionalContext  string
	BoundsMinLat     float64
	BoundsMaxLat     float64
	BoundsMinLon     float64
	BoundsMaxLon     float64

	// Directions.
	DirectionsURL     string
	DirectionsAPIKey  string
	DirectionsTimeout time.Duration
	ResolveDeadline   time.Duration
	RouteCacheTTL     time.Duration

	LogLevel      string
	RunMigrations bool
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPAddr:        ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RedisGeoKey:     "vehicles_geo",
		KafkaTopic:      "position-fixes",

		ProximityThresholdM: 100,
		AvgSpeedKmh:         40,
		ETABufferMinPerKm:   2,
		MinETAMinutes:       5,
		DefaultRadiusKm:     3,

		GazetteerPath:   "config/gazetteer.json",
		GeocoderURL:     "https://nominatim.openstreetmap.org",
		GeocoderAgent:   "bus-tracking/1.0",
		GeocoderTimeout: 5 * time.Second,
		RegionSuffix:    "Tamil Nadu, India",
		RegionalContext: "Coimbatore, Tamil Nadu, India",
		BoundsMinLat:    6,
		BoundsMaxLat:    37,
		BoundsMinLon:    68,
		BoundsMaxLon:    98,

		DirectionsURL:     "https://api.openrouteservice.org",
		DirectionsTimeout: 8 * time.Second,
		ResolveDeadline:   20 * time.Second,
		RouteCacheTTL:     10 * time.Minute,

		LogLevel: "info",
	}
}

func LoadServerConfig() (ServerConfig, error) {
	// local overrides; missing file is the normal case
	_ = godotenv.Load()

	cfg := defaultServerConfig()
	var errs []error

	setStringFromEnv(&cfg.HTTPAddr, "HTTP_ADDR")
	setDurationFromEnv(&cfg.ReadTimeout, "HTTP_READ_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.WriteTimeout, "HTTP_WRITE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.IdleTimeout, "HTTP_IDLE_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ShutdownTimeout, "HTTP_SHUTDOWN_TIMEOUT", &errs)

	cfg.RedisAddr = strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	setStringFromEnv(&cfg.RedisGeoKey, "REDIS_GEO_KEY")

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = splitAndTrim(brokers)
	}
	setStringFromEnv(&cfg.KafkaTopic, "KAFKA_TOPIC")

	cfg.PGDSN = os.Getenv("PG_DSN")
	cfg.PushEndpoint = os.Getenv("PUSH_ENDPOINT")

	setFloatFromEnv(&cfg.ProximityThresholdM, "PROXIMITY_THRESHOLD_M", &errs)
	setFloatFromEnv(&cfg.AvgSpeedKmh, "AVG_SPEED_KMH", &errs)
	setFloatFromEnv(&cfg.ETABufferMinPerKm, "ETA_BUFFER_MIN_PER_KM", &errs)
	setIntFromEnv(&cfg.MinETAMinutes, "MIN_ETA_MINUTES", &errs)
	setFloatFromEnv(&cfg.DefaultRadiusKm, "DEFAULT_RADIUS_KM", &errs)

	setStringFromEnv(&cfg.GazetteerPath, "GAZETTEER_PATH")
	setStringFromEnv(&cfg.GeocoderURL, "GEOCODER_URL")
	setStringFromEnv(&cfg.GeocoderAgent, "GEOCODER_USER_AGENT")
	setDurationFromEnv(&cfg.GeocoderTimeout, "GEOCODER_TIMEOUT", &errs)
	setStringFromEnv(&cfg.RegionSuffix, "REGION_SUFFIX")
	setStringFromEnv(&cfg.RegionalContext, "REGIONAL_CONTEXT")
	setFloatFromEnv(&cfg.BoundsMinLat, "BOUNDS_MIN_LAT", &errs)
	setFloatFromEnv(&cfg.BoundsMaxLat, "BOUNDS_MAX_LAT", &errs)
	setFloatFromEnv(&cfg.BoundsMinLon, "BOUNDS_MIN_LON", &errs)
	setFloatFromEnv(&cfg.BoundsMaxLon, "BOUNDS_MAX_LON", &errs)

	setStringFromEnv(&cfg.DirectionsURL, "DIRECTIONS_URL")
	cfg.DirectionsAPIKey = os.Getenv("DIRECTIONS_API_KEY")
	setDurationFromEnv(&cfg.DirectionsTimeout, "DIRECTIONS_TIMEOUT", &errs)
	setDurationFromEnv(&cfg.ResolveDeadline, "RESOLVE_DEADLINE", &errs)
	setDurationFromEnv(&cfg.RouteCacheTTL, "ROUTE_CACHE_TTL", &errs)

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}

	cfg.RunMigrations = strings.EqualFold(os.Getenv("MIGRATE"), "true")

	if cfg.ProximityThresholdM <= 0 {
		errs = append(errs, fmt.Errorf("PROXIMITY_THRESHOLD_M must be > 0"))
	}
	if cfg.AvgSpeedKmh <= 0 {
		errs = append(errs, fmt.Errorf("AVG_SPEED_KMH must be > 0"))
	}

	return cfg, errors.Join(errs...)
}

func setDurationFromEnv(target *time.Duration, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = d
	}
}

func setFloatFromEnv(target *float64, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = f
	}
}

func setIntFromEnv(target *int, key string, errs *[]error) {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err != nil {
			*errs = append(*errs, fmt.Errorf("invalid %s: %w", key, err))
			return
		}
		*target = i
	}
}

func setStringFromEnv(target *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*target = v
	}
}

func splitAndTrim(v string) []string {
	raw := strings.Split(v, ",")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}
