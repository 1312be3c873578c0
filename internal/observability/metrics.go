package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FixesIngested   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bus_tracking", Name: "fixes_ingested_total", Help: "Total position fixes ingested"})
	ProximityAlerts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bus_tracking", Name: "proximity_alerts_total", Help: "Total proximity alerts triggered"})

	GeocodeResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bus_tracking", Name: "geocode_resolutions_total", Help: "Successful geocode resolutions by tier"},
		[]string{"tier"},
	)
	RouteResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bus_tracking", Name: "route_resolutions_total", Help: "Successful route resolutions by tier"},
		[]string{"tier"},
	)

	RadiusSearches       = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bus_tracking", Name: "radius_searches_total", Help: "Total radius searches served"})
	ConnectivitySearches = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bus_tracking", Name: "connectivity_searches_total", Help: "Total connectivity searches by outcome"},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bus_tracking", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bus_tracking",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
