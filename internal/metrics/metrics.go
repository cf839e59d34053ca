// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MarkerOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_marker_ops_total",
		Help: "Marker surface operations by kind (add, update, remove)",
	}, []string{"op"})
	MarkersRendered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_markers_rendered",
		Help: "Number of incident markers currently on the surface",
	})
	IncidentsKnown = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_incidents_known",
		Help: "Number of incidents in the authoritative set",
	})
	AlertsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atlas_alerts_total",
		Help: "Total new-incident events raised by push deltas",
	})

	CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_geocache_lookups_total",
		Help: "Geocode cache lookups by result (positive, negative, miss, expired)",
	}, []string{"result"})
	CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_geocache_entries",
		Help: "Number of entries in the geocode cache",
	})
	CacheFlushFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atlas_geocache_flush_failures_total",
		Help: "Total failed geocode cache flushes",
	})

	GeocodeRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_geocode_requests_total",
		Help: "External geocoding requests by provider and outcome",
	}, []string{"provider", "outcome"})
	GeocodeDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "atlas_geocode_duration_ms",
		Help:    "External geocoding call duration in milliseconds",
		Buckets: []float64{10, 20, 50, 100, 200, 500, 1000, 2000, 5000},
	}, []string{"provider"})

	RoutesRendered = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "atlas_routes_rendered",
		Help: "Number of route features drawn by the last refresh",
	})
	RoutesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atlas_routes_dropped_total",
		Help: "Total routes dropped for having fewer than two resolved waypoints",
	})

	TransportTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_transport_transitions_total",
		Help: "Transport supervisor state transitions by target state",
	}, []string{"state"})
	SnapshotFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "atlas_snapshot_fetches_total",
		Help: "Incident snapshot fetches by outcome",
	}, []string{"outcome"})
	PushDeltas = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atlas_push_deltas_total",
		Help: "Total incident deltas received over push",
	})
	StaleEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "atlas_stale_events_total",
		Help: "Total transport events discarded for a superseded generation",
	})
)

func init() {
	prometheus.MustRegister(MarkerOps)
	prometheus.MustRegister(MarkersRendered)
	prometheus.MustRegister(IncidentsKnown)
	prometheus.MustRegister(AlertsTotal)
	prometheus.MustRegister(CacheLookups)
	prometheus.MustRegister(CacheEntries)
	prometheus.MustRegister(CacheFlushFailures)
	prometheus.MustRegister(GeocodeRequests)
	prometheus.MustRegister(GeocodeDurationMs)
	prometheus.MustRegister(RoutesRendered)
	prometheus.MustRegister(RoutesDropped)
	prometheus.MustRegister(TransportTransitions)
	prometheus.MustRegister(SnapshotFetches)
	prometheus.MustRegister(PushDeltas)
	prometheus.MustRegister(StaleEvents)
}

// Handler exposes the registered collectors for scraping.
func Handler() http.Handler { return promhttp.Handler() }
