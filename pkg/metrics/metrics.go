package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Collection metrics
	CollectionOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netpanel_collection_operations_total",
			Help: "Total number of collection mutations by collection, operation and result",
		},
		[]string{"collection", "op", "result"},
	)

	CollectionRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netpanel_collection_records",
			Help: "Number of records stored in each collection",
		},
		[]string{"collection"},
	)

	// Preset metrics
	PresetCacheReloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "netpanel_preset_cache_reloads_total",
			Help: "Total number of preset cache reloads",
		},
	)

	// Inventory metrics
	MachinesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "netpanel_machines_total",
			Help: "Number of inventory machines by state",
		},
		[]string{"state"},
	)

	IntnetsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "netpanel_intnets_total",
			Help: "Number of intnets reported by the inventory",
		},
	)

	IntnetApplyFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "netpanel_intnet_apply_failures_total",
			Help: "Total number of machines that failed to receive an intnet configuration",
		},
	)

	// Auth metrics
	LoginAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netpanel_login_attempts_total",
			Help: "Total number of login attempts by result",
		},
		[]string{"result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netpanel_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "netpanel_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Event metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "netpanel_events_published_total",
			Help: "Total number of events published by type",
		},
		[]string{"type"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(CollectionOperations)
	prometheus.MustRegister(CollectionRecords)
	prometheus.MustRegister(PresetCacheReloads)
	prometheus.MustRegister(MachinesTotal)
	prometheus.MustRegister(IntnetsTotal)
	prometheus.MustRegister(IntnetApplyFailures)
	prometheus.MustRegister(LoginAttempts)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(EventsPublished)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
