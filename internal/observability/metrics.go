package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "geo_anchor"

// Metrics holds the Prometheus collectors for the anchor service.
type Metrics struct {
	RecordsRegistered prometheus.Counter
	RegisterRejected  *prometheus.CounterVec // labels: reason={invalid_input,unreachable,storage}
	ResolveRequests   *prometheus.CounterVec // labels: outcome={found,not_found,invalid_input,error}

	// Storage metrics.
	StorageDuration *prometheus.HistogramVec // labels: operation={init,save,list,find_nearest}
	StorageErrors   *prometheus.CounterVec   // labels: operation

	// Content probe metrics.
	ContentProbes        *prometheus.CounterVec // labels: outcome={skipped,reachable,unreachable}
	ContentProbeDuration prometheus.Histogram

	// Record event publishing.
	RecordsPublished prometheus.Counter
	PublishErrors    prometheus.Counter
	OutboxDropped    prometheus.Counter
	OutboxRunning    prometheus.Gauge

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all service metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RecordsRegistered,
		m.RegisterRejected,
		m.ResolveRequests,
		m.StorageDuration,
		m.StorageErrors,
		m.ContentProbes,
		m.ContentProbeDuration,
		m.RecordsPublished,
		m.PublishErrors,
		m.OutboxDropped,
		m.OutboxRunning,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		RecordsRegistered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_registered_total",
			Help:      "Total records saved through register.",
		}),
		RegisterRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "register_rejected_total",
			Help:      "Register calls that did not save a record, by reason.",
		}, []string{"reason"}),
		ResolveRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_requests_total",
			Help:      "Resolve calls by outcome.",
		}, []string{"outcome"}),
		StorageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_operation_duration_seconds",
			Help:      "Storage backend call duration in seconds.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5},
		}, []string{"operation"}),
		StorageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Storage backend failures by operation.",
		}, []string{"operation"}),
		ContentProbes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_probes_total",
			Help:      "Content reachability checks by outcome.",
		}, []string{"outcome"}),
		ContentProbeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "content_probe_duration_seconds",
			Help:      "Duration of outbound content probes in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		RecordsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_published_total",
			Help:      "Total record events written to the event topic.",
		}),
		PublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Failed attempts to write a batch of record events.",
		}),
		OutboxDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_dropped_total",
			Help:      "Record events dropped because the outbox queue was full.",
		}),
		OutboxRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_running",
			Help:      "1 when the event relay is active, 0 when shut down.",
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      "Reverse geocoding API requests by outcome.",
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      "Mapbox API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      "1 when place enrichment is enabled, 0 otherwise.",
		}),
	}
}
