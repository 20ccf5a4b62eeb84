package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tsunami_alert"

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingest pipeline, the threat models, and alert dispatch.
type Metrics struct {
	MessagesConsumed prometheus.Counter
	ReportsProduced  prometheus.Counter
	ParseErrors      *prometheus.CounterVec // labels: reason={unrecognized,invalid_source,malformed}
	EventsParsed     *prometheus.CounterVec // labels: format={usgs-feature,flat}
	PipelineRunning  prometheus.Gauge

	// Batch processing metrics.
	BatchSize               prometheus.Histogram
	BatchProcessingDuration prometheus.Histogram

	// Threat evaluation metrics.
	ThreatsAssessed *prometheus.CounterVec // labels: severity
	ImpactScore     prometheus.Histogram

	// Alert lifecycle metrics.
	AlertsCreated  *prometheus.CounterVec // labels: severity
	AlertConflicts prometheus.Counter
	AlertsExpired  prometheus.Counter

	// Delivery metrics.
	DeliveriesStarted *prometheus.CounterVec   // labels: channel
	DeliveryOutcomes  *prometheus.CounterVec   // labels: channel, outcome={sent,delivered,failed,panic}
	SendDuration      *prometheus.HistogramVec // labels: channel
	SendsInFlight     prometheus.Gauge

	// Aftershock catalog metrics.
	CatalogRequests    *prometheus.CounterVec // labels: outcome={success,error}
	CatalogCache       *prometheus.CounterVec // labels: result={hit,miss}
	CatalogAPIDuration prometheus.Histogram
	CatalogEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		MessagesConsumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_consumed_total",
			Help:      "Total earthquake messages read from the source topic.",
		}),
		ReportsProduced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_produced_total",
			Help:      "Total event reports written to the sink topic.",
		}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Earthquake messages rejected by the upstream parsers.",
		}, []string{"reason"}),
		EventsParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_parsed_total",
			Help:      "Earthquake messages accepted, by feed format.",
		}, []string{"format"}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 when the pipeline is active, 0 when shut down.",
		}),
		BatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per batch extracted from Kafka.",
			Buckets:   []float64{1, 5, 10, 20, 30, 40, 50, 75, 100},
		}),
		BatchProcessingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_processing_duration_seconds",
			Help:      "Duration of a complete batch extract-evaluate-load cycle.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
		}),
		ThreatsAssessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "threats_assessed_total",
			Help:      "Vessel threat assessments by severity.",
		}, []string{"severity"}),
		ImpactScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "impact_score",
			Help:      "Distribution of maritime impact scores.",
			Buckets:   []float64{5, 15, 30, 50, 75, 90, 100},
		}),
		AlertsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_created_total",
			Help:      "Alerts created, by severity.",
		}, []string{"severity"}),
		AlertConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_conflicts_total",
			Help:      "Alert creations rejected because an active alert already exists.",
		}),
		AlertsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_expired_total",
			Help:      "Active alerts moved to expired.",
		}),
		DeliveriesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_started_total",
			Help:      "Delivery sends spawned, by channel.",
		}, []string{"channel"}),
		DeliveryOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_outcomes_total",
			Help:      "Finished deliveries by channel and outcome.",
		}, []string{"channel", "outcome"}),
		SendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "send_duration_seconds",
			Help:      "Channel sender call duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"channel"}),
		SendsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sends_in_flight",
			Help:      "Channel sends currently running.",
		}),
		CatalogRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_requests_total",
			Help:      "Aftershock catalog API requests by outcome.",
		}, []string{"outcome"}),
		CatalogCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "catalog_cache_total",
			Help:      "Aftershock catalog cache lookups by result.",
		}, []string{"result"}),
		CatalogAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "catalog_api_duration_seconds",
			Help:      "Aftershock catalog API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		CatalogEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_enabled",
			Help:      "1 when aftershock catalog enrichment is enabled, 0 otherwise.",
		}),
	}
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesConsumed,
		m.ReportsProduced,
		m.ParseErrors,
		m.EventsParsed,
		m.PipelineRunning,
		m.BatchSize,
		m.BatchProcessingDuration,
		m.ThreatsAssessed,
		m.ImpactScore,
		m.AlertsCreated,
		m.AlertConflicts,
		m.AlertsExpired,
		m.DeliveriesStarted,
		m.DeliveryOutcomes,
		m.SendDuration,
		m.SendsInFlight,
		m.CatalogRequests,
		m.CatalogCache,
		m.CatalogAPIDuration,
		m.CatalogEnabled,
	}
}
