package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsFailed  prometheus.Counter
	SessionsRemoved prometheus.Counter

	// Operation metrics
	OperationDuration *prometheus.HistogramVec

	// Asset cache metrics
	AssetLookups     *prometheus.CounterVec
	AssetExtractions *prometheus.CounterVec

	// Registration metrics
	RegistrationAttempts *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates a new metrics collector
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copper_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copper_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "copper_sessions_active",
			Help: "Number of live browser sessions",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "copper_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "copper_sessions_failed_total",
			Help: "Total number of failed session creations",
		}),
		SessionsRemoved: factory.NewCounter(prometheus.CounterOpts{
			Name: "copper_sessions_removed_total",
			Help: "Total number of sessions removed",
		}),

		OperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "copper_operation_duration_seconds",
				Help:    "Duration of registry, cache and registration operations",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"component", "operation", "status"},
		),

		AssetLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copper_asset_lookups_total",
				Help: "Asset cache lookups by result (hit, shared, miss)",
			},
			[]string{"result"},
		),
		AssetExtractions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copper_asset_extractions_total",
				Help: "Asset extractions by outcome",
			},
			[]string{"status"},
		),

		RegistrationAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copper_node_registration_attempts_total",
				Help: "Hub join/leave attempts by operation and outcome",
			},
			[]string{"operation", "status"},
		),

		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "copper_ws_connections",
			Help: "Number of proxied WebSocket connections",
		}),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "copper_ws_messages_total",
				Help: "Total number of proxied WebSocket frames",
			},
			[]string{"direction"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "copper_uptime_seconds",
		Help: "Server uptime in seconds",
	}, func() float64 {
		return time.Since(m.startTime).Seconds()
	})

	return m
}

// Handler exposes the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordOperation records the duration of a domain operation
func (m *Metrics) RecordOperation(component, operation, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(component, operation, status).Observe(duration.Seconds())
}

// SetSessionsActive sets the number of live sessions
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// IncSessionsCreated increments the created sessions counter
func (m *Metrics) IncSessionsCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// IncSessionsFailed increments the failed creations counter
func (m *Metrics) IncSessionsFailed() {
	if m == nil {
		return
	}
	m.SessionsFailed.Inc()
}

// IncSessionsRemoved increments the removed sessions counter
func (m *Metrics) IncSessionsRemoved() {
	if m == nil {
		return
	}
	m.SessionsRemoved.Inc()
}

// RecordAssetLookup records an asset cache lookup result
func (m *Metrics) RecordAssetLookup(result string) {
	if m == nil {
		return
	}
	m.AssetLookups.WithLabelValues(result).Inc()
}

// RecordAssetExtraction records an extraction outcome
func (m *Metrics) RecordAssetExtraction(status string) {
	if m == nil {
		return
	}
	m.AssetExtractions.WithLabelValues(status).Inc()
}

// RecordRegistrationAttempt records one hub call
func (m *Metrics) RecordRegistrationAttempt(operation, status string) {
	if m == nil {
		return
	}
	m.RegistrationAttempts.WithLabelValues(operation, status).Inc()
}

// RecordWSMessage records a proxied WebSocket frame
func (m *Metrics) RecordWSMessage(direction string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
