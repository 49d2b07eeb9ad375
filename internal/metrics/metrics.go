// Package metrics exposes Prometheus metrics for sessions, output delivery
// and the HTTP API.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Create failure reasons.
const (
	ReasonDevice = "device"
	ReasonSpawn  = "spawn"
	ReasonLimit  = "limit"
	ReasonClosed = "closed"
	ReasonOther  = "other"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	CreateFailures  *prometheus.CounterVec

	// Output metrics
	OutputBytes     prometheus.Counter
	PublishedChunks prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// New creates the metrics on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ptyhost_sessions_active",
			Help: "Number of sessions currently held in the session table",
		}),
		SessionsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptyhost_sessions_created_total",
			Help: "Total number of sessions whose shell was spawned",
		}),
		CreateFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptyhost_session_create_failures_total",
				Help: "Total number of failed session creations",
			},
			[]string{"reason"},
		),

		OutputBytes: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptyhost_output_bytes_total",
			Help: "Total bytes of decoded terminal output",
		}),
		PublishedChunks: factory.NewCounter(prometheus.CounterOpts{
			Name: "ptyhost_published_chunks_total",
			Help: "Total output chunks handed to the publisher",
		}),

		WSConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "ptyhost_websocket_connections",
			Help: "Number of open event stream connections",
		}),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ptyhost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ptyhost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SessionCreated records a successful spawn.
func (m *Metrics) SessionCreated() {
	if m == nil {
		return
	}
	m.SessionsCreated.Inc()
}

// SessionCreateFailed records a failed create with its reason.
func (m *Metrics) SessionCreateFailed(reason string) {
	if m == nil {
		return
	}
	m.CreateFailures.WithLabelValues(reason).Inc()
}

// SetActiveSessions sets the number of sessions held by the table.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(n))
}

// AddOutputBytes records decoded output.
func (m *Metrics) AddOutputBytes(n int) {
	if m == nil {
		return
	}
	m.OutputBytes.Add(float64(n))
}

// ChunkPublished records one publish call.
func (m *Metrics) ChunkPublished() {
	if m == nil {
		return
	}
	m.PublishedChunks.Inc()
}

// ConnectionOpened records a new event stream connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// ConnectionClosed records a closed event stream connection.
func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}
