// Package metrics exposes Prometheus collectors for the HTTP API and the
// real-time gateway.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trackrater/src/core/ports"
)

// Metrics owns a registry so tests can create isolated instances.
type Metrics struct {
	registry *prometheus.Registry

	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec
	BroadcastTotal  *prometheus.CounterVec
	Connections     prometheus.Gauge
	InboundTotal    *prometheus.CounterVec
}

var _ ports.BroadcastObserver = (*Metrics)(nil)

// New registers every collector plus the Go and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		RequestTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		BroadcastTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_broadcast_total",
				Help: "Events emitted to real-time rooms",
			},
			[]string{"room", "event", "result"},
		),
		Connections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "realtime_connections",
				Help: "Open websocket connections",
			},
		),
		InboundTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "realtime_inbound_total",
				Help: "Inbound real-time commands by outcome",
			},
			[]string{"event", "result"},
		),
	}
	m.registry.MustRegister(
		m.RequestDuration,
		m.RequestTotal,
		m.BroadcastTotal,
		m.Connections,
		m.InboundTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	m.RequestDuration.WithLabelValues(method, path, code).Observe(elapsed.Seconds())
	m.RequestTotal.WithLabelValues(method, path, code).Inc()
}

// ObserveBroadcast records the outcome of one emitted event.
func (m *Metrics) ObserveBroadcast(room ports.Room, event string, err error) {
	m.BroadcastTotal.WithLabelValues(string(room), event, result(err)).Inc()
}

// ObserveInbound records the outcome of one inbound command.
func (m *Metrics) ObserveInbound(event string, err error) {
	m.InboundTotal.WithLabelValues(event, result(err)).Inc()
}

// ConnectionOpened tracks a new websocket.
func (m *Metrics) ConnectionOpened() { m.Connections.Inc() }

// ConnectionClosed tracks a finished websocket.
func (m *Metrics) ConnectionClosed() { m.Connections.Dec() }

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
