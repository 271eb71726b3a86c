// Package telemetry holds the Prometheus metrics of the storefront.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics, registered on its own registry so
// tests can construct them independently.
type Metrics struct {
	registry *prometheus.Registry

	// Request metrics
	RequestsTotal *prometheus.CounterVec

	// Dispatcher metrics
	TicksTotal    prometheus.Counter
	EmailsSent    prometheus.Counter
	EmailFailures prometheus.Counter
	PendingUsers  prometheus.Gauge
}

// NewMetrics creates and registers all metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "storefront_http_requests_total",
			Help: "HTTP requests processed, by method and status.",
		}, []string{"method", "status"}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_notify_ticks_total",
			Help: "Notification dispatcher ticks executed.",
		}),
		EmailsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_notify_emails_sent_total",
			Help: "Signup notification emails sent successfully.",
		}),
		EmailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_notify_email_failures_total",
			Help: "Signup notification emails that failed to send.",
		}),
		PendingUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_notify_pending_users",
			Help: "Users with the pending-notification flag set at the last tick.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.TicksTotal,
		m.EmailsSent,
		m.EmailFailures,
		m.PendingUsers,
	)
	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
