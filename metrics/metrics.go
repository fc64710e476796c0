// Package metrics holds the Prometheus collectors for the checkout host.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"worldpay-checkout/models"
)

const (
	MetricFlowTransitionsTotal   = "checkout_flow_transitions_total"
	MetricSubmissionsTotal       = "checkout_submissions_total"
	MetricBackendRequestDuration = "checkout_backend_request_duration_seconds"
	MetricActiveSessions         = "checkout_active_sessions"
	MetricReportJobsTotal        = "checkout_report_jobs_total"
)

// Metrics is safe for concurrent use.
type Metrics struct {
	transitions    *prometheus.CounterVec
	submissions    *prometheus.CounterVec
	backendLatency *prometheus.HistogramVec
	activeSessions prometheus.Gauge
	reportJobs     *prometheus.CounterVec
}

// NewMetrics creates the collectors without registering them.
func NewMetrics() *Metrics {
	return &Metrics{
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricFlowTransitionsTotal,
				Help: "Total number of payment flow state transitions",
			},
			[]string{"from", "to"},
		),
		submissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSubmissionsTotal,
				Help: "Total number of payment attempts by rail and resulting state",
			},
			[]string{"method", "outcome"},
		),
		backendLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricBackendRequestDuration,
				Help:    "Histogram of payment API request duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
			},
			[]string{"operation", "outcome"},
		),
		activeSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: MetricActiveSessions,
				Help: "Number of checkout sessions held in memory",
			},
		),
		reportJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricReportJobsTotal,
				Help: "Total number of error report jobs processed by status",
			},
			[]string{"status"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveTransition(from, to models.FlowState) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) ObserveSubmission(method string, outcome string) {
	m.submissions.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) ObserveBackendRequest(operation, outcome string, seconds float64) {
	m.backendLatency.WithLabelValues(operation, outcome).Observe(seconds)
}

func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// IncReportJobs counts one report job by its final status (sent, retried, dropped).
func (m *Metrics) IncReportJobs(status string) {
	m.reportJobs.WithLabelValues(status).Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.transitions,
		m.submissions,
		m.backendLatency,
		m.activeSessions,
		m.reportJobs,
	}
}
