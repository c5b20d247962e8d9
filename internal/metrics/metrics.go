// Package metrics exposes Prometheus collectors for the compliance service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "compliance_layer"

// Metrics owns a private registry so several instances can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	alerts       prometheus.Counter
	auditErrors  prometheus.Counter
	fetchRetries prometheus.Counter
	certificates *prometheus.GaugeVec
	lastRun      prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"service", "method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		}, []string{"service", "method", "path"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gaschecker",
			Name:      "runs_total",
			Help:      "Total number of compliance evaluation runs.",
		}, []string{"trigger", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gaschecker",
			Name:      "run_duration_seconds",
			Help:      "Duration of compliance evaluation runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}, []string{"trigger"}),
		alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gaschecker",
			Name:      "alerts_total",
			Help:      "Total number of alerts produced by evaluation runs.",
		}),
		auditErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gaschecker",
			Name:      "audit_write_errors_total",
			Help:      "Audit log writes that failed.",
		}),
		fetchRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gaschecker",
			Name:      "fetch_retries_total",
			Help:      "Certificate store reads retried after a transient failure.",
		}),
		certificates: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gaschecker",
			Name:      "certificates",
			Help:      "Certificates per classification in the most recent run.",
		}, []string{"state"}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gaschecker",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the most recent completed run.",
		}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.runs,
		m.runDuration,
		m.alerts,
		m.auditErrors,
		m.fetchRetries,
		m.certificates,
		m.lastRun,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler exposes the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordHTTPRequest records one handled request.
func (m *Metrics) RecordHTTPRequest(service, method, path, status string, duration time.Duration) {
	method = strings.ToUpper(method)
	m.httpRequests.WithLabelValues(service, method, path, status).Inc()
	m.httpDuration.WithLabelValues(service, method, path).Observe(duration.Seconds())
}

// RecordRun records a finished evaluation run. outcome is "success",
// "degraded" or "failed".
func (m *Metrics) RecordRun(trigger, outcome string, duration time.Duration, alerts int) {
	if trigger == "" {
		trigger = "unknown"
	}
	if duration <= 0 {
		duration = time.Microsecond
	}
	m.runs.WithLabelValues(trigger, outcome).Inc()
	m.runDuration.WithLabelValues(trigger).Observe(duration.Seconds())
	if alerts > 0 {
		m.alerts.Add(float64(alerts))
	}
	m.lastRun.Set(float64(time.Now().Unix()))
}

// SetCertificateCounts publishes the classification counts of the latest run.
func (m *Metrics) SetCertificateCounts(counts map[string]int) {
	for state, n := range counts {
		m.certificates.WithLabelValues(state).Set(float64(n))
	}
}

func (m *Metrics) RecordAuditFailure() { m.auditErrors.Inc() }
func (m *Metrics) RecordFetchRetry()   { m.fetchRetries.Inc() }

// StatusLabel formats an HTTP status code as a label value.
func StatusLabel(code int) string {
	return strconv.Itoa(code)
}
