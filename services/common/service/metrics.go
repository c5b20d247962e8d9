package service

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
)

// latencyBounds are the upper bounds of the latency buckets shown on /info.
var latencyBounds = []struct {
	label string
	max   time.Duration
}{
	{"lt_10ms", 10 * time.Millisecond},
	{"lt_50ms", 50 * time.Millisecond},
	{"lt_100ms", 100 * time.Millisecond},
	{"lt_500ms", 500 * time.Millisecond},
	{"lt_1s", time.Second},
}

const overflowBucket = "gt_1s"

// ServiceMetrics keeps an in-process request summary exposed on /info, next
// to the Prometheus collectors scraped from /metrics.
type ServiceMetrics struct {
	serviceName string
	startTime   time.Time

	total   atomic.Int64
	success atomic.Int64
	failed  atomic.Int64

	mu      sync.RWMutex
	latency map[string]int64
	errors  map[string]int64
	routes  map[string]int64
}

// NewServiceMetrics creates a new metrics collector.
func NewServiceMetrics(serviceName string) *ServiceMetrics {
	m := &ServiceMetrics{
		serviceName: serviceName,
		startTime:   time.Now(),
		latency:     map[string]int64{overflowBucket: 0},
		errors:      map[string]int64{},
		routes:      map[string]int64{},
	}
	for _, b := range latencyBounds {
		m.latency[b.label] = 0
	}
	return m
}

// RecordRequest records one request against route.
func (m *ServiceMetrics) RecordRequest(route string, status int, duration time.Duration) {
	m.total.Add(1)
	if status < http.StatusInternalServerError {
		m.success.Add(1)
	} else {
		m.failed.Add(1)
	}

	bucket := overflowBucket
	for _, b := range latencyBounds {
		if duration < b.max {
			bucket = b.label
			break
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.latency[bucket]++
	m.routes[route]++
	if status >= http.StatusBadRequest {
		m.errors[http.StatusText(status)]++
	}
}

// MetricsResponse is the JSON snapshot of ServiceMetrics.
type MetricsResponse struct {
	Service   string           `json:"service"`
	Uptime    string           `json:"uptime"`
	Requests  RequestMetrics   `json:"requests"`
	Latency   map[string]int64 `json:"latency_buckets"`
	Errors    map[string]int64 `json:"errors,omitempty"`
	Routes    map[string]int64 `json:"routes,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// RequestMetrics contains request-related metrics.
type RequestMetrics struct {
	Total       int64   `json:"total"`
	Success     int64   `json:"success"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Export returns a snapshot of all metrics.
func (m *ServiceMetrics) Export() *MetricsResponse {
	total := m.total.Load()
	success := m.success.Load()

	rate := float64(0)
	if total > 0 {
		rate = float64(success) / float64(total) * 100
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return &MetricsResponse{
		Service: m.serviceName,
		Uptime:  time.Since(m.startTime).Truncate(time.Second).String(),
		Requests: RequestMetrics{
			Total:       total,
			Success:     success,
			Failed:      m.failed.Load(),
			SuccessRate: rate,
		},
		Latency:   copyCounts(m.latency),
		Errors:    copyCounts(m.errors),
		Routes:    copyCounts(m.routes),
		Timestamp: time.Now().UTC(),
	}
}

func copyCounts(in map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Middleware records every request routed through a mux router.
func (m *ServiceMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.RecordRequest(r.Method+" "+route, wrapped.status, time.Since(start))
	})
}

// statusResponseWriter captures the first status code written.
type statusResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusResponseWriter) WriteHeader(status int) {
	if !w.wroteHeader {
		w.status = status
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(status)
}
