// Package metrics holds the Prometheus collectors of the server and the worker.
//
// Collectors are registered on an explicit registry so that tests and the two
// binaries each get their own set.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector exported by the service
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	uploadsTotal    *prometheus.CounterVec
	uploadBytes     prometheus.Counter
	sessionsTotal   *prometheus.CounterVec
	jobsTotal       *prometheus.CounterVec
	jobDuration     prometheus.Histogram
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Metrics{
		registry: reg,
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_manager_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "files_manager_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
		uploadsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_manager_uploads_total",
				Help: "Total number of stored entries by type",
			},
			[]string{"type"},
		),
		uploadBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "files_manager_upload_bytes_total",
				Help: "Total blob bytes written by uploads",
			},
		),
		sessionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_manager_sessions_total",
				Help: "Session lifecycle events by event",
			},
			[]string{"event"},
		),
		jobsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "files_manager_thumbnail_jobs_total",
				Help: "Thumbnail jobs processed by outcome",
			},
			[]string{"outcome"},
		),
		jobDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "files_manager_thumbnail_job_duration_seconds",
				Help:    "Duration of thumbnail jobs in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
	}
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRequest records one finished HTTP request
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// UploadStored records an entry persisted by an upload
func (m *Metrics) UploadStored(fileType string, size int) {
	if m == nil {
		return
	}
	m.uploadsTotal.WithLabelValues(fileType).Inc()
	m.uploadBytes.Add(float64(size))
}

// SessionEvent records a session lifecycle event ("login", "logout", "rejected")
func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessionsTotal.WithLabelValues(event).Inc()
}

// JobFinished records a processed thumbnail job
func (m *Metrics) JobFinished(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(outcome).Inc()
	m.jobDuration.Observe(elapsed.Seconds())
}
