package service

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic, the seat cache and
// enrollment outcomes.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter

	registrations  *prometheus.CounterVec
	verifications  *prometheus.CounterVec
	certAttempts   prometheus.Counter
	certCollisions prometheus.Counter
	certsExpired   prometheus.Counter
	notifications  *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cache_latency_seconds",
			Help:    "Latency for cache operations",
			Buckets: prometheus.DefBuckets,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total cache hits",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total cache misses",
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_registrations_total",
			Help: "Registration attempts by outcome",
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_payment_verifications_total",
			Help: "Payment verification decisions",
		}, []string{"decision", "source"}),
		certAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_certificate_number_attempts_total",
			Help: "Certificate number insert attempts",
		}),
		certCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_certificate_number_collisions_total",
			Help: "Certificate number unique violations",
		}),
		certsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "enrollment_certificates_expired_total",
			Help: "Certificates flipped to EXPIRED by the sweep",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enrollment_notifications_total",
			Help: "Notification deliveries by kind and outcome",
		}, []string{"kind", "outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "background_job_duration_seconds",
			Help:    "Duration of background jobs",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue", "type"}),
	}

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLatency, m.cacheHits, m.cacheMisses,
		m.registrations, m.verifications, m.certAttempts, m.certCollisions, m.certsExpired,
		m.notifications, m.jobDuration, goroutines,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

// RecordRegistration counts a registration attempt by outcome (created, conflict, capacity, ...).
func (m *MetricsService) RecordRegistration(outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(outcome).Inc()
}

// RecordVerification counts a verification decision.
func (m *MetricsService) RecordVerification(approved bool, source string) {
	if m == nil {
		return
	}
	decision := "rejected"
	if approved {
		decision = "approved"
	}
	m.verifications.WithLabelValues(decision, source).Inc()
}

// RecordCertificateAttempt counts one number insert attempt.
func (m *MetricsService) RecordCertificateAttempt(collision bool) {
	if m == nil {
		return
	}
	m.certAttempts.Inc()
	if collision {
		m.certCollisions.Inc()
	}
}

// RecordCertificatesExpired adds n to the expiry counter.
func (m *MetricsService) RecordCertificatesExpired(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.certsExpired.Add(float64(n))
}

// RecordNotification counts a finished notification job.
func (m *MetricsService) RecordNotification(kind string, err error) {
	if m == nil {
		return
	}
	outcome := "sent"
	if err != nil {
		outcome = "failed"
	}
	m.notifications.WithLabelValues(kind, outcome).Inc()
}

// RecordNotificationDropped counts a notification that never reached the queue.
func (m *MetricsService) RecordNotificationDropped(kind string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(kind, "dropped").Inc()
}

// ObserveJob records background job latency.
func (m *MetricsService) ObserveJob(queue, jobType string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(queue, jobType).Observe(duration.Seconds())
}
