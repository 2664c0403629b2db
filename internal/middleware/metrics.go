package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsOnce sync.Once

	// HTTP metrics
	httpRequestsTotal     *prometheus.CounterVec
	httpRequestDuration   *prometheus.HistogramVec
	httpRequestsInFlight  prometheus.Gauge
	httpRequestSizeBytes  *prometheus.HistogramVec
	httpResponseSizeBytes *prometheus.HistogramVec

	// Queue metrics
	queueJobsTotal     *prometheus.CounterVec
	queueJobDuration   *prometheus.HistogramVec
	queueDepth         *prometheus.GaugeVec
	queueWorkersActive *prometheus.GaugeVec

	// Inspection metrics
	mediaUploadsTotal *prometheus.CounterVec
	reportsTotal      *prometheus.CounterVec
	reportDuration    prometheus.Histogram
	reportEmailsTotal *prometheus.CounterVec
)

// MetricsMiddleware collects HTTP request metrics.
//
// Purpose:
// - Count requests by method, route, and status code
// - Measure latency and body sizes per route
// - Track requests in flight
//
// Media uploads are large, so request size buckets run up to 100MB.
//
// Usage in server.go:
//
//	e.Use(middleware.MetricsMiddleware())
//	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
func MetricsMiddleware() echo.MiddlewareFunc {
	InitMetrics()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Skip metrics endpoint itself to avoid recursion
			if c.Path() == "/metrics" {
				return next(c)
			}

			start := time.Now()
			httpRequestsInFlight.Inc()
			defer httpRequestsInFlight.Dec()

			requestSize := float64(c.Request().ContentLength)
			if requestSize < 0 {
				requestSize = 0
			}

			err := next(c)

			method := c.Request().Method
			path := c.Path()
			status := strconv.Itoa(c.Response().Status)

			httpRequestsTotal.WithLabelValues(method, path, status).Inc()
			httpRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			httpRequestSizeBytes.WithLabelValues(method, path).Observe(requestSize)
			httpResponseSizeBytes.WithLabelValues(method, path).Observe(float64(c.Response().Size))

			return err
		}
	}
}

// InitMetrics registers all collectors with the default Prometheus registry.
// It is safe to call more than once. Recording functions are no-ops until it
// has run.
//
// Usage in main.go:
//
//	middleware.InitMetrics()
func InitMetrics() {
	metricsOnce.Do(initMetrics)
}

func initMetrics() {
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0},
		},
		[]string{"method", "path"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	httpRequestSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_size_bytes",
			Help:    "HTTP request size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 7), // 100B to 100MB
		},
		[]string{"method", "path"},
	)

	httpResponseSizeBytes = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 6), // 100B to 10MB
		},
		[]string{"method", "path"},
	)

	queueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "queue_jobs_total",
			Help: "Total number of queue jobs processed",
		},
		[]string{"job_type", "status"},
	)

	queueJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "queue_job_duration_seconds",
			Help:    "Queue job processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
		[]string{"job_type"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_depth",
			Help: "Number of jobs pending in queue",
		},
		[]string{"queue_name"},
	)

	queueWorkersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_workers_active",
			Help: "Number of workers currently processing jobs",
		},
		[]string{"queue_name"},
	)

	mediaUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handover_media_uploads_total",
			Help: "Evidence uploads by media kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	reportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handover_reports_total",
			Help: "Report completions by outcome",
		},
		[]string{"outcome"},
	)

	reportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "handover_report_duration_seconds",
			Help:    "Time to render, store, and send an inspection report",
			Buckets: []float64{0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0},
		},
	)

	reportEmailsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "handover_report_emails_total",
			Help: "Report emails by recipient category and outcome",
		},
		[]string{"category", "outcome"},
	)
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}

// RecordQueueJobMetrics records metrics for background queue jobs.
//
// Usage in queue/worker.go:
//
//	middleware.RecordQueueJobMetrics(job.JobType, time.Since(start).Seconds(), err)
func RecordQueueJobMetrics(jobType string, duration float64, err error) {
	if queueJobsTotal == nil {
		return
	}
	queueJobsTotal.WithLabelValues(jobType, outcome(err == nil)).Inc()
	queueJobDuration.WithLabelValues(jobType).Observe(duration)
}

// UpdateQueueDepth updates the queue depth gauge.
func UpdateQueueDepth(queueName string, depth int64) {
	if queueDepth == nil {
		return
	}
	queueDepth.WithLabelValues(queueName).Set(float64(depth))
}

// UpdateActiveWorkers updates the active workers gauge.
func UpdateActiveWorkers(queueName string, count int) {
	if queueWorkersActive == nil {
		return
	}
	queueWorkersActive.WithLabelValues(queueName).Set(float64(count))
}

// RecordMediaUpload counts one evidence upload.
func RecordMediaUpload(kind string, err error) {
	if mediaUploadsTotal == nil {
		return
	}
	mediaUploadsTotal.WithLabelValues(kind, outcome(err == nil)).Inc()
}

// RecordReportCompletion records one report completion attempt.
//
// Purpose:
// - Count completed and failed reports
// - Track how long rendering, storage, and email delivery take together
func RecordReportCompletion(duration float64, err error) {
	if reportsTotal == nil {
		return
	}
	reportsTotal.WithLabelValues(outcome(err == nil)).Inc()
	reportDuration.Observe(duration)
}

// RecordNotification counts one report email per recipient category.
func RecordNotification(category string, sent bool) {
	if reportEmailsTotal == nil {
		return
	}
	reportEmailsTotal.WithLabelValues(category, outcome(sent)).Inc()
}
