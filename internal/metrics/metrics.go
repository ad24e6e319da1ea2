// Package metrics exposes Prometheus collectors for the scraping worker.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scraperJobsTotal               *prometheus.CounterVec
	scraperJobDurationSeconds      *prometheus.HistogramVec
	scraperNavigationAttemptsTotal *prometheus.CounterVec
	scraperUploadsTotal            *prometheus.CounterVec
	scraperRecordsTotal            *prometheus.CounterVec
	scraperActiveWorkers           prometheus.Gauge
	scraperRateLimitDelaysSeconds  *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scraperJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_jobs_total",
				Help: "Total number of job state transitions, labeled by state.",
			},
			[]string{"state"},
		)

		scraperJobDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_job_duration_seconds",
				Help:    "Histogram of job processing time, labeled by extraction type and final state.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"extraction_type", "state"},
		)

		scraperNavigationAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_navigation_attempts_total",
				Help: "Total navigation attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scraperUploadsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_uploads_total",
				Help: "Total storage uploads, labeled by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		scraperRecordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_records_total",
				Help: "Total records extracted, labeled by extraction type.",
			},
			[]string{"extraction_type"},
		)

		scraperActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_workers",
				Help: "Number of workers currently processing a job.",
			},
		)

		scraperRateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_rate_limit_delays_seconds",
				Help:    "Histogram of per-host navigation pacing waits.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJob increments the job counter for the given state.
func ObserveJob(state string) {
	Init()
	scraperJobsTotal.WithLabelValues(state).Inc()
}

// ObserveJobDuration records how long a job took to reach its final state.
func ObserveJobDuration(extractionType, state string, duration time.Duration) {
	Init()
	scraperJobDurationSeconds.WithLabelValues(extractionType, state).Observe(duration.Seconds())
}

// ObserveNavigation counts one navigation attempt.
func ObserveNavigation(rawURL string, ok bool) {
	Init()
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	scraperNavigationAttemptsTotal.WithLabelValues(SanitizeSite(rawURL), outcome).Inc()
}

// ObserveUpload counts one storage upload; kind is "dataset" or "status".
func ObserveUpload(kind string, ok bool) {
	Init()
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	scraperUploadsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveRecords adds extracted records for an extraction type.
func ObserveRecords(extractionType string, n int) {
	Init()
	if n > 0 {
		scraperRecordsTotal.WithLabelValues(extractionType).Add(float64(n))
	}
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	scraperActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	scraperActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	scraperRateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}
