// Package metrics exposes Prometheus collectors for the scraper service.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	scrapesTotal           *prometheus.CounterVec
	scrapeDurationSeconds  *prometheus.HistogramVec
	extractionsTotal       *prometheus.CounterVec
	jobsTotal              *prometheus.CounterVec
	activeScrapes          prometheus.Gauge
	httpRequestsTotal      *prometheus.CounterVec
	validatorRejectedTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		scrapesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_scrapes_total",
				Help: "Total number of URL scrapes, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		scrapeDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scraper_scrape_duration_seconds",
				Help:    "Histogram of single-URL scrape latencies, labeled by site.",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 45},
			},
			[]string{"site"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_extractions_total",
				Help: "Total number of content extractions, labeled by winning method.",
			},
			[]string{"method"},
		)

		jobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_jobs_total",
				Help: "Total number of jobs reaching a terminal state, labeled by status.",
			},
			[]string{"status"},
		)

		activeScrapes = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "scraper_active_scrapes",
				Help: "Number of scrape executor invocations currently in flight.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of API requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		validatorRejectedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scraper_validator_rejections_total",
				Help: "Total URLs rejected by the safety validator, labeled by site.",
			},
			[]string{"site"},
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
	Init()
	return promhttp.Handler()
}

// ObserveScrape records the outcome and duration of one URL scrape.
func ObserveScrape(site string, success bool, duration time.Duration) {
	Init()
	sanitized := SanitizeSite(site)
	outcome := "failure"
	if success {
		outcome = "success"
	}
	scrapesTotal.WithLabelValues(sanitized, outcome).Inc()
	scrapeDurationSeconds.WithLabelValues(sanitized).Observe(duration.Seconds())
}

// ObserveExtraction increments the per-method extraction counter.
func ObserveExtraction(method string) {
	Init()
	extractionsTotal.WithLabelValues(method).Inc()
}

// ObserveJob increments the terminal-job counter for the given status.
func ObserveJob(status string) {
	Init()
	jobsTotal.WithLabelValues(status).Inc()
}

// ObserveValidatorRejection counts a URL turned away before any fetch.
func ObserveValidatorRejection(site string) {
	Init()
	validatorRejectedTotal.WithLabelValues(SanitizeSite(site)).Inc()
}

// ObserveHTTPRequest increments the API request counter.
func ObserveHTTPRequest(method, code string) {
	Init()
	httpRequestsTotal.WithLabelValues(method, code).Inc()
}

// IncActiveScrapes increments the in-flight scrape gauge.
func IncActiveScrapes() {
	Init()
	activeScrapes.Inc()
}

// DecActiveScrapes decrements the in-flight scrape gauge.
func DecActiveScrapes() {
	Init()
	activeScrapes.Dec()
}
