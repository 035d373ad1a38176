// Package metrics aggregates per-run counters for the end-of-run report and
// exposes Prometheus collectors for the long-running service.
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
	collectorItemsTotal            *prometheus.CounterVec
	collectorAttemptsTotal         *prometheus.CounterVec
	collectorStrategySuccessTotal  *prometheus.CounterVec
	collectorItemDurationSeconds   *prometheus.HistogramVec
	collectorActiveWorkers         prometheus.Gauge
	collectorRateLimitDelaySeconds *prometheus.HistogramVec
	httpRequestsTotal              *prometheus.CounterVec
	httpRequestDurationSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		collectorItemsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_items_total",
				Help: "Items (queries or URLs) finished, labeled by phase and outcome category.",
			},
			[]string{"phase", "outcome"},
		)

		collectorAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_attempts_total",
				Help: "Fetch and strategy attempts, labeled by step and failure category.",
			},
			[]string{"step", "category"},
		)

		collectorStrategySuccessTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "collector_strategy_success_total",
				Help: "URLs extracted, labeled by the strategy that succeeded.",
			},
			[]string{"strategy"},
		)

		collectorItemDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_item_duration_seconds",
				Help:    "Wall time per item including retries and fallbacks.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"phase"},
		)

		collectorActiveWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "collector_active_workers",
				Help: "Number of worker slots currently running a task.",
			},
		)

		collectorRateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "collector_rate_limit_delay_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
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

// ObserveItem records one finished item.
func ObserveItem(phase, outcome string, duration time.Duration) {
	Init()
	collectorItemsTotal.WithLabelValues(phase, outcome).Inc()
	collectorItemDurationSeconds.WithLabelValues(phase).Observe(duration.Seconds())
}

// ObserveAttempt records one attempt. An empty category means success.
func ObserveAttempt(step, category string) {
	Init()
	if category == "" {
		category = "ok"
	}
	collectorAttemptsTotal.WithLabelValues(step, category).Inc()
}

// ObserveStrategySuccess counts a URL extracted by strategy.
func ObserveStrategySuccess(strategy string) {
	Init()
	collectorStrategySuccessTotal.WithLabelValues(strategy).Inc()
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
	collectorActiveWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	collectorActiveWorkers.Dec()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	collectorRateLimitDelaySeconds.WithLabelValues(SanitizeSite(host)).Observe(duration.Seconds())
}
