// Package metrics exposes Prometheus collectors for the scraper.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Fetch outcomes.
const (
	FetchOK      = "ok"
	FetchError   = "error"
	FetchEmpty   = "empty"
	FetchBlocked = "blocked"
)

var (
	fetchesTotal               *prometheus.CounterVec
	fetchRetriesTotal          prometheus.Counter
	fetchBytesTotal            prometheus.Counter
	fetchDurationSeconds       prometheus.Histogram
	blocksTotal                *prometheus.CounterVec
	questionsTotal             *prometheus.CounterVec
	answersStoredTotal         prometheus.Counter
	answersSkippedTotal        prometheus.Counter
	listPagesTotal             *prometheus.CounterVec
	archiveWritesTotal         *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gyik_fetches_total",
				Help: "Total number of page fetches, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gyik_fetch_retries_total",
				Help: "Total number of HTTP retries after transient failures.",
			},
		)

		fetchBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gyik_fetch_bytes_total",
				Help: "Total number of body bytes fetched.",
			},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gyik_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies excluding politeness pauses.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		)

		blocksTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gyik_blocks_total",
				Help: "Total number of captcha or ban pages served, labeled by kind.",
			},
			[]string{"kind"},
		)

		questionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gyik_questions_total",
				Help: "Total number of questions handled, labeled by decision and outcome.",
			},
			[]string{"decision", "outcome"},
		)

		answersStoredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gyik_answers_stored_total",
				Help: "Total number of answers committed to storage.",
			},
		)

		answersSkippedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gyik_answers_skipped_total",
				Help: "Total number of answer containers dropped by the extractor.",
			},
		)

		listPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gyik_list_pages_total",
				Help: "Total number of category list pages processed, labeled by status.",
			},
			[]string{"status"},
		)

		archiveWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gyik_archive_writes_total",
				Help: "Total number of raw page snapshots written, labeled by status.",
			},
			[]string{"status"},
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetch records a completed fetch attempt sequence.
func ObserveFetch(outcome string, bytesFetched int, duration time.Duration) {
	Init()
	fetchesTotal.WithLabelValues(outcome).Inc()
	if bytesFetched > 0 {
		fetchBytesTotal.Add(float64(bytesFetched))
	}
	if duration > 0 {
		fetchDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveRetry increments the HTTP retry counter.
func ObserveRetry() {
	Init()
	fetchRetriesTotal.Inc()
}

// ObserveBlock counts a captcha or ban page.
func ObserveBlock(kind string) {
	Init()
	blocksTotal.WithLabelValues(kind).Inc()
}

// ObserveQuestion counts a question by crawl decision and result.
func ObserveQuestion(decision, outcome string) {
	Init()
	questionsTotal.WithLabelValues(decision, outcome).Inc()
}

// ObserveAnswers adds stored and skipped answer counts.
func ObserveAnswers(stored, skipped int) {
	Init()
	if stored > 0 {
		answersStoredTotal.Add(float64(stored))
	}
	if skipped > 0 {
		answersSkippedTotal.Add(float64(skipped))
	}
}

// ObserveListPage counts a processed list page.
func ObserveListPage(status string) {
	Init()
	listPagesTotal.WithLabelValues(status).Inc()
}

// ObserveArchive counts a page snapshot write.
func ObserveArchive(status string) {
	Init()
	archiveWritesTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
