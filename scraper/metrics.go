package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawl.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestsTotal   prometheus.Counter
	RequestDuration prometheus.Histogram
	BooksTotal      prometheus.Counter
	PagesTotal      prometheus.Counter
	RetriesTotal    prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_requests_total",
		Help: "Total HTTP requests issued, retries included.",
	})
	requestDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "crawler_request_duration_seconds",
		Help:    "Page fetch latency, retries included.",
		Buckets: prometheus.DefBuckets,
	})
	books := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_books_persisted_total",
		Help: "Total book records upserted into the store.",
	})
	pages := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_total",
		Help: "Total listing pages processed.",
	})
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "crawler_retries_total",
		Help: "Total retry attempts issued by the fetcher.",
	})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "crawler_errors_total",
		Help: "Total crawl errors by type.",
	}, []string{"error_type"})

	registry.MustRegister(requests, requestDuration, books, pages, retries, errorsTotal)

	return &Metrics{
		Registry:        registry,
		RequestsTotal:   requests,
		RequestDuration: requestDuration,
		BooksTotal:      books,
		PagesTotal:      pages,
		RetriesTotal:    retries,
		ErrorsTotal:     errorsTotal,
	}
}

// AddRequests records n issued requests.
func (m *Metrics) AddRequests(n int) {
	if m == nil {
		return
	}
	m.RequestsTotal.Add(float64(n))
}

// ObserveDuration records one page fetch duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncBooks increments the persisted-book counter.
func (m *Metrics) IncBooks() {
	if m == nil {
		return
	}
	m.BooksTotal.Inc()
}

// IncPages increments the processed-page counter.
func (m *Metrics) IncPages() {
	if m == nil {
		return
	}
	m.PagesTotal.Inc()
}

// AddRetries records n retry attempts.
func (m *Metrics) AddRetries(n int) {
	if m == nil {
		return
	}
	m.RetriesTotal.Add(float64(n))
}

// IncError increments the error counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
