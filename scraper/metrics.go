package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the crawler.
type Metrics struct {
	Registry              *prometheus.Registry
	PagesTotal            *prometheus.CounterVec
	PageDuration          prometheus.Histogram
	StoriesExtractedTotal prometheus.Counter
	ChallengesTotal       prometheus.Counter
	ContentTimeoutsTotal  prometheus.Counter
	ErrorsTotal           *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	pages := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_pages_total",
			Help: "Listing pages processed by the crawler, by outcome.",
		},
		[]string{"outcome"},
	)
	pageDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraper_page_duration_seconds",
			Help:    "Time from navigation to extraction for one listing page.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
	)
	stories := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_stories_extracted_total",
			Help: "Total number of stories extracted from listing pages.",
		},
	)
	challenges := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_challenges_total",
			Help: "Total number of challenge pages handed to the operator.",
		},
	)
	contentTimeouts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraper_content_wait_timeouts_total",
			Help: "Total number of content-ready waits that timed out.",
		},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraper_errors_total",
			Help: "Total number of navigation errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(pages, pageDuration, stories, challenges, contentTimeouts, errorsTotal)

	return &Metrics{
		Registry:              registry,
		PagesTotal:            pages,
		PageDuration:          pageDuration,
		StoriesExtractedTotal: stories,
		ChallengesTotal:       challenges,
		ContentTimeoutsTotal:  contentTimeouts,
		ErrorsTotal:           errorsTotal,
	}
}

// IncPage increments the pages counter for an outcome label.
func (m *Metrics) IncPage(outcome string) {
	if m == nil {
		return
	}
	m.PagesTotal.WithLabelValues(outcome).Inc()
}

// ObserveDuration records how long a page took.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.PageDuration.Observe(d.Seconds())
}

// AddStories adds n to the extracted stories counter.
func (m *Metrics) AddStories(n int) {
	if m == nil {
		return
	}
	m.StoriesExtractedTotal.Add(float64(n))
}

// IncChallenges increments the challenges counter.
func (m *Metrics) IncChallenges() {
	if m == nil {
		return
	}
	m.ChallengesTotal.Inc()
}

// IncContentTimeouts increments the content-ready timeouts counter.
func (m *Metrics) IncContentTimeouts() {
	if m == nil {
		return
	}
	m.ContentTimeoutsTotal.Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
