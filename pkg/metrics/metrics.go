// Package metrics defines the Prometheus collectors used by the highlighter
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the highlighter.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	ScanLatency          *prometheus.HistogramVec
	ScanJobsTotal        *prometheus.CounterVec
	DebounceSuperseded   prometheus.Counter
	StaleResultsTotal    prometheus.Counter
	EditsAppliedTotal    prometheus.Counter
	DiscoveredMerged     prometheus.Counter
	DamageFlushesTotal   prometheus.Counter
	LiveOccurrences      *prometheus.GaugeVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
}

// New creates all collectors and registers them with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		ScanLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "highlight_scan_seconds",
				Help:    "Pattern scan latency by mode (visible, patch, full).",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"mode"},
		),
		ScanJobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "highlight_scan_jobs_total",
				Help: "Background scan jobs by outcome (ok, error, panic).",
			},
			[]string{"status"},
		),
		DebounceSuperseded: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "highlight_debounce_superseded_total",
				Help: "Scheduled full scans replaced by a later request before firing.",
			},
		),
		StaleResultsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "highlight_stale_results_total",
				Help: "Completed scans discarded because the group pattern changed.",
			},
		),
		EditsAppliedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "highlight_edits_applied_total",
				Help: "Buffer edits reconciled into occurrence indexes.",
			},
		),
		DiscoveredMerged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "highlight_discovered_merged_total",
				Help: "Occurrences merged in from background scans.",
			},
		),
		DamageFlushesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "highlight_damage_flushes_total",
				Help: "Non-empty damage flushes handed to the renderer.",
			},
		),
		LiveOccurrences: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "highlight_live_occurrences",
				Help: "Occurrences currently indexed per search group.",
			},
			[]string{"group"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "highlight_scan_cache_hits_total",
				Help: "Full scans served from the result cache.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "highlight_scan_cache_misses_total",
				Help: "Full scans that had to run the matcher.",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ScanLatency,
		m.ScanJobsTotal,
		m.DebounceSuperseded,
		m.StaleResultsTotal,
		m.EditsAppliedTotal,
		m.DiscoveredMerged,
		m.DamageFlushesTotal,
		m.LiveOccurrences,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
