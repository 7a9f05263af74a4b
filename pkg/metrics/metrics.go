// Package metrics defines the Prometheus collectors the builder and the
// searcher publish, and exposes an HTTP handler for scraping them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the platform registers.
type Metrics struct {
	BlocksBuiltTotal    *prometheus.CounterVec
	BlockBuildSeconds   *prometheus.HistogramVec
	DocsIndexedTotal    prometheus.Counter
	TermsPrunedTotal    *prometheus.CounterVec
	TermsWrittenTotal   prometheus.Counter
	MergeSeconds        prometheus.Histogram
	BuildersInFlight    prometheus.Gauge
	QueriesTotal        *prometheus.CounterVec
	QueryLatencySeconds *prometheus.HistogramVec
	QueryResultsCount   prometheus.Histogram
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	ReloadsTotal        *prometheus.CounterVec
	CircuitBreakerState *prometheus.GaugeVec
	TermReadFailuresTotal prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		BlocksBuiltTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "builder_blocks_built_total",
				Help: "Total SPIMI blocks flushed, by status (ok, failed).",
			},
			[]string{"status"},
		),
		BlockBuildSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "builder_block_build_seconds",
				Help:    "Wall-clock time to build and flush all blocks of one build, by default language.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"language"},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "builder_docs_indexed_total",
				Help: "Total documents accepted into the index.",
			},
		),
		TermsPrunedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "builder_terms_pruned_total",
				Help: "Terms dropped by the merger, by reason (min_df, max_df_ratio).",
			},
			[]string{"reason"},
		),
		TermsWrittenTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "builder_terms_written_total",
				Help: "Total distinct terms written to the merged postings file.",
			},
		),
		MergeSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "builder_merge_seconds",
				Help:    "Wall-clock time for the k-way postings merge.",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
		),
		BuildersInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "builder_workers_in_flight",
				Help: "Number of block-build tasks currently executing.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searcher_queries_total",
				Help: "Total queries served, by outcome (hit, zero_result, error).",
			},
			[]string{"outcome"},
		),
		QueryLatencySeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "searcher_query_latency_seconds",
				Help:    "Query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		QueryResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "searcher_query_results_count",
				Help:    "Number of results returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "searcher_cache_hits_total",
				Help: "Total query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "searcher_cache_misses_total",
				Help: "Total query cache misses.",
			},
		),
		ReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searcher_reloads_total",
				Help: "Total index reloads triggered by the hot-reload consumer, by status.",
			},
			[]string{"status"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
		TermReadFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "searcher_term_read_failures_total",
				Help: "Per-term postings reads that failed and were skipped (degraded coverage).",
			},
		),
	}

	prometheus.MustRegister(
		m.BlocksBuiltTotal,
		m.BlockBuildSeconds,
		m.DocsIndexedTotal,
		m.TermsPrunedTotal,
		m.TermsWrittenTotal,
		m.MergeSeconds,
		m.BuildersInFlight,
		m.QueriesTotal,
		m.QueryLatencySeconds,
		m.QueryResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ReloadsTotal,
		m.CircuitBreakerState,
		m.TermReadFailuresTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
