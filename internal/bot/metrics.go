package bot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// queriesTotal counts text queries by outcome (domain.Outcome* labels).
	queriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_queries_total",
			Help: "Total number of search queries by outcome.",
		},
		[]string{"outcome"},
	)

	// callbacksTotal counts button presses by result.
	callbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_callbacks_total",
			Help: "Total number of callback queries by result.",
		},
		[]string{"result"},
	)

	// searchLatency records search API latency by outcome.
	searchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bot_search_duration_seconds",
			Help:    "Duration of search API calls in seconds.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		},
		[]string{"outcome"},
	)

	// cacheEntries gauges live report cache entries.
	cacheEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "bot_report_cache_entries",
			Help: "Current number of reports held in the cache.",
		},
	)

	// cacheEvictions counts reports pushed out by the capacity bound.
	cacheEvictions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_report_cache_evictions_total",
			Help: "Total number of reports evicted from the cache to make room.",
		},
	)

	// updatePanics counts update handlers that panicked and were recovered.
	updatePanics = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "bot_update_panics_total",
			Help: "Total number of recovered panics while handling updates.",
		},
	)
)

func init() {
	prometheus.MustRegister(queriesTotal, callbacksTotal, searchLatency, cacheEntries, cacheEvictions, updatePanics)
}

// ObserveSearch records one search call. It matches the services.ReportService
// Observe hook.
func ObserveSearch(outcome string, elapsed time.Duration) {
	searchLatency.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// ObserveCacheEviction counts one capacity eviction. It matches the
// cache.WithEvictionHook callback.
func ObserveCacheEviction() { cacheEvictions.Inc() }
