// Package metrics holds the Prometheus collectors for the pipeline. They are
// registered on the default registry and served by the consumer's /metrics
// endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Event batching worker
	BatchBufferSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_buffer_size",
			Help: "Events waiting in the batching worker buffer",
		},
	)

	BatchConsecutiveFailures = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "batch_consecutive_failures",
			Help: "Flushes failed in a row since the last successful flush",
		},
	)

	BatchFlushDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "batch_flush_duration_seconds",
			Help:    "Duration of bulk inserts issued by the batching worker",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"}, // "success", "failure"
	)

	BatchFlushSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "batch_flush_size",
			Help:    "Events per flushed batch",
			Buckets: []float64{1, 10, 50, 100, 500, 1000, 2000, 5000},
		},
	)

	EventsFlushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_flushed_total",
			Help: "Events written to the analytical store",
		},
	)

	// Job consumers
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_processed_total",
			Help: "Jobs handled per topic and outcome",
		},
		[]string{"topic", "result"}, // "success", "failure", "duplicate", "malformed"
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Handler duration per topic",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"topic"},
	)

	// Query services
	QueryCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_hits_total",
			Help: "Analytics queries answered from cache",
		},
		[]string{"query"},
	)

	QueryCacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_cache_misses_total",
			Help: "Analytics queries that went to the store",
		},
		[]string{"query"},
	)
)
