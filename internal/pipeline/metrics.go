package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	segmentsScoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xliffqe_segments_scored_total",
		Help: "Segments scored by the COMET server",
	})

	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xliffqe_score_cache_hits_total",
		Help: "Segments answered from the score cache",
	})

	batchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "xliffqe_batch_failures_total",
		Help: "Failed scoring attempts, including ones that were retried",
	})

	batchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "xliffqe_batch_duration_seconds",
		Help:    "Latency of a single scoring call",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
)
