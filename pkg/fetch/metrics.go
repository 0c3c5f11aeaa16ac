package fetch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for fetch operations.
var (
	fetchAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_fetch_attempts_total",
		Help: "Total HTTP attempts by outcome",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_fetch_duration_seconds",
		Help:    "Duration of a Fetch call including retries",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 180},
	})

	fetchRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_fetch_retries_total",
		Help: "Total number of retry attempts by failure kind",
	}, []string{"failure_kind"})

	fetchRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "harvest_fetch_retry_backoff_seconds",
		Help:    "Backoff duration for retries by failure kind",
		Buckets: []float64{1, 5, 10, 20, 40, 80, 160},
	}, []string{"failure_kind"})

	fetchRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_fetch_retry_exhausted_total",
		Help: "Total number of fetches that exhausted retries by failure kind",
	}, []string{"failure_kind"})
)
