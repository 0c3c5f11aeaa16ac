package harvest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for harvest runs.
var (
	workItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_work_items_total",
		Help: "Total work items processed by status",
	}, []string{"status"})

	recordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_records_total",
		Help: "Total records extracted by source",
	}, []string{"source"})

	workersInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "harvest_workers_in_flight",
		Help: "Number of work items currently being processed",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "harvest_run_duration_seconds",
		Help:    "Wall time of a Harvest call",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})
)
