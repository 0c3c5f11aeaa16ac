// Package metrics provides the Prometheus registry and HTTP exposition for
// the harvester. All metrics are defined in their respective packages
// (fetch, cache, ratelimit, pagination, harvest, sink) to maintain modularity
// and avoid circular dependencies.
//
// This package provides documentation and reference for all available metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/quoteharvest/harvester/pkg/logging"
)

// Registry is the default Prometheus registry used by the harvester.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the registry Handler serves.
var Gatherer = prometheus.DefaultGatherer

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Serve exposes Handler at addr under /metrics until ctx ends.
func Serve(ctx context.Context, addr string) error {
	logger := logging.NewLogger("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info().Str("addr", addr).Msg("Serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Metrics Documentation
//
// Fetch Metrics (pkg/fetch):
//   - harvest_fetch_attempts_total{outcome} (Counter): HTTP attempts by outcome (ok, timeout, http_status, network, cancelled, too_large)
//   - harvest_fetch_duration_seconds (Histogram): Fetch call duration including retries
//   - harvest_fetch_retries_total{failure_kind} (Counter): Retry attempts by failure kind
//   - harvest_fetch_retry_backoff_seconds{failure_kind} (Histogram): Backoff duration by failure kind
//   - harvest_fetch_retry_exhausted_total{failure_kind} (Counter): Fetches that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - harvest_cache_hits_total (Counter): Page bodies served from Redis
//   - harvest_cache_misses_total (Counter): Cache misses
//   - harvest_cache_stored_bytes_total (Counter): Bytes written to the cache
//   - harvest_cache_errors_total{operation} (Counter): Cache operation errors
//
// Politeness Metrics (pkg/ratelimit):
//   - harvest_politeness_blocks_total{status_code} (Counter): Retry-After blocks recorded
//   - harvest_politeness_waits_total (Counter): Requests delayed by a host block
//   - harvest_politeness_wait_seconds (Histogram): Time spent waiting for blocked hosts
//
// Pagination Metrics (pkg/pagination):
//   - harvest_pagination_discoveries_total{result} (Counter): Discoveries by result (pager, no_pager, fetch_failed, parse_error)
//
// Harvest Metrics (pkg/harvest):
//   - harvest_work_items_total{status} (Counter): Work items by status (ok, failed, cancelled)
//   - harvest_records_total{source} (Counter): Records extracted by source
//   - harvest_workers_in_flight (Gauge): Work items currently being processed
//   - harvest_run_duration_seconds (Histogram): Wall time of Harvest calls
//
// Sink Metrics (pkg/sink):
//   - harvest_sink_writes_total{format, status} (Counter): Persistence attempts
//   - harvest_sink_records_written_total (Counter): Records written to disk
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(harvest_cache_hits_total[5m])) /
//   (sum(rate(harvest_cache_hits_total[5m])) + sum(rate(harvest_cache_misses_total[5m])))
//
//   # Failed Work Item Ratio
//   sum(rate(harvest_work_items_total{status="failed"}[5m])) / sum(rate(harvest_work_items_total[5m]))
//
//   # P95 Fetch Latency
//   histogram_quantile(0.95, rate(harvest_fetch_duration_seconds_bucket[5m]))
