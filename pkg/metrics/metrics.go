// Package metrics exposes the Prometheus registry used by the gateway.
// Metrics are defined in their respective packages (cache, upstream,
// connectivity, offline) and registered via promauto.
//
// This package provides the handler and the reference list of metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the gateway.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer paired with Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registered metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - civicsense_cache_hits_total{cache} (Counter): Lookups answered by a cache generation
//   - civicsense_cache_misses_total{cache} (Counter): Lookups with no entry
//   - civicsense_cache_errors_total{backend, operation} (Counter): Backend errors (redis, leveldb)
//   - civicsense_cache_generations_purged_total (Counter): Stale generations deleted on activation
//
// Upstream Metrics (pkg/upstream):
//   - civicsense_upstream_requests_total{endpoint, status} (Counter): Requests by path and HTTP status
//   - civicsense_upstream_request_duration_seconds{endpoint} (Histogram): Request duration
//   - civicsense_upstream_errors_total{class} (Counter): Errors by class (client, server, network)
//   - civicsense_upstream_retries_total{error_class} (Counter): Retry attempts
//   - civicsense_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - civicsense_upstream_retry_exhausted_total{error_class} (Counter): Requests that exhausted retries
//
// Connectivity Metrics (pkg/connectivity):
//   - civicsense_online (Gauge): 1 when the origin is reachable
//   - civicsense_reconnects_total (Counter): Offline to online transitions
//   - civicsense_disconnects_total (Counter): Online to offline transitions
//
// Offline Metrics (pkg/offline):
//   - civicsense_routed_requests_total{route} (Counter): Intercepted requests by route (api, static)
//   - civicsense_offline_responses_total{kind} (Counter): Offline answers (cached, synthetic, unavailable, queued)
//   - civicsense_replay_total{result} (Counter): Queued reports replayed or failed
//
// Example Prometheus Queries:
//
//   # Share of API traffic served offline
//   sum(rate(civicsense_offline_responses_total[5m])) /
//   sum(rate(civicsense_routed_requests_total{route="api"}[5m]))
//
//   # Origin down
//   civicsense_online == 0
//
//   # Replay backlog growing
//   increase(civicsense_offline_responses_total{kind="queued"}[1h]) >
//   increase(civicsense_replay_total{result="replayed"}[1h])
//
//   # P95 upstream latency
//   histogram_quantile(0.95, rate(civicsense_upstream_request_duration_seconds_bucket[5m]))
