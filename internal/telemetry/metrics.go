package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trove_api_http_requests_total",
		Help: "Total HTTP requests handled by trove_api",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trove_api_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	flowMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trove_flow_mutations_total",
		Help: "Flow mutations by operation and result",
	}, []string{"op", "result"})
)

// ObserveRequest records one finished HTTP request. route should be a
// template such as "/api/stages/{id}" so label cardinality stays bounded.
func ObserveRequest(method, route string, status int, elapsed time.Duration) {
	httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// CountMutation records a flow mutation; result is "ok" or an error code.
func CountMutation(op, result string) {
	flowMutations.WithLabelValues(op, result).Inc()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
