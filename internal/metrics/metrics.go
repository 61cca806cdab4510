// Package metrics provides Prometheus instrumentation for the vetex service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vetex",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vetex",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// TradeResolvesTotal counts trade view resolutions by outcome.
	TradeResolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vetex",
			Name:      "trade_resolves_total",
			Help:      "Total trade view resolutions by outcome.",
		},
		[]string{"outcome"},
	)

	// ActionsTotal counts executed trade actions by action and outcome.
	ActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vetex",
			Name:      "actions_total",
			Help:      "Total trade actions submitted by action name and outcome.",
		},
		[]string{"action", "outcome"},
	)

	// PreflightBlocksTotal counts actions stopped before submission.
	PreflightBlocksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vetex",
			Name:      "preflight_blocks_total",
			Help:      "Actions blocked by a pre-flight check, by reason.",
		},
		[]string{"reason"},
	)

	// ListingsTotal counts list-page loads by data source.
	ListingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vetex",
			Name:      "listings_total",
			Help:      "Trade list loads by backing data source (cache, chain, empty).",
		},
		[]string{"source"},
	)

	// RPCCallDuration observes escrow/token RPC read latency by method.
	RPCCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vetex",
			Name:      "rpc_call_duration_seconds",
			Help:      "Contract read/call duration in seconds by method.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// CacheOpsTotal counts metadata cache operations by op and outcome.
	CacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vetex",
			Name:      "cache_ops_total",
			Help:      "Metadata cache operations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	// WSClientsConnected tracks currently connected stream clients.
	WSClientsConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "vetex",
			Name:      "ws_clients_connected",
			Help:      "Currently connected WebSocket clients.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		TradeResolvesTotal,
		ActionsTotal,
		PreflightBlocksTotal,
		ListingsTotal,
		RPCCallDuration,
		CacheOpsTotal,
		WSClientsConnected,
	)
}

// Handler returns the /metrics endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware records request counts and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// ObserveRPC returns a done func that records the duration of one RPC call.
func ObserveRPC(method string) func() {
	start := time.Now()
	return func() {
		RPCCallDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}
}
