package monitor

import "github.com/prometheus/client_golang/prometheus"

var (
	// HTTPRequestsTotal HTTP 请求指标
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests handled, by path and status.",
		},
		[]string{"path", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Time taken to handle an HTTP request.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"path"},
	)

	// RPCRequestDuration 链上 RPC 调用指标
	RPCRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chain_rpc_request_duration_seconds",
			Help:    "Time taken by upstream chain RPC calls.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"method"},
	)

	// ExplorerPageFailures 浏览器分页拉取指标
	ExplorerPageFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_page_failures_total",
			Help: "Total number of failed explorer transaction pages.",
		},
	)
	ExplorerPagesFetched = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "explorer_pages_fetched_total",
			Help: "Total number of explorer transaction pages fetched successfully.",
		},
	)

	// TopHoldersCacheHits 排行缓存指标
	TopHoldersCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "top_holders_cache_hits_total",
			Help: "Total number of top holders requests served from the local cache.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		// http指标
		HTTPRequestsTotal,
		HTTPRequestDuration,

		// 上游指标
		RPCRequestDuration,
		ExplorerPageFailures,
		ExplorerPagesFetched,
		TopHoldersCacheHits,
	)
}
