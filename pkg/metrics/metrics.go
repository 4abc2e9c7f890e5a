// Package metrics 定义图表取数管线的 Prometheus 指标。
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tschart"

// 失败发生的层级
const (
	LayerChunk    = "chunk"
	LayerSeries   = "series"
	LayerMetadata = "metadata"
)

var (
	// ChunkRequests 分块检索调用次数，按 raw/aggregate 区分
	ChunkRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_requests_total",
			Help:      "Datapoint retrieval calls issued by the chunked retriever.",
		},
		[]string{"mode"},
	)

	// RetrievalFailures 检索失败次数，按层级区分
	RetrievalFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrieval_failures_total",
			Help:      "Retrieval failures, labeled by the layer that observed them.",
		},
		[]string{"layer"},
	)

	// CacheLookups 缓存查询次数，result 为 hit 或 miss
	CacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Datapoint cache lookups.",
		},
		[]string{"result"},
	)

	// ChartRequestDuration 单次图表请求耗时
	ChartRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chart_request_duration_seconds",
			Help:      "Duration of chart data requests.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// BreakerState 熔断器状态：0 关闭，1 半开，2 打开
	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open).",
		},
		[]string{"breaker"},
	)

	// BreakerRejections 熔断器拒绝的调用次数
	BreakerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_rejections_total",
			Help:      "Provider calls rejected by an open or saturated circuit breaker.",
		},
		[]string{"breaker"},
	)

	// HTTPRequests HTTP 请求计数
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests processed, labeled by status code and method.",
		},
		[]string{"code", "method"},
	)
)

func collectors() []prometheus.Collector {
	return []prometheus.Collector{
		ChunkRequests, RetrievalFailures, CacheLookups, ChartRequestDuration,
		BreakerState, BreakerRejections, HTTPRequests,
	}
}

// Register 向注册器注册全部指标，重复注册不视为错误
func Register(reg prometheus.Registerer) error {
	for _, c := range collectors() {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Handler 返回指定采集器的 /metrics 处理器
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
