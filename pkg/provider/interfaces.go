package provider

import (
	"context"
	"time"

	"tschart/pkg/core"
)

// Provider 是所有数据点提供商的基础接口。
// 它定义了所有提供商都必须具备的通用功能，如名称、健康状态和速率限制。
type Provider interface {
	// Name 返回提供商的名称，例如 "cdf" 或 "influxdb"。
	Name() string

	// IsHealthy 检查提供商的健康状态。
	IsHealthy() bool

	// GetRateLimit 返回两个连续请求之间的最小允许间隔。
	GetRateLimit() time.Duration
}

// DatapointsProvider 数据点检索接口
type DatapointsProvider interface {
	Provider

	// RetrieveDatapoints 检索数据点，每个请求项对应一个结果。
	// Aggregates 非空时返回聚合点，Granularity 指定桶宽。
	RetrieveDatapoints(ctx context.Context, req core.DatapointsRequest) ([]core.DatapointsResult, error)

	// RetrieveSummary 单聚合查询，返回区间内点数以及序列标志。
	RetrieveSummary(ctx context.Context, query core.SummaryQuery) (core.SeriesSummary, error)
}

// Configurable 可配置接口
// 支持动态配置的提供商可以实现此接口
type Configurable interface {
	// SetRateLimit 设置请求频率限制
	SetRateLimit(limit time.Duration)

	// SetTimeout 设置请求超时时间
	SetTimeout(timeout time.Duration)

	// SetMaxRetries 设置最大重试次数
	SetMaxRetries(retries int)
}

// Closable 可关闭接口
// 需要清理资源的提供商应实现此接口
type Closable interface {
	// Close 关闭提供商，清理资源
	Close() error
}
