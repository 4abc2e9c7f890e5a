package chart

import "tschart/pkg/core"

// DefaultRawDatapointsLimit 超过该点数即改用聚合取数
const DefaultRawDatapointsLimit = 500

// FetchModeInput 取数模式判定的输入
type FetchModeInput struct {
	NumberOfPoints     int                // 图表希望渲染的点数
	Mode               core.DataFetchMode // 调用方强制的模式，空值等同 auto
	RawDatapointsLimit int                // 原始点阈值，<=0 时使用默认值
	IsString           bool               // 字符串序列
}

// ResolveFetchMode 决定单个序列使用 raw 还是 aggregate。
// 字符串序列总是 raw，优先于调用方强制的模式。
func ResolveFetchMode(in FetchModeInput) core.FetchMode {
	if in.IsString {
		return core.FetchModeRaw
	}

	switch in.Mode {
	case core.DataFetchModeRaw:
		return core.FetchModeRaw
	case core.DataFetchModeAggregate:
		return core.FetchModeAggregate
	}

	limit := in.RawDatapointsLimit
	if limit <= 0 {
		limit = DefaultRawDatapointsLimit
	}
	if in.NumberOfPoints > limit {
		return core.FetchModeAggregate
	}
	return core.FetchModeRaw
}
