package chart

import "tschart/pkg/core"

// AdaptChartData 把数据点序列转换为图表数据。
// 取值优先 Value，其次 Average；两者都没有的点被跳过，三组切片保持下标对齐。
func AdaptChartData(datapoints []core.TimeseriesDatapoint, metadata core.ChartMetadata) core.ChartData {
	data := core.ChartData{
		X:          make([]int64, 0, len(datapoints)),
		Y:          make([]core.Value, 0, len(datapoints)),
		CustomData: make([]core.TimeseriesDatapoint, 0, len(datapoints)),
	}

	for _, dp := range datapoints {
		value, ok := plottedValue(dp)
		if !ok {
			continue
		}
		data.X = append(data.X, dp.Timestamp)
		data.Y = append(data.Y, value)
		data.CustomData = append(data.CustomData, dp)
	}

	if metadata.IsStep != nil && *metadata.IsStep {
		data.Interpolation = core.InterpolationStep
	}
	return data
}

func plottedValue(dp core.TimeseriesDatapoint) (core.Value, bool) {
	if dp.Value != nil {
		return *dp.Value, true
	}
	if dp.Average != nil {
		return core.NumberValue(*dp.Average), true
	}
	return core.Value{}, false
}
