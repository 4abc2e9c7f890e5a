package chart

import (
	"math"
	"strconv"

	"tschart/pkg/core"
)

// DefaultGranularity 无时间范围或范围过大时使用的粒度
const DefaultGranularity = "100d"

const maxGranularityDays = 100

// CalculateGranularity 根据时间范围和目标点数计算聚合粒度。
// 结果为 "{n}s"、"{n}m"、"{n}h"、"{n}d" 之一，不设下限：零宽范围得到 "0s"。
func CalculateGranularity(dateRange *core.DateRange, pointsPerSeries int) string {
	if dateRange == nil {
		return DefaultGranularity
	}
	if pointsPerSeries <= 0 {
		pointsPerSeries = 1
	}

	timeDifferenceSeconds := float64(dateRange.EndMillis()-dateRange.StartMillis()) / 1000

	seconds := math.Ceil(timeDifferenceSeconds / float64(pointsPerSeries))
	minutes := math.Ceil(seconds / 60)
	hours := math.Ceil(minutes / 60)
	days := math.Ceil(hours / 24)

	switch {
	case seconds <= 60:
		return formatGranularity(seconds, "s")
	case minutes <= 60:
		return formatGranularity(minutes, "m")
	case hours <= 24:
		return formatGranularity(hours, "h")
	case days <= maxGranularityDays:
		return formatGranularity(days, "d")
	}
	return DefaultGranularity
}

func formatGranularity(n float64, unit string) string {
	return strconv.FormatInt(int64(n), 10) + unit
}
