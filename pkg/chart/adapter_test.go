package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tschart/pkg/core"
)

// TestAdaptChartData_Empty 测试空输入得到非 nil 的空切片
func TestAdaptChartData_Empty(t *testing.T) {
	for _, input := range [][]core.TimeseriesDatapoint{nil, {}} {
		data := AdaptChartData(input, core.ChartMetadata{IsStep: core.Bool(true)})
		require.NotNil(t, data.X)
		require.NotNil(t, data.Y)
		require.NotNil(t, data.CustomData)
		assert.Equal(t, 0, data.Len())
		assert.Empty(t, data.Y)
		assert.Empty(t, data.CustomData)
	}
}

// TestAdaptChartData_CoIndexed 测试三组切片等长且下标对齐
func TestAdaptChartData_CoIndexed(t *testing.T) {
	input := []core.TimeseriesDatapoint{
		core.RawPoint(1000, 1.5),
		{Timestamp: 2000},
		{Timestamp: 3000, Average: core.Float64(2.5), Min: core.Float64(1)},
		{Timestamp: 4000, Min: core.Float64(3), Max: core.Float64(4)},
		core.StringPoint(5000, "on"),
	}

	data := AdaptChartData(input, core.ChartMetadata{})

	assert.Equal(t, 3, data.Len(), "缺少取值的点应被跳过")
	assert.Len(t, data.Y, data.Len())
	assert.Len(t, data.CustomData, data.Len())
	assert.Equal(t, []int64{1000, 3000, 5000}, data.X)
	assert.Equal(t, []core.Value{core.NumberValue(1.5), core.NumberValue(2.5), core.StringValue("on")}, data.Y)
	for i := range data.X {
		assert.Equal(t, data.X[i], data.CustomData[i].Timestamp)
	}
	assert.Equal(t, core.InterpolationNone, data.Interpolation)
}

// TestAdaptChartData_ValuePreferred 测试 Value 优先于 Average
func TestAdaptChartData_ValuePreferred(t *testing.T) {
	dp := core.RawPoint(1000, 7)
	dp.Average = core.Float64(99)

	data := AdaptChartData([]core.TimeseriesDatapoint{dp}, core.ChartMetadata{})

	require.Equal(t, 1, data.Len())
	assert.Equal(t, core.NumberValue(7), data.Y[0])
	assert.Equal(t, dp, data.CustomData[0], "CustomData 保留原始数据点")
}

// TestAdaptChartData_Interpolation 测试阶梯插值标记
func TestAdaptChartData_Interpolation(t *testing.T) {
	input := []core.TimeseriesDatapoint{core.RawPoint(1, 1)}

	assert.Equal(t, core.InterpolationStep, AdaptChartData(input, core.ChartMetadata{IsStep: core.Bool(true)}).Interpolation)
	assert.Equal(t, core.InterpolationNone, AdaptChartData(input, core.ChartMetadata{IsStep: core.Bool(false)}).Interpolation)
	assert.Equal(t, core.InterpolationNone, AdaptChartData(input, core.ChartMetadata{}).Interpolation)
}
