package core

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTimeseriesIdentifier_Validate 测试标识必须二选一
func TestTimeseriesIdentifier_Validate(t *testing.T) {
	assert.NoError(t, ByID(42).Validate())
	assert.NoError(t, ByExternalID("pump-1").Validate())
	assert.Error(t, TimeseriesIdentifier{}.Validate(), "空标识应该返回错误")
	assert.Error(t, TimeseriesIdentifier{ID: 1, ExternalID: "x"}.Validate(), "同时设置两个标识应该返回错误")

	assert.Equal(t, "id:42", ByID(42).String())
	assert.Equal(t, "externalId:pump-1", ByExternalID("pump-1").String())
}

// TestDateRange 测试时间范围
func TestDateRange(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	r := NewDateRange(start, start.Add(time.Hour))

	require.NoError(t, r.Validate())
	assert.Equal(t, int64(1672531200000), r.StartMillis())
	assert.Equal(t, int64(1672534800000), r.EndMillis())

	assert.NoError(t, NewDateRange(start, start).Validate(), "零宽范围合法")
	assert.Error(t, NewDateRange(start.Add(time.Second), start).Validate())
}

// TestParseDataFetchMode 测试取数模式解析
func TestParseDataFetchMode(t *testing.T) {
	for in, want := range map[string]DataFetchMode{
		"":          DataFetchModeAuto,
		"auto":      DataFetchModeAuto,
		"raw":       DataFetchModeRaw,
		"aggregate": DataFetchModeAggregate,
	} {
		got, err := ParseDataFetchMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseDataFetchMode("RAW")
	assert.Error(t, err)

	assert.True(t, FetchModeRaw.Valid())
	assert.True(t, FetchModeAggregate.Valid())
	assert.False(t, FetchMode("auto").Valid())
}

// TestValue_JSON 测试取值以数字或字符串编码
func TestValue_JSON(t *testing.T) {
	b, err := json.Marshal([]Value{NumberValue(1.5), StringValue("on")})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, "on"]`, string(b))

	var decoded []Value
	require.NoError(t, json.Unmarshal([]byte(`[2, "off"]`), &decoded))
	assert.Equal(t, []Value{NumberValue(2), StringValue("off")}, decoded)

	var bad Value
	assert.Error(t, json.Unmarshal([]byte(`true`), &bad))

	assert.Equal(t, "2.25", NumberValue(2.25).String())
	assert.Equal(t, "off", StringValue("off").String())
}

// TestTimeseriesDatapoint_IsAggregate 测试原始点与聚合点的区分
func TestTimeseriesDatapoint_IsAggregate(t *testing.T) {
	assert.False(t, RawPoint(1, 2).IsAggregate())
	assert.False(t, TimeseriesDatapoint{Timestamp: 1}.IsAggregate())
	assert.True(t, TimeseriesDatapoint{Timestamp: 1, Count: Float64(3)}.IsAggregate())
	assert.True(t, TimeseriesDatapoint{Timestamp: 1, TotalVariation: Float64(0)}.IsAggregate())

	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), RawPoint(1672531200000, 0).Time())
}

// TestTimeseriesDatapoint_JSON 测试数据点只输出已填充的字段
func TestTimeseriesDatapoint_JSON(t *testing.T) {
	b, err := json.Marshal(TimeseriesDatapoint{Timestamp: 10, Average: Float64(1), Count: Float64(4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":10,"average":1,"count":4}`, string(b))

	b, err = json.Marshal(StringPoint(10, "open"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"timestamp":10,"value":"open"}`, string(b))
}

// TestDatapointsRequest 测试请求辅助方法
func TestDatapointsRequest(t *testing.T) {
	req := DatapointsRequest{Items: []DatapointsQueryItem{ItemFor(ByExternalID("x"))}, Start: Int64(5)}
	assert.False(t, req.IsAggregate())

	moved := req.WithStart(Int64(9))
	assert.Equal(t, int64(9), *moved.Start)
	assert.Equal(t, int64(5), *req.Start, "原请求不被修改")
	assert.Equal(t, ByExternalID("x"), moved.Items[0].Identifier())

	req.Aggregates = []string{"count"}
	assert.True(t, req.IsAggregate())
}
