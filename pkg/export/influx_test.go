package export

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tschart/pkg/chart"
	"tschart/pkg/core"
	errs "tschart/pkg/error"
)

// recordingWriter 记录每批写入的点
type recordingWriter struct {
	mu      sync.Mutex
	batches [][]*write.Point
	failAt  int // 第 n 批失败，从 1 开始，0 表示不失败
}

func (w *recordingWriter) WritePoint(ctx context.Context, points ...*write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failAt > 0 && len(w.batches)+1 == w.failAt {
		return errors.New("influx unavailable")
	}
	w.batches = append(w.batches, points)
	return nil
}

func tags(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fields(p *write.Point) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func rawResult(n int) chart.ChartResult {
	dps := make([]core.TimeseriesDatapoint, n)
	for i := range dps {
		dps[i] = core.RawPoint(int64(i)*60000, float64(i))
	}
	metadata := core.ChartMetadata{
		NumberOfPoints: n,
		DataFetchMode:  core.FetchModeRaw,
		IsStep:         core.Bool(true),
		Unit:           "bar",
	}
	return chart.ChartResult{
		Timeseries: core.ByExternalID("pump-1"),
		Data:       chart.AdaptChartData(dps, metadata),
		Metadata:   metadata,
	}
}

// TestInfluxSink_Points 测试点布局与 influx 提供商一致
func TestInfluxSink_Points(t *testing.T) {
	sink := NewInfluxSinkWithWriter(Config{}, &recordingWriter{})

	points := sink.Points(rawResult(3))
	require.Len(t, points, 3)

	p := points[2]
	assert.Equal(t, "datapoints", p.Name())
	assert.Equal(t, time.UnixMilli(120000), p.Time())
	assert.Equal(t, map[string]string{
		"series":  "pump-1",
		"is_step": "true",
		"mode":    "raw",
		"unit":    "bar",
	}, tags(p))
	assert.Equal(t, 2.0, fields(p)["value"])
}

// TestInfluxSink_AggregateFields 测试聚合点附带 min/max/count
func TestInfluxSink_AggregateFields(t *testing.T) {
	sink := NewInfluxSinkWithWriter(Config{Measurement: "mirror", SeriesTag: "ts"}, &recordingWriter{})

	dp := core.TimeseriesDatapoint{
		Timestamp: 1000,
		Average:   core.Float64(5),
		Min:       core.Float64(1),
		Max:       core.Float64(9),
		Count:     core.Float64(12),
	}
	metadata := core.ChartMetadata{NumberOfPoints: 1, DataFetchMode: core.FetchModeAggregate}
	result := chart.ChartResult{
		Timeseries: core.ByID(42),
		Data:       chart.AdaptChartData([]core.TimeseriesDatapoint{dp}, metadata),
		Metadata:   metadata,
	}

	points := sink.Points(result)
	require.Len(t, points, 1)
	assert.Equal(t, "mirror", points[0].Name())
	assert.Equal(t, "42", tags(points[0])["ts"])
	assert.Equal(t, "false", tags(points[0])["is_step"])
	assert.NotContains(t, tags(points[0]), "unit")

	f := fields(points[0])
	assert.Equal(t, 5.0, f["value"])
	assert.Equal(t, 1.0, f["min"])
	assert.Equal(t, 9.0, f["max"])
	assert.Equal(t, 12.0, f["count"])
	assert.NotContains(t, f, "sum")
}

// TestInfluxSink_StringValues 测试字符串值写为字符串字段
func TestInfluxSink_StringValues(t *testing.T) {
	sink := NewInfluxSinkWithWriter(Config{}, &recordingWriter{})
	metadata := core.ChartMetadata{NumberOfPoints: 1, DataFetchMode: core.FetchModeRaw, IsString: core.Bool(true)}
	result := chart.ChartResult{
		Timeseries: core.ByExternalID("door"),
		Data:       chart.AdaptChartData([]core.TimeseriesDatapoint{core.StringPoint(0, "open")}, metadata),
		Metadata:   metadata,
	}

	points := sink.Points(result)
	require.Len(t, points, 1)
	assert.Equal(t, "open", fields(points[0])["value"])
}

// TestInfluxSink_WriteBatches 测试分批写入
func TestInfluxSink_WriteBatches(t *testing.T) {
	w := &recordingWriter{}
	sink := NewInfluxSinkWithWriter(Config{BatchSize: 4}, w)

	n, err := sink.Write(context.Background(), rawResult(10))
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	require.Len(t, w.batches, 3)
	assert.Len(t, w.batches[0], 4)
	assert.Len(t, w.batches[2], 2)
}

// TestInfluxSink_WriteEmpty 测试空数据不写入
func TestInfluxSink_WriteEmpty(t *testing.T) {
	w := &recordingWriter{}
	sink := NewInfluxSinkWithWriter(Config{}, w)

	n, err := sink.Write(context.Background(), chart.ChartResult{Timeseries: core.ByID(1)})
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, w.batches)
}

// TestInfluxSink_WriteError 测试写入失败返回已写入点数
func TestInfluxSink_WriteError(t *testing.T) {
	w := &recordingWriter{failAt: 2}
	sink := NewInfluxSinkWithWriter(Config{BatchSize: 4}, w)

	n, err := sink.Write(context.Background(), rawResult(10))
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, ErrWrite))
	assert.Equal(t, 4, n)
}

// TestNewInfluxSink_RequiresOrg 测试缺少组织时返回错误
func TestNewInfluxSink_RequiresOrg(t *testing.T) {
	_, err := NewInfluxSink(Config{URL: "http://localhost:8086"})
	assert.True(t, errs.HasCode(err, ErrConfig))
}
