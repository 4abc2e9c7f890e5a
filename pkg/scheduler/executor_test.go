package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tschart/pkg/chart"
	"tschart/pkg/core"
	"tschart/pkg/provider"
	"tschart/pkg/testkit/providers"
)

// fakeFetcher 返回预设结果并记录请求
type fakeFetcher struct {
	reqs    []chart.ChartRequest
	results []chart.ChartResult
}

func (f *fakeFetcher) GetMultiChartData(ctx context.Context, reqs []chart.ChartRequest) []chart.ChartResult {
	f.reqs = reqs
	return f.results
}

// recordingSink 记录写出的结果
type recordingSink struct {
	written []chart.ChartResult
	err     error
}

func (s *recordingSink) Write(ctx context.Context, result chart.ChartResult) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.written = append(s.written, result)
	return result.Data.Len(), nil
}

func (s *recordingSink) Close() error { return nil }

func resultWith(id core.TimeseriesIdentifier, n int) chart.ChartResult {
	x := make([]int64, n)
	y := make([]core.Value, n)
	for i := range x {
		x[i] = int64(i)
		y[i] = core.NumberValue(float64(i))
	}
	return chart.ChartResult{Timeseries: id, Data: core.ChartData{X: x, Y: y}}
}

// TestRequests 测试按窗口构造请求
func TestRequests(t *testing.T) {
	now := time.Date(2023, 1, 8, 0, 0, 0, 0, time.UTC)
	config := validJob("job")
	config.Window = 7 * 24 * time.Hour
	config.Mode = "raw"

	reqs := Requests(config, now)
	require.Len(t, reqs, 2)
	assert.Equal(t, core.ByExternalID("pump-1"), reqs[0].Query.Timeseries)
	assert.Equal(t, core.ByID(42), reqs[1].Query.Timeseries)
	assert.Equal(t, now.Add(-7*24*time.Hour), reqs[0].Query.DateRange.Start)
	assert.Equal(t, now, reqs[0].Query.DateRange.End)
	assert.Equal(t, 100, reqs[0].Query.NumberOfPoints)
	assert.Equal(t, core.DataFetchModeRaw, reqs[0].Options.Mode)
}

// TestChartJobExecutor_WritesToSink 测试结果写出
func TestChartJobExecutor_WritesToSink(t *testing.T) {
	fetcher := &fakeFetcher{results: []chart.ChartResult{
		resultWith(core.ByExternalID("pump-1"), 3),
		resultWith(core.ByID(42), 5),
	}}
	sink := &recordingSink{}
	executor := NewChartJobExecutor(fetcher, sink)

	config := validJob("job")
	n, err := executor.Execute(context.Background(), &Job{Config: config})
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Len(t, sink.written, 2)
	assert.Len(t, fetcher.reqs, 2)
}

// TestChartJobExecutor_PartialFailure 测试部分序列失败仍写出其余序列
func TestChartJobExecutor_PartialFailure(t *testing.T) {
	fetcher := &fakeFetcher{results: []chart.ChartResult{resultWith(core.ByID(42), 2)}}
	sink := &recordingSink{}

	n, err := NewChartJobExecutor(fetcher, sink).Execute(context.Background(), &Job{Config: validJob("job")})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, sink.written, 1)
}

// TestChartJobExecutor_AllFailed 测试全部失败返回错误
func TestChartJobExecutor_AllFailed(t *testing.T) {
	_, err := NewChartJobExecutor(&fakeFetcher{}, &recordingSink{}).Execute(context.Background(), &Job{Config: validJob("job")})
	assert.Error(t, err)
}

// TestChartJobExecutor_SinkError 测试写出失败
func TestChartJobExecutor_SinkError(t *testing.T) {
	fetcher := &fakeFetcher{results: []chart.ChartResult{resultWith(core.ByID(42), 2)}}
	sink := &recordingSink{err: errors.New("write failed")}

	_, err := NewChartJobExecutor(fetcher, sink).Execute(context.Background(), &Job{Config: validJob("job")})
	assert.EqualError(t, err, "write failed")
}

// TestChartJobExecutor_LogOutput 测试日志输出不写 sink
func TestChartJobExecutor_LogOutput(t *testing.T) {
	fetcher := &fakeFetcher{results: []chart.ChartResult{resultWith(core.ByID(42), 4)}}
	sink := &recordingSink{}
	config := validJob("job")
	config.Output = &OutputConfig{Type: OutputLog}

	n, err := NewChartJobExecutor(fetcher, sink).Execute(context.Background(), &Job{Config: config})
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Empty(t, sink.written)
}

// TestChartJobExecutor_WithService 测试经由 chart.Service 的完整任务
func TestChartJobExecutor_WithService(t *testing.T) {
	gen := providers.DefaultDataGenConfig()
	mock := providers.NewMockProvider("mock")
	mock.SetSeries(core.ByExternalID("pump-1"), providers.MockSeries{Datapoints: providers.GenerateDatapoints(gen, 100)})
	var p provider.DatapointsProvider = mock
	service := chart.NewService(p, chart.DefaultSettings())

	start := time.UnixMilli(gen.StartMillis)
	executor := NewChartJobExecutor(service, &recordingSink{})
	executor.now = func() time.Time { return start.Add(30 * time.Minute) }

	config := validJob("job")
	config.Series = []SeriesRef{{ExternalID: "pump-1"}}
	config.Window = 30 * time.Minute

	n, err := executor.Execute(context.Background(), &Job{Config: config})
	require.NoError(t, err)
	assert.Equal(t, 30, n)
}
