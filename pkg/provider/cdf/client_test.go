package cdf

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tschart/pkg/core"
	errs "tschart/pkg/error"
	"tschart/pkg/limiter"
	"tschart/pkg/provider"
)

func newTestProvider(t *testing.T, mock *HTTPMock, token string) *Provider {
	t.Helper()
	p, err := NewProvider(Config{
		BaseURL:      mock.GetURL(),
		Project:      "demo",
		Token:        token,
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return p
}

func minutePoints(n int) []core.TimeseriesDatapoint {
	out := make([]core.TimeseriesDatapoint, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, core.RawPoint(int64(i)*60000, float64(i)))
	}
	return out
}

// TestProvider_ImplementsDatapointsProvider 测试接口实现
func TestProvider_ImplementsDatapointsProvider(t *testing.T) {
	var _ provider.DatapointsProvider = (*Provider)(nil)
	var _ provider.Configurable = (*Provider)(nil)
	var _ provider.Closable = (*Provider)(nil)
}

// TestNewProvider_RequiresConfig 测试缺少配置时返回错误
func TestNewProvider_RequiresConfig(t *testing.T) {
	_, err := NewProvider(Config{BaseURL: "http://localhost"})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, ErrConfig))
}

// TestProvider_RetrieveRaw 测试原始数据点检索
func TestProvider_RetrieveRaw(t *testing.T) {
	mock := NewHTTPMock("demo", "secret")
	defer mock.Close()
	mock.AddSeries(MockSeries{ID: 42, ExternalID: "pump-1", Unit: "bar", Datapoints: minutePoints(100)})

	p := newTestProvider(t, mock, "secret")
	results, err := p.RetrieveDatapoints(context.Background(), core.DatapointsRequest{
		Items: []core.DatapointsQueryItem{{ID: 42}},
		Start: core.Int64(60000 * 10),
		End:   core.Int64(60000 * 50),
		Limit: 5,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.Equal(t, int64(42), r.ID)
	assert.Equal(t, "pump-1", r.ExternalID)
	assert.Equal(t, "bar", r.Unit)
	require.Len(t, r.Datapoints, 5)
	assert.Equal(t, int64(600000), r.Datapoints[0].Timestamp)
	require.NotNil(t, r.Datapoints[0].Value)
	assert.Equal(t, core.NumberValue(10), *r.Datapoints[0].Value)

	bodies := mock.Requests()
	require.Len(t, bodies, 1)
	assert.Equal(t, 5, bodies[0].Limit)
	assert.Empty(t, bodies[0].Aggregates)
}

// TestProvider_RetrieveAggregate 测试聚合数据点检索
func TestProvider_RetrieveAggregate(t *testing.T) {
	mock := NewHTTPMock("demo", "")
	defer mock.Close()
	mock.AddSeries(MockSeries{ExternalID: "pump-1", ID: 1, Datapoints: minutePoints(120)})

	p := newTestProvider(t, mock, "")
	results, err := p.RetrieveDatapoints(context.Background(), core.DatapointsRequest{
		Items:       []core.DatapointsQueryItem{{ExternalID: "pump-1"}},
		Aggregates:  []string{"average", "min", "max", "count"},
		Granularity: "1h",
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)

	dps := results[0].Datapoints
	require.Len(t, dps, 2)
	assert.True(t, dps[0].IsAggregate())
	assert.Equal(t, int64(0), dps[0].Timestamp)
	assert.Equal(t, 29.5, *dps[0].Average)
	assert.Equal(t, 0.0, *dps[0].Min)
	assert.Equal(t, 59.0, *dps[0].Max)
	assert.Equal(t, 60.0, *dps[0].Count)
	assert.Equal(t, int64(3600000), dps[1].Timestamp)
}

// TestProvider_RetrieveStringSeries 测试字符串序列
func TestProvider_RetrieveStringSeries(t *testing.T) {
	mock := NewHTTPMock("demo", "")
	defer mock.Close()
	mock.AddSeries(MockSeries{ID: 5, IsString: true, IsStep: true, Datapoints: []core.TimeseriesDatapoint{
		core.StringPoint(1000, "open"), core.StringPoint(2000, "closed"),
	}})

	p := newTestProvider(t, mock, "")
	results, err := p.RetrieveDatapoints(context.Background(), core.DatapointsRequest{Items: []core.DatapointsQueryItem{{ID: 5}}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].IsString)
	assert.True(t, results[0].IsStep)
	assert.Equal(t, core.StringValue("closed"), *results[0].Datapoints[1].Value)
}

// TestProvider_RetrieveSummary 测试摘要按桶计数求和
func TestProvider_RetrieveSummary(t *testing.T) {
	mock := NewHTTPMock("demo", "")
	defer mock.Close()
	mock.AddSeries(MockSeries{ID: 42, Unit: "bar", IsStep: true, Datapoints: minutePoints(500)})

	p := newTestProvider(t, mock, "")
	summary, err := p.RetrieveSummary(context.Background(), core.SummaryQuery{
		Identifier: core.ByID(42),
		Start:      core.Int64(0),
		End:        core.Int64(60000 * 300),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(300), summary.Count)
	assert.Equal(t, "bar", summary.Unit)
	assert.True(t, summary.IsStep)
	assert.False(t, summary.IsString)

	bodies := mock.Requests()
	require.Len(t, bodies, 1)
	assert.Equal(t, []string{"count"}, bodies[0].Aggregates)
	assert.Equal(t, summaryGranularity, bodies[0].Granularity)
}

// TestProvider_RetriesServerErrors 测试 5xx 与 429 会重试
func TestProvider_RetriesServerErrors(t *testing.T) {
	mock := NewHTTPMock("demo", "")
	defer mock.Close()
	mock.AddSeries(MockSeries{ID: 1, Datapoints: minutePoints(3)})
	mock.SimulateErrors(http.StatusServiceUnavailable, http.StatusTooManyRequests)

	p := newTestProvider(t, mock, "")
	results, err := p.RetrieveDatapoints(context.Background(), core.DatapointsRequest{Items: []core.DatapointsQueryItem{{ID: 1}}})
	require.NoError(t, err)
	assert.Len(t, results[0].Datapoints, 3)
	assert.Equal(t, 3, mock.GetRequestCount())
}

// TestProvider_RetriesExhausted 测试重试耗尽后返回带状态码的错误
func TestProvider_RetriesExhausted(t *testing.T) {
	mock := NewHTTPMock("demo", "")
	defer mock.Close()
	mock.AddSeries(MockSeries{ID: 1, Datapoints: minutePoints(3)})
	mock.SimulateErrors(500, 500, 500)

	p := newTestProvider(t, mock, "")
	_, err := p.RetrieveDatapoints(context.Background(), core.DatapointsRequest{Items: []core.DatapointsQueryItem{{ID: 1}}})
	require.Error(t, err)
	assert.True(t, errs.HasCode(err, ErrHTTP))
	status, ok := limiter.StatusCode(err)
	require.True(t, ok)
	assert.Equal(t, 500, status)
	assert.Equal(t, 3, mock.GetRequestCount())
}

// TestProvider_ClientErrorsNotRetried 测试 4xx 不重试
func TestProvider_ClientErrorsNotRetried(t *testing.T) {
	mock := NewHTTPMock("demo", "secret")
	defer mock.Close()

	p := newTestProvider(t, mock, "wrong")
	_, err := p.RetrieveDatapoints(context.Background(), core.DatapointsRequest{Items: []core.DatapointsQueryItem{{ID: 1}}})
	require.Error(t, err)
	status, _ := limiter.StatusCode(err)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, 1, mock.GetRequestCount())

	p = newTestProvider(t, mock, "secret")
	_, err = p.RetrieveDatapoints(context.Background(), core.DatapointsRequest{Items: []core.DatapointsQueryItem{{ID: 404}}})
	require.Error(t, err)
	status, _ = limiter.StatusCode(err)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 2, mock.GetRequestCount())
}

// TestProvider_EmptyItems 测试空请求不发起调用
func TestProvider_EmptyItems(t *testing.T) {
	mock := NewHTTPMock("demo", "")
	defer mock.Close()

	p := newTestProvider(t, mock, "")
	results, err := p.RetrieveDatapoints(context.Background(), core.DatapointsRequest{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 0, mock.GetRequestCount())
}

// TestProvider_CancelledContext 测试取消的上下文
func TestProvider_CancelledContext(t *testing.T) {
	mock := NewHTTPMock("demo", "")
	defer mock.Close()
	mock.AddSeries(MockSeries{ID: 1, Datapoints: minutePoints(3)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newTestProvider(t, mock, "")
	_, err := p.RetrieveDatapoints(ctx, core.DatapointsRequest{Items: []core.DatapointsQueryItem{{ID: 1}}})
	assert.ErrorIs(t, err, context.Canceled)
}
