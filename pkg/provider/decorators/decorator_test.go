package decorators

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tschart/pkg/core"
	errs "tschart/pkg/error"
	"tschart/pkg/limiter"
	"tschart/pkg/provider"
)

// flakyProvider 前 failures 次调用返回 err，之后成功
type flakyProvider struct {
	mu       sync.Mutex
	name     string
	failures int
	err      error
	calls    int
	closed   bool
}

func newFlakyProvider(failures int, err error) *flakyProvider {
	return &flakyProvider{name: "flaky", failures: failures, err: err}
}

func (p *flakyProvider) Name() string                { return p.name }
func (p *flakyProvider) IsHealthy() bool             { return true }
func (p *flakyProvider) GetRateLimit() time.Duration { return 10 * time.Millisecond }
func (p *flakyProvider) Close() error                { p.closed = true; return nil }

func (p *flakyProvider) next() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.calls <= p.failures {
		return p.err
	}
	return nil
}

func (p *flakyProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *flakyProvider) RetrieveDatapoints(ctx context.Context, req core.DatapointsRequest) ([]core.DatapointsResult, error) {
	if err := p.next(); err != nil {
		return nil, err
	}
	return []core.DatapointsResult{{ID: 42, Datapoints: []core.TimeseriesDatapoint{core.RawPoint(1000, 1)}}}, nil
}

func (p *flakyProvider) RetrieveSummary(ctx context.Context, query core.SummaryQuery) (core.SeriesSummary, error) {
	if err := p.next(); err != nil {
		return core.SeriesSummary{}, err
	}
	return core.SeriesSummary{ID: query.Identifier.ID, Count: 7}, nil
}

func statusError(status int) error {
	return errs.NewError("PROVIDER_HTTP", "request failed").WithContext(limiter.StatusCodeKey, status)
}

var dpRequest = core.DatapointsRequest{Items: []core.DatapointsQueryItem{{ID: 42}}}

// TestBaseDecorator 测试基础装饰器透传
func TestBaseDecorator(t *testing.T) {
	base := newFlakyProvider(0, nil)
	d := NewBaseDecorator(base)

	assert.Equal(t, "flaky", d.Name())
	assert.Equal(t, 10*time.Millisecond, d.GetRateLimit())
	assert.True(t, d.IsHealthy())
	assert.Same(t, base, d.GetBaseProvider())

	results, err := d.RetrieveDatapoints(context.Background(), dpRequest)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	summary, err := d.RetrieveSummary(context.Background(), core.SummaryQuery{Identifier: core.ByID(42)})
	require.NoError(t, err)
	assert.Equal(t, int64(7), summary.Count)

	require.NoError(t, d.Close())
	assert.True(t, base.closed)
}

// TestDecoratorChain 测试装饰器链的应用顺序
func TestDecoratorChain(t *testing.T) {
	base := newFlakyProvider(0, nil)

	decorated := NewDecoratorChain().
		AddDecorator(func(p provider.DatapointsProvider) provider.DatapointsProvider {
			return NewFrequencyControlProvider(p, &FrequencyControlConfig{Enabled: true})
		}).
		AddDecorator(func(p provider.DatapointsProvider) provider.DatapointsProvider {
			return NewCircuitBreakerProvider(p, nil)
		}).
		Apply(base)

	assert.Equal(t, "CircuitBreaker(FrequencyControl(flaky))", decorated.Name())
	assert.Same(t, base, Unwrap(decorated))

	_, err := decorated.RetrieveDatapoints(context.Background(), dpRequest)
	require.NoError(t, err)
	assert.Equal(t, 1, base.Calls())
}

// TestUnwrap_PlainProvider 测试未装饰的提供商
func TestUnwrap_PlainProvider(t *testing.T) {
	base := newFlakyProvider(0, nil)
	assert.Same(t, base, Unwrap(base))
}
