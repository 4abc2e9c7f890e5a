package providers

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"tschart/pkg/core"
)

// MockSeries Mock 序列数据与标志
type MockSeries struct {
	Datapoints []core.TimeseriesDatapoint
	IsString   bool
	IsStep     bool
	Unit       string
}

// MockProviderStats Mock Provider 统计
type MockProviderStats struct {
	TotalCalls      int64     `json:"total_calls"`
	SummaryCalls    int64     `json:"summary_calls"`
	SuccessfulCalls int64     `json:"successful_calls"`
	FailedCalls     int64     `json:"failed_calls"`
	LastCall        time.Time `json:"last_call"`
}

// MockProvider 内存数据点提供商，用于测试
// 原始请求按 [start, end) 过滤并截取 limit 个点；聚合请求把每个点转换为一个聚合点
type MockProvider struct {
	mu         sync.RWMutex
	name       string
	series     map[string]*MockSeries
	failures   map[string]error
	summaryErr error
	delay      time.Duration
	healthy    bool
	calls      []core.DatapointsRequest
	stats      MockProviderStats
}

// NewMockProvider 创建 Mock Provider
func NewMockProvider(name string) *MockProvider {
	if name == "" {
		name = "mock"
	}
	return &MockProvider{
		name:     name,
		series:   make(map[string]*MockSeries),
		failures: make(map[string]error),
		healthy:  true,
	}
}

// Name 返回提供商名称
func (mp *MockProvider) Name() string { return mp.name }

// GetRateLimit Mock 不限速
func (mp *MockProvider) GetRateLimit() time.Duration { return 0 }

// IsHealthy 返回健康状态
func (mp *MockProvider) IsHealthy() bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return mp.healthy
}

// SetHealthy 设置健康状态
func (mp *MockProvider) SetHealthy(healthy bool) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.healthy = healthy
}

// SetSeries 设置序列数据，数据点按时间排序后保存
func (mp *MockProvider) SetSeries(id core.TimeseriesIdentifier, series MockSeries) {
	dps := append([]core.TimeseriesDatapoint(nil), series.Datapoints...)
	sort.SliceStable(dps, func(i, j int) bool { return dps[i].Timestamp < dps[j].Timestamp })
	series.Datapoints = dps

	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.series[id.String()] = &series
}

// SetFailure 让指定序列的数据点请求失败，err 为 nil 时清除
func (mp *MockProvider) SetFailure(id core.TimeseriesIdentifier, err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if err == nil {
		delete(mp.failures, id.String())
		return
	}
	mp.failures[id.String()] = err
}

// SetSummaryError 让摘要请求失败，err 为 nil 时清除
func (mp *MockProvider) SetSummaryError(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.summaryErr = err
}

// SetDelay 设置每次请求的延迟
func (mp *MockProvider) SetDelay(d time.Duration) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.delay = d
}

// Calls 返回记录的数据点请求
func (mp *MockProvider) Calls() []core.DatapointsRequest {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return append([]core.DatapointsRequest(nil), mp.calls...)
}

// GetStats 返回统计
func (mp *MockProvider) GetStats() MockProviderStats {
	mp.mu.RLock()
	defer mp.mu.RUnlock()
	return MockProviderStats{
		TotalCalls:      atomic.LoadInt64(&mp.stats.TotalCalls),
		SummaryCalls:    atomic.LoadInt64(&mp.stats.SummaryCalls),
		SuccessfulCalls: atomic.LoadInt64(&mp.stats.SuccessfulCalls),
		FailedCalls:     atomic.LoadInt64(&mp.stats.FailedCalls),
		LastCall:        mp.stats.LastCall,
	}
}

// RetrieveDatapoints 检索数据点
func (mp *MockProvider) RetrieveDatapoints(ctx context.Context, req core.DatapointsRequest) ([]core.DatapointsResult, error) {
	atomic.AddInt64(&mp.stats.TotalCalls, 1)

	mp.mu.Lock()
	mp.calls = append(mp.calls, req)
	mp.stats.LastCall = time.Now()
	delay := mp.delay
	mp.mu.Unlock()

	if err := mp.applyDelay(ctx, delay); err != nil {
		atomic.AddInt64(&mp.stats.FailedCalls, 1)
		return nil, err
	}

	mp.mu.RLock()
	defer mp.mu.RUnlock()

	results := make([]core.DatapointsResult, 0, len(req.Items))
	for _, item := range req.Items {
		key := item.Identifier().String()
		if err, ok := mp.failures[key]; ok {
			atomic.AddInt64(&mp.stats.FailedCalls, 1)
			return nil, err
		}
		series, ok := mp.series[key]
		if !ok {
			atomic.AddInt64(&mp.stats.FailedCalls, 1)
			return nil, fmt.Errorf("mock series %s not found", key)
		}
		results = append(results, core.DatapointsResult{
			ID:         item.ID,
			ExternalID: item.ExternalID,
			IsString:   series.IsString,
			IsStep:     series.IsStep,
			Unit:       series.Unit,
			Datapoints: selectDatapoints(series.Datapoints, req),
		})
	}

	atomic.AddInt64(&mp.stats.SuccessfulCalls, 1)
	return results, nil
}

// RetrieveSummary 返回区间内点数与序列标志
func (mp *MockProvider) RetrieveSummary(ctx context.Context, query core.SummaryQuery) (core.SeriesSummary, error) {
	atomic.AddInt64(&mp.stats.SummaryCalls, 1)

	if err := ctx.Err(); err != nil {
		return core.SeriesSummary{}, err
	}

	mp.mu.RLock()
	defer mp.mu.RUnlock()

	if mp.summaryErr != nil {
		return core.SeriesSummary{}, mp.summaryErr
	}
	series, ok := mp.series[query.Identifier.String()]
	if !ok {
		return core.SeriesSummary{}, fmt.Errorf("mock series %s not found", query.Identifier.String())
	}

	var count int64
	for _, dp := range series.Datapoints {
		if inRange(dp.Timestamp, query.Start, query.End) {
			count++
		}
	}
	return core.SeriesSummary{
		ID:         query.Identifier.ID,
		ExternalID: query.Identifier.ExternalID,
		IsStep:     series.IsStep,
		IsString:   series.IsString,
		Unit:       series.Unit,
		Count:      count,
	}, nil
}

func (mp *MockProvider) applyDelay(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	select {
	case <-time.After(delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func selectDatapoints(all []core.TimeseriesDatapoint, req core.DatapointsRequest) []core.TimeseriesDatapoint {
	out := make([]core.TimeseriesDatapoint, 0)
	for _, dp := range all {
		if !inRange(dp.Timestamp, req.Start, req.End) {
			continue
		}
		if req.Limit > 0 && len(out) >= req.Limit {
			break
		}
		if req.IsAggregate() {
			dp = toAggregate(dp)
		}
		out = append(out, dp)
	}
	return out
}

func toAggregate(dp core.TimeseriesDatapoint) core.TimeseriesDatapoint {
	if dp.Value == nil || dp.Value.IsStr {
		return dp
	}
	v := dp.Value.Num
	return core.TimeseriesDatapoint{
		Timestamp: dp.Timestamp,
		Average:   core.Float64(v),
		Min:       core.Float64(v),
		Max:       core.Float64(v),
		Count:     core.Float64(1),
	}
}

func inRange(ts int64, start, end *int64) bool {
	if start != nil && ts < *start {
		return false
	}
	if end != nil && ts >= *end {
		return false
	}
	return true
}

// DataGenConfig 数据生成配置
type DataGenConfig struct {
	StartMillis int64   `yaml:"start_millis"`
	StepMillis  int64   `yaml:"step_millis"`
	Base        float64 `yaml:"base"`
	Volatility  float64 `yaml:"volatility"`
	RandomSeed  int64   `yaml:"random_seed"`
}

// DefaultDataGenConfig 默认数据生成配置
func DefaultDataGenConfig() DataGenConfig {
	return DataGenConfig{
		StartMillis: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli(),
		StepMillis:  time.Minute.Milliseconds(),
		Base:        100,
		Volatility:  1,
		RandomSeed:  42,
	}
}

// GenerateDatapoints 按随机游走生成 n 个等间隔数值点
func GenerateDatapoints(config DataGenConfig, n int) []core.TimeseriesDatapoint {
	if config.StepMillis <= 0 {
		config.StepMillis = 1
	}
	seed := config.RandomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))

	out := make([]core.TimeseriesDatapoint, 0, n)
	v := config.Base
	for i := 0; i < n; i++ {
		out = append(out, core.RawPoint(config.StartMillis+int64(i)*config.StepMillis, v))
		v += (r.Float64()*2 - 1) * config.Volatility
	}
	return out
}
