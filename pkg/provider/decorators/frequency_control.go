package decorators

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tschart/pkg/core"
	"tschart/pkg/limiter"
	"tschart/pkg/logger"
	"tschart/pkg/provider"
)

// FrequencyControlProvider 频率控制装饰器
// 保证两次调用之间的最小间隔，并按错误级别决定是否重试
type FrequencyControlProvider struct {
	*BaseDecorator

	limiter *limiter.RetryLimiter
	log     *logrus.Entry

	mu          sync.Mutex
	minInterval time.Duration
	maxRetries  int
	lastRequest time.Time
	isActive    bool
}

// FrequencyControlConfig 频率控制配置
type FrequencyControlConfig struct {
	MinInterval   time.Duration `yaml:"min_interval" mapstructure:"min_interval"`       // 最小请求间隔
	MinIntervalMs int           `yaml:"min_interval_ms" mapstructure:"min_interval_ms"` // 毫秒形式的最小间隔，非零时覆盖 MinInterval
	MaxRetries    int           `yaml:"max_retries" mapstructure:"max_retries"`         // 最大重试次数
	RetryBackoff  time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`     // 第 n 次重试等待 n*RetryBackoff，为 0 时使用默认等待序列
	Cooldown      time.Duration `yaml:"cooldown" mapstructure:"cooldown"`               // 致命错误后的冷却时间
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
}

// DefaultFrequencyControlConfig 默认频率控制配置
func DefaultFrequencyControlConfig() *FrequencyControlConfig {
	return &FrequencyControlConfig{
		MinInterval: 200 * time.Millisecond,
		MaxRetries:  limiter.MaxRetries,
		Cooldown:    time.Minute,
		Enabled:     true,
	}
}

// backoff 生成重试等待序列
func (c *FrequencyControlConfig) backoff() []time.Duration {
	if c.MaxRetries <= 0 {
		return nil
	}
	out := make([]time.Duration, c.MaxRetries)
	for i := range out {
		switch {
		case c.RetryBackoff > 0:
			out[i] = time.Duration(i+1) * c.RetryBackoff
		case i < len(limiter.DefaultBackoff):
			out[i] = limiter.DefaultBackoff[i]
		default:
			out[i] = limiter.DefaultBackoff[len(limiter.DefaultBackoff)-1]
		}
	}
	return out
}

// NewFrequencyControlProvider 创建频率控制装饰器
func NewFrequencyControlProvider(base provider.DatapointsProvider, config *FrequencyControlConfig) *FrequencyControlProvider {
	if config == nil {
		config = DefaultFrequencyControlConfig()
	}

	return &FrequencyControlProvider{
		BaseDecorator: NewBaseDecorator(base),
		limiter:       limiter.NewRetryLimiter(limiter.NewErrorClassifierWithBackoff(config.backoff()), config.Cooldown),
		log:           logger.WithComponent("FrequencyControl").WithField("provider", base.Name()),
		minInterval:   config.MinInterval,
		maxRetries:    config.MaxRetries,
		isActive:      config.Enabled,
	}
}

// Name 返回装饰器名称
func (f *FrequencyControlProvider) Name() string {
	return fmt.Sprintf("FrequencyControl(%s)", f.base.Name())
}

// GetRateLimit 返回频率限制
func (f *FrequencyControlProvider) GetRateLimit() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.minInterval
}

// IsHealthy 检查基础提供商和限制器状态
func (f *FrequencyControlProvider) IsHealthy() bool {
	return f.base.IsHealthy() && f.limiter.IsSafeToContinue()
}

// RetrieveDatapoints 实现带频率控制的数据点检索
func (f *FrequencyControlProvider) RetrieveDatapoints(ctx context.Context, req core.DatapointsRequest) ([]core.DatapointsResult, error) {
	if !f.active() {
		return f.base.RetrieveDatapoints(ctx, req)
	}
	return withRetry(ctx, f, func() ([]core.DatapointsResult, error) {
		return f.base.RetrieveDatapoints(ctx, req)
	})
}

// RetrieveSummary 实现带频率控制的摘要查询
func (f *FrequencyControlProvider) RetrieveSummary(ctx context.Context, query core.SummaryQuery) (core.SeriesSummary, error) {
	if !f.active() {
		return f.base.RetrieveSummary(ctx, query)
	}
	return withRetry(ctx, f, func() (core.SeriesSummary, error) {
		return f.base.RetrieveSummary(ctx, query)
	})
}

// withRetry 执行带重试的调用
func withRetry[T any](ctx context.Context, f *FrequencyControlProvider, call func() (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		if ok, err := f.limiter.ShouldProceed(ctx); !ok {
			return zero, fmt.Errorf("限制器阻止执行: %w", err)
		}
		if err := f.enforceFrequencyLimit(ctx); err != nil {
			return zero, err
		}

		result, err := call()
		shouldRetry, wait, finalErr := f.limiter.RecordResult(ctx, err, attempt)
		if err == nil {
			return result, nil
		}
		if !shouldRetry {
			return zero, finalErr
		}
		if attempt >= f.maxRetries {
			return zero, fmt.Errorf("已达到最大重试次数 (%d): %w", f.maxRetries, err)
		}

		f.log.WithError(err).Debugf("%s (第 %d 次重试, 等待 %v)",
			f.limiter.Classifier().GetRetryMessage(limiter.LevelNetwork, attempt, wait), attempt+1, wait)

		if wait > 0 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(wait):
			}
		}
	}
}

// enforceFrequencyLimit 执行频率限制
func (f *FrequencyControlProvider) enforceFrequencyLimit(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	elapsed := time.Since(f.lastRequest)
	if elapsed < f.minInterval {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.minInterval - elapsed):
		}
	}

	f.lastRequest = time.Now()
	return nil
}

func (f *FrequencyControlProvider) active() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isActive
}

// SetMinInterval 设置最小请求间隔
func (f *FrequencyControlProvider) SetMinInterval(interval time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.minInterval = interval
}

// SetEnabled 设置是否启用频率控制
func (f *FrequencyControlProvider) SetEnabled(enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isActive = enabled
}

// GetStatus 获取频率控制状态
func (f *FrequencyControlProvider) GetStatus() map[string]interface{} {
	status := f.limiter.GetStatus()

	f.mu.Lock()
	defer f.mu.Unlock()
	status["decorator_type"] = "FrequencyControl"
	status["min_interval"] = f.minInterval.String()
	status["is_active"] = f.isActive
	status["last_request"] = f.lastRequest
	status["base_provider"] = f.base.Name()
	return status
}

// Reset 重置频率控制状态
func (f *FrequencyControlProvider) Reset() {
	f.mu.Lock()
	f.lastRequest = time.Time{}
	f.mu.Unlock()
	f.limiter.Reset()
}
