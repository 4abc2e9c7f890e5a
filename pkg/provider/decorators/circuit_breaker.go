package decorators

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"tschart/pkg/core"
	"tschart/pkg/limiter"
	"tschart/pkg/logger"
	"tschart/pkg/metrics"
	"tschart/pkg/provider"
)

// CircuitBreakerConfig 熔断器配置
type CircuitBreakerConfig struct {
	Name        string        `yaml:"name" mapstructure:"name" json:"name"`
	MaxRequests uint32        `yaml:"max_requests" mapstructure:"max_requests" json:"max_requests"`    // 半开状态放行的请求数
	Interval    time.Duration `yaml:"interval" mapstructure:"interval" json:"interval"`                // 关闭状态下计数清零的周期
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout" json:"timeout"`                   // 打开后转为半开的等待时间
	ReadyToTrip uint32        `yaml:"ready_to_trip" mapstructure:"ready_to_trip" json:"ready_to_trip"` // 连续失败达到该值时打开
	Enabled     bool          `yaml:"enabled" mapstructure:"enabled" json:"enabled"`
}

// DefaultCircuitBreakerConfig 默认熔断器配置
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:        "DatapointsProvider",
		MaxRequests: 5,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: 5,
		Enabled:     true,
	}
}

// CircuitBreakerStats 经过熔断器的调用统计
type CircuitBreakerStats struct {
	TotalRequests      int64     `json:"total_requests"`
	SuccessfulRequests int64     `json:"successful_requests"`
	FailedRequests     int64     `json:"failed_requests"`
	RejectedRequests   int64     `json:"rejected_requests"`
	LastFailure        time.Time `json:"last_failure"`
}

// CircuitBreakerStatus 熔断器状态快照
type CircuitBreakerStatus struct {
	BaseProvider string               `json:"base_provider"`
	Enabled      bool                 `json:"enabled"`
	State        string               `json:"state"`
	Counts       gobreaker.Counts     `json:"counts"`
	Stats        CircuitBreakerStats  `json:"stats"`
	Config       CircuitBreakerConfig `json:"config"`
}

// CircuitBreakerProvider 熔断器装饰器。
// 连续的下游故障会打开熔断器，之后的调用直接失败，直到超时后半开试探。
// 调用方取消与请求参数错误不计为故障。
type CircuitBreakerProvider struct {
	*BaseDecorator

	cb         *gobreaker.CircuitBreaker
	config     *CircuitBreakerConfig
	classifier *limiter.ErrorClassifier
	log        *logrus.Entry

	mu    sync.RWMutex
	stats CircuitBreakerStats
}

// NewCircuitBreakerProvider 创建熔断器装饰器
func NewCircuitBreakerProvider(base provider.DatapointsProvider, config *CircuitBreakerConfig) *CircuitBreakerProvider {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	c := &CircuitBreakerProvider{
		BaseDecorator: NewBaseDecorator(base),
		config:        config,
		classifier:    limiter.NewErrorClassifier(),
		log:           logger.WithComponent("CircuitBreaker").WithField("provider", base.Name()),
	}

	c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.ReadyToTrip
		},
		IsSuccessful: c.isSuccessful,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
			c.log.WithFields(logrus.Fields{"from": from.String(), "to": to.String()}).Warn("熔断器状态变更")
		},
	})
	metrics.BreakerState.WithLabelValues(config.Name).Set(float64(gobreaker.StateClosed))
	return c
}

func (c *CircuitBreakerProvider) isSuccessful(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}
	return c.classifier.Classify(err) == limiter.LevelInvalid
}

// Name 返回装饰器名称
func (c *CircuitBreakerProvider) Name() string {
	return fmt.Sprintf("CircuitBreaker(%s)", c.base.Name())
}

// IsHealthy 熔断器打开时视为不健康
func (c *CircuitBreakerProvider) IsHealthy() bool {
	if c.config.Enabled && c.cb.State() == gobreaker.StateOpen {
		return false
	}
	return c.base.IsHealthy()
}

// RetrieveDatapoints 通过熔断器检索数据点
func (c *CircuitBreakerProvider) RetrieveDatapoints(ctx context.Context, req core.DatapointsRequest) ([]core.DatapointsResult, error) {
	if !c.config.Enabled {
		return c.base.RetrieveDatapoints(ctx, req)
	}
	return guarded(c, func() ([]core.DatapointsResult, error) {
		return c.base.RetrieveDatapoints(ctx, req)
	})
}

// RetrieveSummary 通过熔断器查询摘要
func (c *CircuitBreakerProvider) RetrieveSummary(ctx context.Context, query core.SummaryQuery) (core.SeriesSummary, error) {
	if !c.config.Enabled {
		return c.base.RetrieveSummary(ctx, query)
	}
	return guarded(c, func() (core.SeriesSummary, error) {
		return c.base.RetrieveSummary(ctx, query)
	})
}

// guarded 在熔断器内执行调用并记录结果
func guarded[T any](c *CircuitBreakerProvider, call func() (T, error)) (T, error) {
	var zero T

	c.mu.Lock()
	c.stats.TotalRequests++
	c.mu.Unlock()

	result, err := c.cb.Execute(func() (interface{}, error) {
		return call()
	})
	c.record(err)
	if err != nil {
		return zero, err
	}

	value, ok := result.(T)
	if !ok {
		return zero, fmt.Errorf("熔断器返回数据类型错误: %T", result)
	}
	return value, nil
}

func (c *CircuitBreakerProvider) record(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch {
	case err == nil:
		c.stats.SuccessfulRequests++
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.stats.RejectedRequests++
		metrics.BreakerRejections.WithLabelValues(c.config.Name).Inc()
	default:
		c.stats.FailedRequests++
		c.stats.LastFailure = time.Now()
	}
}

// GetState 当前状态
func (c *CircuitBreakerProvider) GetState() gobreaker.State {
	return c.cb.State()
}

// GetStats 调用统计
func (c *CircuitBreakerProvider) GetStats() CircuitBreakerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Status 状态快照
func (c *CircuitBreakerProvider) Status() CircuitBreakerStatus {
	return CircuitBreakerStatus{
		BaseProvider: c.base.Name(),
		Enabled:      c.config.Enabled,
		State:        c.cb.State().String(),
		Counts:       c.cb.Counts(),
		Stats:        c.GetStats(),
		Config:       *c.config,
	}
}

// SetEnabled 开关熔断器，关闭时直接透传
func (c *CircuitBreakerProvider) SetEnabled(enabled bool) {
	c.config.Enabled = enabled
}

func (c *CircuitBreakerProvider) IsOpen() bool     { return c.cb.State() == gobreaker.StateOpen }
func (c *CircuitBreakerProvider) IsHalfOpen() bool { return c.cb.State() == gobreaker.StateHalfOpen }
func (c *CircuitBreakerProvider) IsClosed() bool   { return c.cb.State() == gobreaker.StateClosed }
