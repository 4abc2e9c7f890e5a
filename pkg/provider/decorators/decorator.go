package decorators

import (
	"context"
	"time"

	"tschart/pkg/core"
	"tschart/pkg/provider"
)

// Decorator 装饰器基础接口
// 所有装饰器都应该实现此接口
type Decorator interface {
	provider.DatapointsProvider

	// GetBaseProvider 获取被装饰的基础 Provider
	GetBaseProvider() provider.DatapointsProvider
}

// BaseDecorator 装饰器基础实现
// 默认把所有调用透传给被装饰的提供商
type BaseDecorator struct {
	base provider.DatapointsProvider
}

// NewBaseDecorator 创建基础装饰器
func NewBaseDecorator(base provider.DatapointsProvider) *BaseDecorator {
	return &BaseDecorator{base: base}
}

// Name 实现 Provider 接口
func (d *BaseDecorator) Name() string {
	return d.base.Name()
}

// GetRateLimit 实现 Provider 接口
func (d *BaseDecorator) GetRateLimit() time.Duration {
	return d.base.GetRateLimit()
}

// IsHealthy 实现 Provider 接口
func (d *BaseDecorator) IsHealthy() bool {
	return d.base.IsHealthy()
}

// RetrieveDatapoints 实现 DatapointsProvider 接口
func (d *BaseDecorator) RetrieveDatapoints(ctx context.Context, req core.DatapointsRequest) ([]core.DatapointsResult, error) {
	return d.base.RetrieveDatapoints(ctx, req)
}

// RetrieveSummary 实现 DatapointsProvider 接口
func (d *BaseDecorator) RetrieveSummary(ctx context.Context, query core.SummaryQuery) (core.SeriesSummary, error) {
	return d.base.RetrieveSummary(ctx, query)
}

// GetBaseProvider 实现 Decorator 接口
func (d *BaseDecorator) GetBaseProvider() provider.DatapointsProvider {
	return d.base
}

// Close 关闭被装饰的提供商（如果它支持关闭）
func (d *BaseDecorator) Close() error {
	if c, ok := d.base.(provider.Closable); ok {
		return c.Close()
	}
	return nil
}

// Unwrap 剥掉所有装饰器，返回最内层的提供商
func Unwrap(p provider.DatapointsProvider) provider.DatapointsProvider {
	for {
		d, ok := p.(Decorator)
		if !ok {
			return p
		}
		p = d.GetBaseProvider()
	}
}

// DecoratorChain 装饰器链
// 用于组合多个装饰器
type DecoratorChain struct {
	decorators []func(provider.DatapointsProvider) provider.DatapointsProvider
}

// NewDecoratorChain 创建装饰器链
func NewDecoratorChain() *DecoratorChain {
	return &DecoratorChain{}
}

// AddDecorator 添加装饰器到链中
func (dc *DecoratorChain) AddDecorator(decorator func(provider.DatapointsProvider) provider.DatapointsProvider) *DecoratorChain {
	dc.decorators = append(dc.decorators, decorator)
	return dc
}

// Apply 按添加顺序应用装饰器，最后添加的在最外层
func (dc *DecoratorChain) Apply(base provider.DatapointsProvider) provider.DatapointsProvider {
	p := base
	for _, decorator := range dc.decorators {
		p = decorator(p)
	}
	return p
}

// DecoratorFactory 装饰器工厂
// 用于根据配置创建各种类型的装饰器
type DecoratorFactory struct{}

// NewDecoratorFactory 创建装饰器工厂
func NewDecoratorFactory() *DecoratorFactory {
	return &DecoratorFactory{}
}
