// Package app 按配置组装提供商、装饰器、缓存与图表服务
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"tschart/pkg/cache"
	"tschart/pkg/chart"
	"tschart/pkg/config"
	"tschart/pkg/logger"
	"tschart/pkg/provider"
	"tschart/pkg/provider/cdf"
	"tschart/pkg/provider/decorators"
	"tschart/pkg/provider/influx"
)

// App 组装好的取数管线
type App struct {
	Config *config.Config

	// Providers 以基础提供商名称注册最外层提供商
	Providers *provider.ProviderManager

	// Provider 装饰器与缓存包装后的提供商
	Provider provider.DatapointsProvider

	// Cached 缓存关闭时为 nil
	Cached *cache.CachedProvider

	Service *chart.Service

	log *logrus.Entry
}

// NewBaseProvider 按配置创建基础提供商
func NewBaseProvider(cfg *config.Config) (provider.DatapointsProvider, error) {
	switch cfg.Provider.Type {
	case config.ProviderCDF:
		return cdf.NewProvider(cfg.Provider.CDF)
	case config.ProviderInflux:
		return influx.NewProvider(cfg.Provider.Influx)
	default:
		return nil, fmt.Errorf("unsupported provider type: %s", cfg.Provider.Type)
	}
}

// New 校验配置并组装管线
func New(cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	base, err := NewBaseProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("create %s provider: %w", cfg.Provider.Type, err)
	}
	return NewWithProvider(cfg, base)
}

// NewWithProvider 使用给定的基础提供商组装管线。
// 包装顺序由内到外：装饰器链，缓存。缓存命中不经过限流与熔断。
func NewWithProvider(cfg *config.Config, base provider.DatapointsProvider) (*App, error) {
	log := logger.WithComponent("App").WithField("provider", base.Name())

	decorated, err := decorators.CreateDecoratedProvider(base, cfg.DecoratorConfig())
	if err != nil {
		log.WithError(err).Warn("应用装饰器失败，使用原始提供商")
		decorated = base
	}

	a := &App{
		Config:    cfg,
		Providers: provider.NewProviderManager(),
		Provider:  decorated,
		log:       log,
	}

	if cfg.Cache.Enabled {
		layered, err := cache.NewLayeredCacheFromConfig(cfg.Cache.Layered())
		if err != nil {
			closeProvider(decorated)
			return nil, fmt.Errorf("create cache: %w", err)
		}
		a.Cached = cache.NewCachedProvider(decorated, layered, cfg.Cache.Provider)
		a.Provider = a.Cached
	}

	if err := a.Providers.Register(base.Name(), a.Provider); err != nil {
		closeProvider(a.Provider)
		return nil, err
	}

	a.Service = chart.NewService(a.Provider, cfg.Fetch)
	log.WithField("chain", a.Provider.Name()).Info("取数管线已就绪")
	return a, nil
}

// Close 关闭提供商链与缓存
func (a *App) Close() error {
	return a.Providers.Close()
}

func closeProvider(p provider.DatapointsProvider) {
	if c, ok := p.(provider.Closable); ok {
		_ = c.Close()
	}
}
