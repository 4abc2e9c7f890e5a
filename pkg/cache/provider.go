package cache

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"tschart/pkg/core"
	"tschart/pkg/logger"
	"tschart/pkg/metrics"
	"tschart/pkg/provider"
)

// CachedProviderConfig 缓存提供商配置
type CachedProviderConfig struct {
	TTL          time.Duration `mapstructure:"ttl"`            // 闭区间请求的缓存时间
	OpenRangeTTL time.Duration `mapstructure:"open_range_ttl"` // 未指定结束时间的请求缓存时间，数据会随时间增长
	LoadTimeout  time.Duration `mapstructure:"load_timeout"`   // 共享的下游调用不随单个调用方取消，只受此超时限制
}

// DefaultCachedProviderConfig 默认配置
func DefaultCachedProviderConfig() CachedProviderConfig {
	return CachedProviderConfig{
		TTL:          10 * time.Minute,
		OpenRangeTTL: 30 * time.Second,
		LoadTimeout:  2 * time.Minute,
	}
}

// CachedProviderStats 缓存提供商统计
type CachedProviderStats struct {
	CacheHits     int64 `json:"cache_hits"`
	CacheMisses   int64 `json:"cache_misses"`
	ProviderCalls int64 `json:"provider_calls"`
	SharedCalls   int64 `json:"shared_calls"`
}

// CachedProvider 带缓存的数据点提供商
// 相同的并发请求只会调用一次下游
type CachedProvider struct {
	base   provider.DatapointsProvider
	cache  Cache
	config CachedProviderConfig
	group  singleflight.Group
	log    *logrus.Entry

	hits, misses, calls, shared int64
}

// NewCachedProvider 创建缓存提供商
func NewCachedProvider(base provider.DatapointsProvider, cache Cache, config CachedProviderConfig) *CachedProvider {
	d := DefaultCachedProviderConfig()
	if config.TTL <= 0 {
		config.TTL = d.TTL
	}
	if config.OpenRangeTTL <= 0 {
		config.OpenRangeTTL = d.OpenRangeTTL
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = d.LoadTimeout
	}
	return &CachedProvider{
		base:   base,
		cache:  cache,
		config: config,
		log:    logger.WithComponent("CachedProvider").WithField("provider", base.Name()),
	}
}

// Name 返回提供商名称
func (cp *CachedProvider) Name() string {
	return fmt.Sprintf("Cached(%s)", cp.base.Name())
}

// IsHealthy 透传健康状态
func (cp *CachedProvider) IsHealthy() bool {
	return cp.base.IsHealthy()
}

// GetRateLimit 透传频率限制
func (cp *CachedProvider) GetRateLimit() time.Duration {
	return cp.base.GetRateLimit()
}

// GetBaseProvider 返回被包装的提供商
func (cp *CachedProvider) GetBaseProvider() provider.DatapointsProvider {
	return cp.base
}

// RetrieveDatapoints 先查缓存，未命中时调用下游并写回
func (cp *CachedProvider) RetrieveDatapoints(ctx context.Context, req core.DatapointsRequest) ([]core.DatapointsResult, error) {
	key, err := Key("dp:"+cp.base.Name(), req)
	if err != nil {
		return nil, err
	}
	return cached(ctx, cp, key, cp.ttlFor(req.End), func(ctx context.Context) ([]core.DatapointsResult, error) {
		return cp.base.RetrieveDatapoints(ctx, req)
	})
}

// RetrieveSummary 先查缓存，未命中时调用下游并写回
func (cp *CachedProvider) RetrieveSummary(ctx context.Context, query core.SummaryQuery) (core.SeriesSummary, error) {
	key, err := Key("summary:"+cp.base.Name(), query)
	if err != nil {
		return core.SeriesSummary{}, err
	}
	return cached(ctx, cp, key, cp.ttlFor(query.End), func(ctx context.Context) (core.SeriesSummary, error) {
		return cp.base.RetrieveSummary(ctx, query)
	})
}

func (cp *CachedProvider) ttlFor(end *int64) time.Duration {
	if end == nil {
		return cp.config.OpenRangeTTL
	}
	return cp.config.TTL
}

// cached 读缓存，未命中时经 singleflight 调用 load 并写回。
// load 使用与调用方解绑的上下文，调用方取消只会让自己提前返回。
// 缓存读写失败只记录日志，不影响返回结果。
func cached[T any](ctx context.Context, cp *CachedProvider, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	var zero T

	data, err := cp.cache.Get(ctx, key)
	if err == nil {
		var out T
		if err := Decode(data, &out); err == nil {
			atomic.AddInt64(&cp.hits, 1)
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return out, nil
		}
		cp.log.WithField("key", key).Warn("缓存数据损坏，重新加载")
		_ = cp.cache.Delete(ctx, key)
	} else if !IsMiss(err) {
		cp.log.WithError(err).Warn("缓存读取失败")
	}
	atomic.AddInt64(&cp.misses, 1)
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	flight := cp.group.DoChan(key, func() (interface{}, error) {
		atomic.AddInt64(&cp.calls, 1)
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cp.config.LoadTimeout)
		defer cancel()

		out, err := load(loadCtx)
		if err != nil {
			return nil, err
		}
		if encoded, err := Encode(out); err == nil {
			if err := cp.cache.Set(loadCtx, key, encoded, ttl); err != nil {
				cp.log.WithError(err).Warn("缓存写入失败")
			}
		}
		return out, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-flight:
		if res.Shared {
			atomic.AddInt64(&cp.shared, 1)
		}
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

// GetStats 获取统计信息
func (cp *CachedProvider) GetStats() CachedProviderStats {
	return CachedProviderStats{
		CacheHits:     atomic.LoadInt64(&cp.hits),
		CacheMisses:   atomic.LoadInt64(&cp.misses),
		ProviderCalls: atomic.LoadInt64(&cp.calls),
		SharedCalls:   atomic.LoadInt64(&cp.shared),
	}
}

// Close 关闭缓存和被包装的提供商
func (cp *CachedProvider) Close() error {
	cacheErr := cp.cache.Close()
	if c, ok := cp.base.(provider.Closable); ok {
		if err := c.Close(); err != nil {
			return err
		}
	}
	return cacheErr
}
