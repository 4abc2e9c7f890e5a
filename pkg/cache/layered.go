package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	errs "tschart/pkg/error"
	"tschart/pkg/logger"
)

// LayerType 缓存层类型
type LayerType string

const (
	LayerMemory LayerType = "memory" // 内存层
	LayerDisk   LayerType = "disk"   // bbolt 磁盘层
	LayerRemote LayerType = "remote" // redis 远程层
)

// LayerConfig 缓存层配置
type LayerConfig struct {
	Type            LayerType     `mapstructure:"type"`
	Enabled         bool          `mapstructure:"enabled"`
	MaxSize         int64         `mapstructure:"max_size"`
	TTL             time.Duration `mapstructure:"ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Path            string        `mapstructure:"path"`       // disk
	Addr            string        `mapstructure:"addr"`       // remote
	Password        string        `mapstructure:"password"`   // remote
	DB              int           `mapstructure:"db"`         // remote
	KeyPrefix       string        `mapstructure:"key_prefix"` // remote
}

// LayeredCacheConfig 分层缓存配置，层按顺序由快到慢
type LayeredCacheConfig struct {
	Layers         []LayerConfig `mapstructure:"layers"`
	PromoteEnabled bool          `mapstructure:"promote_enabled"` // 下层命中时回填上层
	WriteThrough   bool          `mapstructure:"write_through"`   // 写入所有层，否则只写第一层
}

// LayeredCacheStats 分层缓存统计
type LayeredCacheStats struct {
	LayerStats   []CacheStats `json:"layer_stats"`
	TotalHits    int64        `json:"total_hits"`
	TotalMisses  int64        `json:"total_misses"`
	PromoteCount int64        `json:"promote_count"`
	WriteThrough int64        `json:"write_through"`
}

// LayeredCache 分层缓存实现
type LayeredCache struct {
	layers []Cache
	config LayeredCacheConfig
	log    *logrus.Entry

	mu    sync.Mutex
	stats LayeredCacheStats
}

// NewLayeredCache 使用已创建的缓存层组合分层缓存
func NewLayeredCache(config LayeredCacheConfig, layers ...Cache) (*LayeredCache, error) {
	if len(layers) == 0 {
		return nil, errs.NewError(ErrCacheConfig, "至少需要一个启用的缓存层")
	}
	return &LayeredCache{
		layers: layers,
		config: config,
		log:    logger.WithComponent("LayeredCache"),
	}, nil
}

// NewLayeredCacheFromConfig 按配置创建各层并组合
func NewLayeredCacheFromConfig(config LayeredCacheConfig) (*LayeredCache, error) {
	layers := make([]Cache, 0, len(config.Layers))
	for i, layerConfig := range config.Layers {
		if !layerConfig.Enabled {
			continue
		}
		layer, err := createCacheLayer(layerConfig)
		if err != nil {
			for _, l := range layers {
				_ = l.Close()
			}
			return nil, fmt.Errorf("创建缓存层 %d 失败: %w", i, err)
		}
		layers = append(layers, layer)
	}
	return NewLayeredCache(config, layers...)
}

// createCacheLayer 创建单个缓存层
func createCacheLayer(config LayerConfig) (Cache, error) {
	switch config.Type {
	case LayerMemory:
		return NewMemoryCache(MemoryCacheConfig{
			MaxSize:         config.MaxSize,
			DefaultTTL:      config.TTL,
			CleanupInterval: config.CleanupInterval,
		}), nil
	case LayerDisk:
		return NewBoltCache(BoltCacheConfig{Path: config.Path, DefaultTTL: config.TTL})
	case LayerRemote:
		return NewRedisCache(RedisCacheConfig{
			Addr:       config.Addr,
			Password:   config.Password,
			DB:         config.DB,
			KeyPrefix:  config.KeyPrefix,
			DefaultTTL: config.TTL,
		}), nil
	default:
		return nil, errs.NewError(ErrCacheConfig, fmt.Sprintf("不支持的缓存层类型: %s", config.Type))
	}
}

// Get 逐层查找，下层命中时按配置回填上层。
// 某一层出错只记录日志并继续查找下一层。
func (lc *LayeredCache) Get(ctx context.Context, key string) ([]byte, error) {
	for i, layer := range lc.layers {
		value, err := layer.Get(ctx, key)
		if err == nil {
			lc.mu.Lock()
			lc.stats.TotalHits++
			lc.mu.Unlock()
			if lc.config.PromoteEnabled && i > 0 {
				lc.promoteToUpperLayers(ctx, key, value, i)
			}
			return value, nil
		}
		if !IsMiss(err) {
			lc.log.WithError(err).WithField("layer", i).Warn("缓存层读取失败")
		}
	}

	lc.mu.Lock()
	lc.stats.TotalMisses++
	lc.mu.Unlock()
	return nil, newMiss(key)
}

// Set 写入第一层，写穿透模式下写入所有层
func (lc *LayeredCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if !lc.config.WriteThrough {
		return lc.layers[0].Set(ctx, key, value, ttl)
	}

	var lastErr error
	for i, layer := range lc.layers {
		if err := layer.Set(ctx, key, value, ttl); err != nil {
			lastErr = fmt.Errorf("缓存层 %d 写入失败: %w", i, err)
		}
	}
	if lastErr == nil {
		lc.mu.Lock()
		lc.stats.WriteThrough++
		lc.mu.Unlock()
	}
	return lastErr
}

// Delete 从所有层删除
func (lc *LayeredCache) Delete(ctx context.Context, key string) error {
	var lastErr error
	for i, layer := range lc.layers {
		if err := layer.Delete(ctx, key); err != nil {
			lastErr = fmt.Errorf("缓存层 %d 删除失败: %w", i, err)
		}
	}
	return lastErr
}

// Clear 清空所有层
func (lc *LayeredCache) Clear(ctx context.Context) error {
	var lastErr error
	for i, layer := range lc.layers {
		if err := layer.Clear(ctx); err != nil {
			lastErr = fmt.Errorf("缓存层 %d 清空失败: %w", i, err)
		}
	}

	lc.mu.Lock()
	lc.stats = LayeredCacheStats{}
	lc.mu.Unlock()
	return lastErr
}

// Stats 汇总统计，命中与未命中按分层缓存整体计算
func (lc *LayeredCache) Stats() CacheStats {
	var size, maxSize int64
	for _, layer := range lc.layers {
		s := layer.Stats()
		size += s.Size
		maxSize += s.MaxSize
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	return CacheStats{
		Size:      size,
		MaxSize:   maxSize,
		HitCount:  lc.stats.TotalHits,
		MissCount: lc.stats.TotalMisses,
		HitRate:   hitRate(lc.stats.TotalHits, lc.stats.TotalMisses),
	}
}

// GetLayerStats 获取各层统计信息
func (lc *LayeredCache) GetLayerStats() LayeredCacheStats {
	layerStats := make([]CacheStats, len(lc.layers))
	for i, layer := range lc.layers {
		layerStats[i] = layer.Stats()
	}

	lc.mu.Lock()
	defer lc.mu.Unlock()
	stats := lc.stats
	stats.LayerStats = layerStats
	return stats
}

// promoteToUpperLayers 将数据回填到命中层之上的各层，使用各层默认 TTL
func (lc *LayeredCache) promoteToUpperLayers(ctx context.Context, key string, value []byte, fromLayer int) {
	for i := fromLayer - 1; i >= 0; i-- {
		if err := lc.layers[i].Set(ctx, key, value, 0); err != nil {
			lc.log.WithError(err).WithField("layer", i).Debug("缓存回填失败")
			continue
		}
	}
	lc.mu.Lock()
	lc.stats.PromoteCount++
	lc.mu.Unlock()
}

// Close 关闭所有缓存层
func (lc *LayeredCache) Close() error {
	var lastErr error
	for i, layer := range lc.layers {
		if err := layer.Close(); err != nil {
			lastErr = fmt.Errorf("缓存层 %d 关闭失败: %w", i, err)
		}
	}
	return lastErr
}

// DefaultLayeredCacheConfig 默认分层缓存配置：内存 + 磁盘
func DefaultLayeredCacheConfig(diskPath string) LayeredCacheConfig {
	return LayeredCacheConfig{
		Layers: []LayerConfig{
			{Type: LayerMemory, Enabled: true, MaxSize: 1000, TTL: 5 * time.Minute, CleanupInterval: time.Minute},
			{Type: LayerDisk, Enabled: diskPath != "", TTL: 30 * time.Minute, Path: diskPath},
		},
		PromoteEnabled: true,
		WriteThrough:   true,
	}
}

var _ Cache = (*LayeredCache)(nil)
