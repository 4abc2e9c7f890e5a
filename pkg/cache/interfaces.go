// Package cache 提供数据点检索结果的缓存：内存、bbolt 磁盘、redis 远程以及分层组合。
package cache

import (
	"context"
	"time"
)

// Cache 字节缓存接口，所有实现都遵循此接口。
// 未命中时返回带 ErrCacheMiss 代码的错误，可用 IsMiss 判断。
type Cache interface {
	// Get 从缓存中获取一个值。
	Get(ctx context.Context, key string) ([]byte, error)
	// Set 向缓存中设置一个值，ttl <= 0 时使用实现的默认 TTL。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete 从缓存中删除一个值。
	Delete(ctx context.Context, key string) error
	// Clear 清空所有缓存条目。
	Clear(ctx context.Context) error
	// Stats 获取缓存的统计信息。
	Stats() CacheStats
	// Close 释放资源。
	Close() error
}

// CacheStats 包含了缓存的统计信息。
type CacheStats struct {
	Size        int64         `json:"size"`         // 当前缓存中的条目数
	MaxSize     int64         `json:"max_size"`     // 缓存最大容量，0 表示不限
	HitCount    int64         `json:"hit_count"`    // 命中次数
	MissCount   int64         `json:"miss_count"`   // 未命中次数
	HitRate     float64       `json:"hit_rate"`     // 命中率
	TTL         time.Duration `json:"ttl"`          // 默认的生存时间
	LastCleanup time.Time     `json:"last_cleanup"` // 最后一次清理过期条目的时间
}

func hitRate(hits, misses int64) float64 {
	if total := hits + misses; total > 0 {
		return float64(hits) / float64(total)
	}
	return 0
}
