package cache

import (
	"context"
	"sync"
	"time"
)

// memoryEntry 内存缓存条目
type memoryEntry struct {
	value      []byte
	expireTime time.Time
	createTime time.Time
}

// MemoryCache 线程安全的内存缓存实现，容量满时淘汰创建时间最早的条目
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*memoryEntry
	maxSize    int64
	hitCount   int64
	missCount  int64
	defaultTTL time.Duration
	now        func() time.Time

	// 清理相关
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	closeOnce     sync.Once
	lastCleanup   time.Time
}

// MemoryCacheConfig 内存缓存配置
type MemoryCacheConfig struct {
	MaxSize         int64         `mapstructure:"max_size"`         // 最大条目数量，0 表示不限
	DefaultTTL      time.Duration `mapstructure:"ttl"`              // 默认TTL
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // 清理间隔，0 表示不启动清理协程
}

// NewMemoryCache 创建新的内存缓存
func NewMemoryCache(config MemoryCacheConfig) *MemoryCache {
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 5 * time.Minute
	}
	cache := &MemoryCache{
		entries:     make(map[string]*memoryEntry),
		maxSize:     config.MaxSize,
		defaultTTL:  config.DefaultTTL,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
		lastCleanup: time.Now(),
	}

	if config.CleanupInterval > 0 {
		cache.cleanupTicker = time.NewTicker(config.CleanupInterval)
		go cache.startCleanup()
	}
	return cache
}

// Get 获取缓存值，过期条目在读取时删除
func (mc *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	entry, exists := mc.entries[key]
	if exists && !entry.expireTime.After(mc.now()) {
		delete(mc.entries, key)
		exists = false
	}
	if !exists {
		mc.missCount++
		return nil, newMiss(key)
	}

	mc.hitCount++
	return entry.value, nil
}

// Set 设置缓存值
func (mc *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = mc.defaultTTL
	}
	now := mc.now()

	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.entries[key]; !exists && mc.maxSize > 0 && int64(len(mc.entries)) >= mc.maxSize {
		mc.evictOldest()
	}
	mc.entries[key] = &memoryEntry{
		value:      append([]byte(nil), value...),
		expireTime: now.Add(ttl),
		createTime: now,
	}
	return nil
}

// Delete 删除缓存值
func (mc *MemoryCache) Delete(ctx context.Context, key string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.entries, key)
	return nil
}

// Clear 清空缓存
func (mc *MemoryCache) Clear(ctx context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.entries = make(map[string]*memoryEntry)
	mc.hitCount = 0
	mc.missCount = 0
	return nil
}

// Stats 获取缓存统计信息
func (mc *MemoryCache) Stats() CacheStats {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	return CacheStats{
		Size:        int64(len(mc.entries)),
		MaxSize:     mc.maxSize,
		HitCount:    mc.hitCount,
		MissCount:   mc.missCount,
		HitRate:     hitRate(mc.hitCount, mc.missCount),
		TTL:         mc.defaultTTL,
		LastCleanup: mc.lastCleanup,
	}
}

// Close 停止清理协程
func (mc *MemoryCache) Close() error {
	mc.closeOnce.Do(func() {
		if mc.cleanupTicker != nil {
			mc.cleanupTicker.Stop()
		}
		close(mc.stopCleanup)
	})
	return nil
}

func (mc *MemoryCache) startCleanup() {
	for {
		select {
		case <-mc.cleanupTicker.C:
			mc.cleanup()
		case <-mc.stopCleanup:
			return
		}
	}
}

// cleanup 清理过期条目
func (mc *MemoryCache) cleanup() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	now := mc.now()
	for key, entry := range mc.entries {
		if !entry.expireTime.After(now) {
			delete(mc.entries, key)
		}
	}
	mc.lastCleanup = now
}

// evictOldest 淘汰创建时间最早的条目，调用方持有锁
func (mc *MemoryCache) evictOldest() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range mc.entries {
		if oldestKey == "" || entry.createTime.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.createTime
		}
	}
	if oldestKey != "" {
		delete(mc.entries, oldestKey)
	}
}

var _ Cache = (*MemoryCache)(nil)
