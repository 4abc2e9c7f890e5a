package cache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	errs "tschart/pkg/error"
)

// RedisCacheConfig 远程缓存配置
type RedisCacheConfig struct {
	Addr        string        `mapstructure:"addr"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	KeyPrefix   string        `mapstructure:"key_prefix"`
	DefaultTTL  time.Duration `mapstructure:"ttl"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// RedisCache 基于 go-redis 的远程缓存，所有键带统一前缀
type RedisCache struct {
	client     redis.UniversalClient
	prefix     string
	defaultTTL time.Duration
	ownsClient bool

	mu        sync.Mutex
	hitCount  int64
	missCount int64
}

// NewRedisCache 创建连接到指定地址的远程缓存
func NewRedisCache(config RedisCacheConfig) *RedisCache {
	if config.Addr == "" {
		config.Addr = "localhost:6379"
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:        config.Addr,
		Password:    config.Password,
		DB:          config.DB,
		DialTimeout: config.DialTimeout,
	})
	c := NewRedisCacheWithClient(client, config)
	c.ownsClient = true
	return c
}

// NewRedisCacheWithClient 使用已有客户端创建远程缓存，Close 不会关闭该客户端
func NewRedisCacheWithClient(client redis.UniversalClient, config RedisCacheConfig) *RedisCache {
	if config.KeyPrefix == "" {
		config.KeyPrefix = "tschart:"
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = time.Hour
	}
	return &RedisCache{
		client:     client,
		prefix:     config.KeyPrefix,
		defaultTTL: config.DefaultTTL,
	}
}

func (rc *RedisCache) key(key string) string {
	return rc.prefix + key
}

// Ping 检查连接状态
func (rc *RedisCache) Ping(ctx context.Context) error {
	if err := rc.client.Ping(ctx).Err(); err != nil {
		return errs.WrapError(ErrCacheBackend, "redis ping", err)
	}
	return nil
}

// Get 获取缓存值
func (rc *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := rc.client.Get(ctx, rc.key(key)).Bytes()

	rc.mu.Lock()
	defer rc.mu.Unlock()
	switch {
	case errors.Is(err, redis.Nil):
		rc.missCount++
		return nil, newMiss(key)
	case err != nil:
		return nil, errs.WrapError(ErrCacheBackend, "redis get", err).WithContext("key", key)
	}
	rc.hitCount++
	return value, nil
}

// Set 写入缓存值
func (rc *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = rc.defaultTTL
	}
	if err := rc.client.Set(ctx, rc.key(key), value, ttl).Err(); err != nil {
		return errs.WrapError(ErrCacheBackend, "redis set", err).WithContext("key", key)
	}
	return nil
}

// Delete 删除缓存值
func (rc *RedisCache) Delete(ctx context.Context, key string) error {
	if err := rc.client.Del(ctx, rc.key(key)).Err(); err != nil {
		return errs.WrapError(ErrCacheBackend, "redis del", err).WithContext("key", key)
	}
	return nil
}

// Clear 删除带前缀的全部键
func (rc *RedisCache) Clear(ctx context.Context) error {
	keys, err := rc.scan(ctx)
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := rc.client.Del(ctx, keys...).Err(); err != nil {
			return errs.WrapError(ErrCacheBackend, "redis del", err)
		}
	}

	rc.mu.Lock()
	rc.hitCount, rc.missCount = 0, 0
	rc.mu.Unlock()
	return nil
}

func (rc *RedisCache) scan(ctx context.Context) ([]string, error) {
	var keys []string
	iter := rc.client.Scan(ctx, 0, rc.prefix+"*", 500).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errs.WrapError(ErrCacheBackend, "redis scan", err)
	}
	return keys, nil
}

// Stats 获取统计信息，Size 为带前缀的键数量
func (rc *RedisCache) Stats() CacheStats {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	keys, _ := rc.scan(ctx)

	rc.mu.Lock()
	defer rc.mu.Unlock()
	return CacheStats{
		Size:      int64(len(keys)),
		HitCount:  rc.hitCount,
		MissCount: rc.missCount,
		HitRate:   hitRate(rc.hitCount, rc.missCount),
		TTL:       rc.defaultTTL,
	}
}

// Close 关闭自己创建的客户端
func (rc *RedisCache) Close() error {
	if rc.ownsClient {
		return rc.client.Close()
	}
	return nil
}

var _ Cache = (*RedisCache)(nil)
