package cache

import (
	errs "tschart/pkg/error"
)

const (
	// ErrCacheMiss 表示在缓存中未找到请求的条目。
	ErrCacheMiss errs.ErrorCode = "CACHE_MISS"
	// ErrCacheTimeout 表示缓存操作超时。
	ErrCacheTimeout errs.ErrorCode = "CACHE_TIMEOUT"
	// ErrCacheCorrupted 表示缓存数据已损坏或无法解码。
	ErrCacheCorrupted errs.ErrorCode = "CACHE_CORRUPTED"
	// ErrCacheBackend 表示底层存储（bbolt、redis）出错。
	ErrCacheBackend errs.ErrorCode = "CACHE_BACKEND"
	// ErrCacheConfig 表示缓存配置无效。
	ErrCacheConfig errs.ErrorCode = "CACHE_CONFIG"
)

func newMiss(key string) error {
	return errs.NewError(ErrCacheMiss, "cache entry not found").WithContext("key", key)
}

// IsMiss 判断错误是否为缓存未命中
func IsMiss(err error) bool {
	return errs.HasCode(err, ErrCacheMiss)
}
