package cache

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	errs "tschart/pkg/error"
)

const defaultBoltBucket = "chart_cache"

// BoltCacheConfig 磁盘缓存配置
type BoltCacheConfig struct {
	Path       string        `mapstructure:"path"`
	Bucket     string        `mapstructure:"bucket"`
	DefaultTTL time.Duration `mapstructure:"ttl"`
	Timeout    time.Duration `mapstructure:"timeout"` // 打开数据库文件时等待文件锁的时间
}

// BoltCache 基于 bbolt 的磁盘缓存
// 值的前 8 字节为过期时间（UnixNano，大端序），其后为原始数据
type BoltCache struct {
	db         *bolt.DB
	bucket     []byte
	defaultTTL time.Duration
	now        func() time.Time

	mu          sync.Mutex
	hitCount    int64
	missCount   int64
	lastCleanup time.Time
}

// NewBoltCache 打开（或创建）数据库文件
func NewBoltCache(config BoltCacheConfig) (*BoltCache, error) {
	if config.Path == "" {
		return nil, errs.NewError(ErrCacheConfig, "bolt cache path is required")
	}
	if config.Bucket == "" {
		config.Bucket = defaultBoltBucket
	}
	if config.DefaultTTL <= 0 {
		config.DefaultTTL = 30 * time.Minute
	}
	if config.Timeout <= 0 {
		config.Timeout = time.Second
	}

	db, err := bolt.Open(config.Path, 0o600, &bolt.Options{Timeout: config.Timeout})
	if err != nil {
		return nil, errs.WrapError(ErrCacheBackend, "open bolt database", err).WithContext("path", config.Path)
	}

	bucket := []byte(config.Bucket)
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errs.WrapError(ErrCacheBackend, "create bolt bucket", err)
	}

	return &BoltCache{
		db:         db,
		bucket:     bucket,
		defaultTTL: config.DefaultTTL,
		now:        time.Now,
	}, nil
}

func encodeBoltValue(expire time.Time, value []byte) []byte {
	buf := make([]byte, 8+len(value))
	binary.BigEndian.PutUint64(buf, uint64(expire.UnixNano()))
	copy(buf[8:], value)
	return buf
}

func decodeBoltValue(raw []byte) (time.Time, []byte, bool) {
	if len(raw) < 8 {
		return time.Time{}, nil, false
	}
	expire := time.Unix(0, int64(binary.BigEndian.Uint64(raw[:8])))
	return expire, raw[8:], true
}

// Get 获取缓存值，过期或损坏的条目视为未命中并删除
func (bc *BoltCache) Get(ctx context.Context, key string) ([]byte, error) {
	var (
		value []byte
		stale bool
	)
	err := bc.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bc.bucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		expire, data, ok := decodeBoltValue(raw)
		if !ok || !expire.After(bc.now()) {
			stale = true
			return nil
		}
		// bbolt 返回的切片只在事务内有效
		value = append([]byte(nil), data...)
		return nil
	})
	if err != nil {
		return nil, errs.WrapError(ErrCacheBackend, "bolt read", err)
	}

	if stale {
		_ = bc.Delete(ctx, key)
	}

	bc.mu.Lock()
	defer bc.mu.Unlock()
	if value == nil {
		bc.missCount++
		return nil, newMiss(key)
	}
	bc.hitCount++
	return value, nil
}

// Set 写入缓存值
func (bc *BoltCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = bc.defaultTTL
	}
	raw := encodeBoltValue(bc.now().Add(ttl), value)
	err := bc.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bc.bucket).Put([]byte(key), raw)
	})
	if err != nil {
		return errs.WrapError(ErrCacheBackend, "bolt write", err)
	}
	return nil
}

// Delete 删除缓存值
func (bc *BoltCache) Delete(ctx context.Context, key string) error {
	err := bc.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bc.bucket).Delete([]byte(key))
	})
	if err != nil {
		return errs.WrapError(ErrCacheBackend, "bolt delete", err)
	}
	return nil
}

// Clear 删除并重建桶
func (bc *BoltCache) Clear(ctx context.Context) error {
	err := bc.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bc.bucket); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(bc.bucket)
		return err
	})
	if err != nil {
		return errs.WrapError(ErrCacheBackend, "bolt clear", err)
	}

	bc.mu.Lock()
	bc.hitCount, bc.missCount = 0, 0
	bc.mu.Unlock()
	return nil
}

// Purge 删除所有过期条目，返回删除数量
func (bc *BoltCache) Purge(ctx context.Context) (int, error) {
	now := bc.now()
	removed := 0
	err := bc.db.Update(func(tx *bolt.Tx) error {
		c := tx.Bucket(bc.bucket).Cursor()
		for k, v := c.First(); k != nil; {
			expire, _, ok := decodeBoltValue(v)
			if !ok || !expire.After(now) {
				if err := c.Delete(); err != nil {
					return err
				}
				removed++
				// 删除后游标停留在下一个元素之前
				k, v = c.Seek(k)
				continue
			}
			k, v = c.Next()
		}
		return nil
	})
	if err != nil {
		return removed, errs.WrapError(ErrCacheBackend, "bolt purge", err)
	}

	bc.mu.Lock()
	bc.lastCleanup = now
	bc.mu.Unlock()
	return removed, nil
}

// Stats 获取统计信息，Size 包含尚未清理的过期条目
func (bc *BoltCache) Stats() CacheStats {
	var size int64
	_ = bc.db.View(func(tx *bolt.Tx) error {
		size = int64(tx.Bucket(bc.bucket).Stats().KeyN)
		return nil
	})

	bc.mu.Lock()
	defer bc.mu.Unlock()
	return CacheStats{
		Size:        size,
		HitCount:    bc.hitCount,
		MissCount:   bc.missCount,
		HitRate:     hitRate(bc.hitCount, bc.missCount),
		TTL:         bc.defaultTTL,
		LastCleanup: bc.lastCleanup,
	}
}

// Close 关闭数据库
func (bc *BoltCache) Close() error {
	return bc.db.Close()
}

var _ Cache = (*BoltCache)(nil)
