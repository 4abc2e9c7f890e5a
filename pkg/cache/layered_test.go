package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// brokenCache 读取总是失败
type brokenCache struct{ *MemoryCache }

func (b *brokenCache) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}

func newLayers() (*MemoryCache, *MemoryCache) {
	return NewMemoryCache(MemoryCacheConfig{}), NewMemoryCache(MemoryCacheConfig{})
}

// TestLayeredCache_Promotion 测试下层命中回填上层
func TestLayeredCache_Promotion(t *testing.T) {
	l1, l2 := newLayers()
	lc, err := NewLayeredCache(LayeredCacheConfig{PromoteEnabled: true}, l1, l2)
	require.NoError(t, err)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "k", []byte("v"), 0))

	value, err := lc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(value))

	promoted, err := l1.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(promoted))

	stats := lc.GetLayerStats()
	assert.Equal(t, int64(1), stats.PromoteCount)
	assert.Equal(t, int64(1), stats.TotalHits)
	require.Len(t, stats.LayerStats, 2)
}

// TestLayeredCache_NoPromotion 测试关闭回填
func TestLayeredCache_NoPromotion(t *testing.T) {
	l1, l2 := newLayers()
	lc, err := NewLayeredCache(LayeredCacheConfig{}, l1, l2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "k", []byte("v"), 0))
	_, err = lc.Get(ctx, "k")
	require.NoError(t, err)

	_, err = l1.Get(ctx, "k")
	assert.True(t, IsMiss(err))
}

// TestLayeredCache_WriteModes 测试写穿透与只写首层
func TestLayeredCache_WriteModes(t *testing.T) {
	ctx := context.Background()

	l1, l2 := newLayers()
	lc, err := NewLayeredCache(LayeredCacheConfig{WriteThrough: true}, l1, l2)
	require.NoError(t, err)
	require.NoError(t, lc.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, int64(1), l1.Stats().Size)
	assert.Equal(t, int64(1), l2.Stats().Size)
	assert.Equal(t, int64(1), lc.GetLayerStats().WriteThrough)

	l1, l2 = newLayers()
	lc, err = NewLayeredCache(LayeredCacheConfig{}, l1, l2)
	require.NoError(t, err)
	require.NoError(t, lc.Set(ctx, "k", []byte("v"), 0))
	assert.Equal(t, int64(1), l1.Stats().Size)
	assert.Equal(t, int64(0), l2.Stats().Size)

	require.NoError(t, lc.Delete(ctx, "k"))
	assert.Equal(t, int64(0), lc.Stats().Size)
}

// TestLayeredCache_BrokenLayerSkipped 测试出错的层被跳过
func TestLayeredCache_BrokenLayerSkipped(t *testing.T) {
	broken := &brokenCache{MemoryCache: NewMemoryCache(MemoryCacheConfig{})}
	l2 := NewMemoryCache(MemoryCacheConfig{})
	lc, err := NewLayeredCache(LayeredCacheConfig{}, broken, l2)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l2.Set(ctx, "k", []byte("v"), 0))
	value, err := lc.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", string(value))

	_, err = lc.Get(ctx, "other")
	assert.True(t, IsMiss(err))
	stats := lc.Stats()
	assert.Equal(t, int64(1), stats.HitCount)
	assert.Equal(t, int64(1), stats.MissCount)
}

// TestLayeredCache_FromConfig 测试按配置创建内存加磁盘两层
func TestLayeredCache_FromConfig(t *testing.T) {
	config := DefaultLayeredCacheConfig(filepath.Join(t.TempDir(), "layer.db"))
	lc, err := NewLayeredCacheFromConfig(config)
	require.NoError(t, err)
	defer lc.Close()
	ctx := context.Background()

	require.NoError(t, lc.Set(ctx, "k", []byte("v"), time.Minute))
	stats := lc.GetLayerStats()
	require.Len(t, stats.LayerStats, 2)
	assert.Equal(t, int64(1), stats.LayerStats[0].Size)
	assert.Equal(t, int64(1), stats.LayerStats[1].Size)

	require.NoError(t, lc.Clear(ctx))
	assert.Equal(t, int64(0), lc.Stats().Size)
}

// TestLayeredCache_Errors 测试配置错误
func TestLayeredCache_Errors(t *testing.T) {
	_, err := NewLayeredCache(LayeredCacheConfig{})
	assert.Error(t, err)

	_, err = NewLayeredCacheFromConfig(LayeredCacheConfig{Layers: []LayerConfig{{Type: "tape", Enabled: true}}})
	assert.Error(t, err)

	// 磁盘层未配置路径时默认配置只启用内存层
	lc, err := NewLayeredCacheFromConfig(DefaultLayeredCacheConfig(""))
	require.NoError(t, err)
	assert.Len(t, lc.GetLayerStats().LayerStats, 1)
}
