package decorators

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigurableDecoratorChain(t *testing.T) {
	t.Run("默认配置先频率控制后熔断", func(t *testing.T) {
		base := newFlakyProvider(0, nil)

		decorated, err := CreateDecoratedProvider(base, DefaultDecoratorConfig())
		require.NoError(t, err)

		cb, ok := decorated.(*CircuitBreakerProvider)
		require.True(t, ok, "顶层装饰器应该是熔断器，实际类型: %T", decorated)
		fc, ok := cb.GetBaseProvider().(*FrequencyControlProvider)
		require.True(t, ok, "第二层应该是频率控制，实际类型: %T", cb.GetBaseProvider())
		assert.Same(t, base, fc.GetBaseProvider())
		assert.Equal(t, 100*time.Millisecond, fc.GetRateLimit())
	})

	t.Run("测试配置不应用任何装饰器", func(t *testing.T) {
		base := newFlakyProvider(0, nil)

		decorated, err := CreateDecoratedProvider(base, TestDecoratorConfig())
		require.NoError(t, err)
		assert.Same(t, base, decorated)
	})

	t.Run("按优先级排序", func(t *testing.T) {
		chain := NewConfigurableDecoratorChain(nil)
		chain.AddDecorator(DecoratorConfig{Type: CircuitBreakerType, Enabled: true, Priority: 1})
		chain.AddDecorator(DecoratorConfig{Type: FrequencyControlType, Enabled: true, Priority: 5})
		chain.AddDecorator(DecoratorConfig{Type: FrequencyControlType, Enabled: false, Priority: 0})

		assert.Equal(t, []DecoratorType{CircuitBreakerType, FrequencyControlType}, chain.GetAppliedDecorators())

		decorated, err := chain.Apply(newFlakyProvider(0, nil))
		require.NoError(t, err)
		assert.Equal(t, "FrequencyControl(CircuitBreaker(flaky))", decorated.Name())
	})

	t.Run("未知装饰器类型返回错误", func(t *testing.T) {
		chain := NewConfigurableDecoratorChain(nil)
		chain.AddDecorator(DecoratorConfig{Type: "cache", Enabled: true})

		_, err := chain.Apply(newFlakyProvider(0, nil))
		assert.Error(t, err)
	})
}

// TestConfigurableDecoratorChain_FromViper 测试从 YAML 加载
func TestConfigurableDecoratorChain_FromViper(t *testing.T) {
	yaml := []byte(`
provider:
  decorators:
    - type: frequency_control
      enabled: true
      priority: 1
      config:
        min_interval: 5ms
        max_retries: 1
        retry_backoff: 1ms
    - type: circuit_breaker
      enabled: true
      priority: 2
      config:
        name: viper-breaker
        ready_to_trip: 3
        timeout: 10s
`)
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewReader(yaml)))

	base := newFlakyProvider(1, statusError(503))
	decorated, err := CreateDecoratedProviderFromViper(base, v, "provider")
	require.NoError(t, err)

	cb := decorated.(*CircuitBreakerProvider)
	config := cb.Status().Config
	assert.Equal(t, "viper-breaker", config.Name)
	assert.Equal(t, uint32(3), config.ReadyToTrip)
	assert.Equal(t, 10*time.Second, config.Timeout)

	fc := cb.GetBaseProvider().(*FrequencyControlProvider)
	assert.Equal(t, 5*time.Millisecond, fc.GetRateLimit())

	// 一次 503 由频率控制层重试吸收
	_, err = decorated.RetrieveDatapoints(context.Background(), dpRequest)
	require.NoError(t, err)
	assert.Equal(t, 2, base.Calls())
}

// TestConfigMapValues 测试配置值的类型转换
func TestDecoratorConfigFromMap(t *testing.T) {
	fc, err := frequencyControlConfigFromMap(map[string]interface{}{
		"min_interval_ms": 250,
		"max_retries":     float64(2),
		"cooldown":        "1m",
		"retry_backoff":   2 * time.Second,
		"unknown":         "ignored",
	})
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, fc.MinInterval)
	assert.Equal(t, 2, fc.MaxRetries)
	assert.Equal(t, time.Minute, fc.Cooldown)
	assert.Equal(t, 2*time.Second, fc.RetryBackoff)
	assert.True(t, fc.Enabled, "未配置的键保留默认值")

	cb, err := circuitBreakerConfigFromMap(map[string]interface{}{"ready_to_trip": "7", "enabled": false})
	require.NoError(t, err)
	assert.Equal(t, uint32(7), cb.ReadyToTrip)
	assert.False(t, cb.Enabled)
	assert.Equal(t, DefaultCircuitBreakerConfig().Name, cb.Name)

	_, err = circuitBreakerConfigFromMap(map[string]interface{}{"timeout": "soon"})
	assert.Error(t, err)

	_, err = CreateDecoratedProvider(newFlakyProvider(0, nil), ProviderDecoratorConfig{Decorators: []DecoratorConfig{
		{Type: FrequencyControlType, Enabled: true, Config: map[string]interface{}{"cooldown": "later"}},
	}})
	assert.Error(t, err)
}
