package decorators

import (
	"fmt"
	"sort"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"tschart/pkg/provider"
)

// DecoratorType 装饰器类型枚举
type DecoratorType string

const (
	FrequencyControlType DecoratorType = "frequency_control"
	CircuitBreakerType   DecoratorType = "circuit_breaker"
)

// ConfigurableDecoratorChain 可配置的装饰器链
type ConfigurableDecoratorChain struct {
	decorators []DecoratorConfig
	factory    *DecoratorFactory
}

// DecoratorConfig 装饰器配置
type DecoratorConfig struct {
	Type     DecoratorType          `yaml:"type" mapstructure:"type"`
	Enabled  bool                   `yaml:"enabled" mapstructure:"enabled"`
	Priority int                    `yaml:"priority" mapstructure:"priority"` // 数值越小越先应用，越靠近基础提供商
	Config   map[string]interface{} `yaml:"config" mapstructure:"config"`
}

// ProviderDecoratorConfig 提供商装饰器完整配置
type ProviderDecoratorConfig struct {
	Decorators []DecoratorConfig `yaml:"decorators" mapstructure:"decorators"`
}

// NewConfigurableDecoratorChain 创建可配置装饰器链
func NewConfigurableDecoratorChain(factory *DecoratorFactory) *ConfigurableDecoratorChain {
	if factory == nil {
		factory = NewDecoratorFactory()
	}
	return &ConfigurableDecoratorChain{factory: factory}
}

// LoadFromViper 从 Viper 配置加载装饰器链配置
func (cdc *ConfigurableDecoratorChain) LoadFromViper(v *viper.Viper, configKey string) error {
	var config ProviderDecoratorConfig
	if err := v.UnmarshalKey(configKey, &config); err != nil {
		return fmt.Errorf("无法解析装饰器配置: %w", err)
	}
	cdc.decorators = config.Decorators
	return nil
}

// LoadFromConfig 从配置结构体加载装饰器链配置
func (cdc *ConfigurableDecoratorChain) LoadFromConfig(config ProviderDecoratorConfig) {
	cdc.decorators = config.Decorators
}

// AddDecorator 添加装饰器配置
func (cdc *ConfigurableDecoratorChain) AddDecorator(decoratorConfig DecoratorConfig) {
	cdc.decorators = append(cdc.decorators, decoratorConfig)
}

// Apply 将装饰器链应用到指定的提供商
func (cdc *ConfigurableDecoratorChain) Apply(base provider.DatapointsProvider) (provider.DatapointsProvider, error) {
	current := base
	for _, decoratorConfig := range cdc.getSortedEnabledDecorators() {
		decorated, err := cdc.factory.CreateDecorator(decoratorConfig.Type, current, decoratorConfig.Config)
		if err != nil {
			return nil, fmt.Errorf("无法创建装饰器 %s: %w", decoratorConfig.Type, err)
		}
		current = decorated
	}
	return current, nil
}

// getSortedEnabledDecorators 获取按优先级排序的已启用装饰器
func (cdc *ConfigurableDecoratorChain) getSortedEnabledDecorators() []DecoratorConfig {
	enabled := make([]DecoratorConfig, 0, len(cdc.decorators))
	for _, decorator := range cdc.decorators {
		if decorator.Enabled {
			enabled = append(enabled, decorator)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool { return enabled[i].Priority < enabled[j].Priority })
	return enabled
}

// GetAppliedDecorators 获取将要应用的装饰器列表
func (cdc *ConfigurableDecoratorChain) GetAppliedDecorators() []DecoratorType {
	sorted := cdc.getSortedEnabledDecorators()
	types := make([]DecoratorType, len(sorted))
	for i, decorator := range sorted {
		types[i] = decorator.Type
	}
	return types
}

// CreateDecorator 根据类型和配置创建装饰器
func (df *DecoratorFactory) CreateDecorator(decoratorType DecoratorType, base provider.DatapointsProvider, config map[string]interface{}) (provider.DatapointsProvider, error) {
	switch decoratorType {
	case FrequencyControlType:
		cfg, err := frequencyControlConfigFromMap(config)
		if err != nil {
			return nil, err
		}
		return NewFrequencyControlProvider(base, cfg), nil
	case CircuitBreakerType:
		cfg, err := circuitBreakerConfigFromMap(config)
		if err != nil {
			return nil, err
		}
		return NewCircuitBreakerProvider(base, cfg), nil
	default:
		return nil, fmt.Errorf("不支持的装饰器类型: %s", decoratorType)
	}
}

// decodeConfig 把装饰器的 config 映射解码到已填充默认值的配置结构上。
// 时长接受 "30s" 形式的字符串，未出现的键保留默认值。
func decodeConfig(configMap map[string]interface{}, out interface{}) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(configMap)
}

func frequencyControlConfigFromMap(configMap map[string]interface{}) (*FrequencyControlConfig, error) {
	config := DefaultFrequencyControlConfig()
	if err := decodeConfig(configMap, config); err != nil {
		return nil, fmt.Errorf("频率控制配置无效: %w", err)
	}
	if config.MinIntervalMs > 0 {
		config.MinInterval = time.Duration(config.MinIntervalMs) * time.Millisecond
	}
	return config, nil
}

func circuitBreakerConfigFromMap(configMap map[string]interface{}) (*CircuitBreakerConfig, error) {
	config := DefaultCircuitBreakerConfig()
	if err := decodeConfig(configMap, config); err != nil {
		return nil, fmt.Errorf("熔断器配置无效: %w", err)
	}
	return config, nil
}

// CreateDecoratedProvider 便捷方法：使用配置创建完全装饰的提供商
func CreateDecoratedProvider(base provider.DatapointsProvider, config ProviderDecoratorConfig) (provider.DatapointsProvider, error) {
	chain := NewConfigurableDecoratorChain(nil)
	chain.LoadFromConfig(config)
	return chain.Apply(base)
}

// CreateDecoratedProviderFromViper 便捷方法：从 Viper 配置创建完全装饰的提供商
func CreateDecoratedProviderFromViper(base provider.DatapointsProvider, v *viper.Viper, configKey string) (provider.DatapointsProvider, error) {
	chain := NewConfigurableDecoratorChain(nil)
	if err := chain.LoadFromViper(v, configKey); err != nil {
		return nil, err
	}
	return chain.Apply(base)
}

// DefaultDecoratorConfig 默认装饰器配置：先频率控制，再熔断
func DefaultDecoratorConfig() ProviderDecoratorConfig {
	return ProviderDecoratorConfig{
		Decorators: []DecoratorConfig{
			{
				Type:     FrequencyControlType,
				Enabled:  true,
				Priority: 1,
				Config: map[string]interface{}{
					"min_interval_ms": 100,
					"max_retries":     3,
					"cooldown":        "60s",
					"enabled":         true,
				},
			},
			{
				Type:     CircuitBreakerType,
				Enabled:  true,
				Priority: 2,
				Config: map[string]interface{}{
					"name":          "DatapointsProvider",
					"max_requests":  5,
					"interval":      "60s",
					"timeout":       "30s",
					"ready_to_trip": 5,
					"enabled":       true,
				},
			},
		},
	}
}

// TestDecoratorConfig 测试环境装饰器配置，全部关闭
func TestDecoratorConfig() ProviderDecoratorConfig {
	return ProviderDecoratorConfig{
		Decorators: []DecoratorConfig{
			{Type: FrequencyControlType, Enabled: false, Priority: 1, Config: map[string]interface{}{"enabled": false}},
			{Type: CircuitBreakerType, Enabled: false, Priority: 2, Config: map[string]interface{}{"enabled": false}},
		},
	}
}
