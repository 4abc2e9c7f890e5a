package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"tschart/pkg/cache"
	"tschart/pkg/chart"
	"tschart/pkg/core"
	"tschart/pkg/export"
	"tschart/pkg/logger"
	"tschart/pkg/provider/cdf"
	"tschart/pkg/provider/decorators"
	"tschart/pkg/provider/influx"
)

// EnvPrefix 环境变量前缀，例如 TSCHART_PROVIDER_CDF_TOKEN
const EnvPrefix = "TSCHART"

// 提供商类型
const (
	ProviderCDF    = "cdf"
	ProviderInflux = "influxdb"
)

// Config 主配置结构
type Config struct {
	// 数据点提供商配置
	Provider ProviderConfig `mapstructure:"provider"`

	// 取数管线配置
	Fetch chart.Settings `mapstructure:"fetch"`

	// 提供商装饰器链
	Decorators []decorators.DecoratorConfig `mapstructure:"decorators"`

	// 缓存配置
	Cache CacheConfig `mapstructure:"cache"`

	Server    ServerConfig    `mapstructure:"server"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Export    export.Config   `mapstructure:"export"`

	// 日志配置
	Logger logger.Config `mapstructure:"logger"`
}

// ProviderConfig 数据提供商配置
type ProviderConfig struct {
	Type   string        `mapstructure:"type"` // cdf 或 influxdb
	CDF    cdf.Config    `mapstructure:"cdf"`
	Influx influx.Config `mapstructure:"influxdb"`
}

// CacheConfig 缓存配置
type CacheConfig struct {
	Enabled        bool                       `mapstructure:"enabled"`
	Layers         []cache.LayerConfig        `mapstructure:"layers"`
	PromoteEnabled bool                       `mapstructure:"promote_enabled"`
	WriteThrough   bool                       `mapstructure:"write_through"`
	Provider       cache.CachedProviderConfig `mapstructure:"provider"`
}

// Layered 转换为分层缓存配置
func (c CacheConfig) Layered() cache.LayeredCacheConfig {
	return cache.LayeredCacheConfig{
		Layers:         c.Layers,
		PromoteEnabled: c.PromoteEnabled,
		WriteThrough:   c.WriteThrough,
	}
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	Mode            string        `mapstructure:"mode"` // gin 运行模式: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// SchedulerConfig 预取任务配置
type SchedulerConfig struct {
	JobsFile string `mapstructure:"jobs_file"`
}

// Default 返回默认配置
func Default() *Config {
	influxConfig := influx.DefaultConfig()
	return &Config{
		Provider: ProviderConfig{
			Type:   ProviderCDF,
			CDF:    cdf.DefaultConfig(),
			Influx: influxConfig,
		},
		Fetch:      chart.DefaultSettings(),
		Decorators: decorators.DefaultDecoratorConfig().Decorators,
		Cache: CacheConfig{
			Enabled:        true,
			Layers:         cache.DefaultLayeredCacheConfig("").Layers,
			PromoteEnabled: true,
			WriteThrough:   true,
			Provider:       cache.DefaultCachedProviderConfig(),
		},
		Server: ServerConfig{
			Addr:            ":8080",
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Scheduler: SchedulerConfig{
			JobsFile: "config/jobs.yaml",
		},
		Export: export.DefaultConfig(),
		Logger: logger.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	switch c.Provider.Type {
	case ProviderCDF:
		if c.Provider.CDF.BaseURL == "" {
			return errors.New("provider.cdf.base_url cannot be empty")
		}
		if c.Provider.CDF.Project == "" {
			return errors.New("provider.cdf.project cannot be empty")
		}
		if c.Provider.CDF.MaxRetries < 0 {
			return errors.New("provider.cdf.max_retries cannot be negative")
		}
		if c.Provider.CDF.RateLimit < 0 {
			return errors.New("provider.cdf.rate_limit cannot be negative")
		}
	case ProviderInflux:
		if c.Provider.Influx.URL == "" {
			return errors.New("provider.influxdb.url cannot be empty")
		}
		if c.Provider.Influx.Org == "" {
			return errors.New("provider.influxdb.org cannot be empty")
		}
		if c.Provider.Influx.Bucket == "" {
			return errors.New("provider.influxdb.bucket cannot be empty")
		}
	default:
		return fmt.Errorf("unknown provider type %q", c.Provider.Type)
	}

	if _, err := core.ParseDataFetchMode(string(c.Fetch.Mode)); err != nil {
		return fmt.Errorf("fetch.mode: %w", err)
	}
	if c.Fetch.RawDatapointsLimit < 0 {
		return errors.New("fetch.raw_datapoints_limit cannot be negative")
	}
	if c.Fetch.DefaultNumberOfPoints < 0 {
		return errors.New("fetch.default_number_of_points cannot be negative")
	}
	if c.Fetch.Chunking.MaxRawPerRequest <= 0 || c.Fetch.Chunking.MaxAggregatePerRequest <= 0 {
		return errors.New("fetch.chunking limits must be positive")
	}

	for _, d := range c.Decorators {
		if d.Type != decorators.FrequencyControlType && d.Type != decorators.CircuitBreakerType {
			return fmt.Errorf("unknown decorator type %q", d.Type)
		}
	}

	if c.Cache.Enabled {
		for i, layer := range c.Cache.Layers {
			switch layer.Type {
			case cache.LayerMemory, cache.LayerDisk, cache.LayerRemote:
			default:
				return fmt.Errorf("cache.layers[%d]: unknown type %q", i, layer.Type)
			}
			if layer.Enabled && layer.Type == cache.LayerDisk && layer.Path == "" {
				return fmt.Errorf("cache.layers[%d]: disk layer requires path", i)
			}
			if layer.Enabled && layer.Type == cache.LayerRemote && layer.Addr == "" {
				return fmt.Errorf("cache.layers[%d]: remote layer requires addr", i)
			}
		}
	}

	if c.Server.Addr == "" {
		return errors.New("server.addr cannot be empty")
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	return nil
}

// DecoratorConfig 返回装饰器链配置
func (c *Config) DecoratorConfig() decorators.ProviderDecoratorConfig {
	return decorators.ProviderDecoratorConfig{Decorators: c.Decorators}
}

// Load 从 YAML 文件与 TSCHART_ 前缀的环境变量加载配置。
// path 为空时在 ./config 与当前目录查找 tschart.yaml，找不到则只用默认值与环境变量。
func Load(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tschart")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return FromViper(v)
}

// FromViper 在默认配置之上叠加 viper 中的设置
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := Default()
	setDefaults(v, cfg)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 列表整体替换，不与默认元素逐项合并
	if v.IsSet("decorators") {
		cfg.Decorators = nil
	}
	if v.IsSet("cache.layers") {
		cfg.Cache.Layers = nil
	}
	if v.IsSet("fetch.aggregates") {
		cfg.Fetch.Aggregates = nil
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// setDefaults 注册标量默认值，使 AutomaticEnv 能覆盖未出现在文件中的键
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("provider.type", cfg.Provider.Type)
	v.SetDefault("provider.cdf.base_url", cfg.Provider.CDF.BaseURL)
	v.SetDefault("provider.cdf.project", cfg.Provider.CDF.Project)
	v.SetDefault("provider.cdf.token", cfg.Provider.CDF.Token)
	v.SetDefault("provider.cdf.timeout", cfg.Provider.CDF.Timeout)
	v.SetDefault("provider.cdf.max_retries", cfg.Provider.CDF.MaxRetries)
	v.SetDefault("provider.cdf.retry_backoff", cfg.Provider.CDF.RetryBackoff)
	v.SetDefault("provider.cdf.rate_limit", cfg.Provider.CDF.RateLimit)
	v.SetDefault("provider.cdf.user_agent", cfg.Provider.CDF.UserAgent)
	v.SetDefault("provider.influxdb.url", cfg.Provider.Influx.URL)
	v.SetDefault("provider.influxdb.token", cfg.Provider.Influx.Token)
	v.SetDefault("provider.influxdb.org", cfg.Provider.Influx.Org)
	v.SetDefault("provider.influxdb.bucket", cfg.Provider.Influx.Bucket)
	v.SetDefault("provider.influxdb.measurement", cfg.Provider.Influx.Measurement)

	v.SetDefault("fetch.default_number_of_points", cfg.Fetch.DefaultNumberOfPoints)
	v.SetDefault("fetch.mode", string(cfg.Fetch.Mode))
	v.SetDefault("fetch.raw_datapoints_limit", cfg.Fetch.RawDatapointsLimit)
	v.SetDefault("fetch.chunking.max_raw_per_request", cfg.Fetch.Chunking.MaxRawPerRequest)
	v.SetDefault("fetch.chunking.max_aggregate_per_request", cfg.Fetch.Chunking.MaxAggregatePerRequest)
	v.SetDefault("fetch.chunking.stop_on_short_chunk", cfg.Fetch.Chunking.StopOnShortChunk)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.provider.ttl", cfg.Cache.Provider.TTL)
	v.SetDefault("cache.provider.open_range_ttl", cfg.Cache.Provider.OpenRangeTTL)
	v.SetDefault("cache.provider.load_timeout", cfg.Cache.Provider.LoadTimeout)

	v.SetDefault("server.addr", cfg.Server.Addr)
	v.SetDefault("server.mode", cfg.Server.Mode)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
	v.SetDefault("scheduler.jobs_file", cfg.Scheduler.JobsFile)

	v.SetDefault("export.url", cfg.Export.URL)
	v.SetDefault("export.token", cfg.Export.Token)
	v.SetDefault("export.org", cfg.Export.Org)
	v.SetDefault("export.bucket", cfg.Export.Bucket)

	v.SetDefault("logger.level", cfg.Logger.Level)
	v.SetDefault("logger.format", cfg.Logger.Format)
}

// SetProviderType 设置提供商类型
func (c *Config) SetProviderType(providerType string) *Config {
	c.Provider.Type = providerType
	return c
}

// SetFetchMode 设置默认取数模式
func (c *Config) SetFetchMode(mode core.DataFetchMode) *Config {
	c.Fetch.Mode = mode
	return c
}

// SetRawDatapointsLimit 设置原始点上限
func (c *Config) SetRawDatapointsLimit(limit int) *Config {
	c.Fetch.RawDatapointsLimit = limit
	return c
}

// SetServerAddr 设置监听地址
func (c *Config) SetServerAddr(addr string) *Config {
	c.Server.Addr = addr
	return c
}

// SetCacheEnabled 设置是否启用缓存
func (c *Config) SetCacheEnabled(enabled bool) *Config {
	c.Cache.Enabled = enabled
	return c
}

// SetLogLevel 设置日志级别
func (c *Config) SetLogLevel(level string) *Config {
	c.Logger.Level = level
	return c
}
