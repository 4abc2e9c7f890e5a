// Package export 把图表数据镜像写入外部存储
package export

import (
	"context"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"tschart/pkg/chart"
	"tschart/pkg/core"
	errs "tschart/pkg/error"
	"tschart/pkg/logger"
	"tschart/pkg/provider/influx"
)

const (
	// ErrWrite 表示写入 InfluxDB 失败。
	ErrWrite errs.ErrorCode = "EXPORT_WRITE"
	// ErrConfig 表示导出配置不完整。
	ErrConfig errs.ErrorCode = "EXPORT_CONFIG"
)

// Config 导出配置，默认布局与 influx 提供商读取的布局一致
type Config struct {
	URL         string        `mapstructure:"url"`
	Token       string        `mapstructure:"token"`
	Org         string        `mapstructure:"org"`
	Bucket      string        `mapstructure:"bucket"`
	Measurement string        `mapstructure:"measurement"`
	SeriesTag   string        `mapstructure:"series_tag"`
	Field       string        `mapstructure:"field"`
	UnitTag     string        `mapstructure:"unit_tag"`
	StepTag     string        `mapstructure:"step_tag"`
	BatchSize   int           `mapstructure:"batch_size"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	d := influx.DefaultConfig()
	return Config{
		URL:         d.URL,
		Bucket:      d.Bucket,
		Measurement: d.Measurement,
		SeriesTag:   d.SeriesTag,
		Field:       d.Field,
		UnitTag:     d.UnitTag,
		StepTag:     d.StepTag,
		BatchSize:   500,
		Timeout:     d.Timeout,
	}
}

// Sink 图表数据写入目标
type Sink interface {
	Write(ctx context.Context, result chart.ChartResult) (int, error)
	Close() error
}

// PointWriter 阻塞写入点，api.WriteAPIBlocking 满足此接口
type PointWriter interface {
	WritePoint(ctx context.Context, point ...*write.Point) error
}

// InfluxSink 把图表数据按点写入 InfluxDB
type InfluxSink struct {
	client influxdb2.Client
	writer PointWriter
	cfg    Config
	log    *logrus.Entry
}

// NewInfluxSink 连接 InfluxDB 并创建写入器
func NewInfluxSink(cfg Config) (*InfluxSink, error) {
	cfg = withDefaults(cfg)
	if cfg.Org == "" {
		return nil, errs.NewError(ErrConfig, "export org is required")
	}
	options := influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(cfg.Timeout / time.Second))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	s := NewInfluxSinkWithWriter(cfg, client.WriteAPIBlocking(cfg.Org, cfg.Bucket))
	s.client = client
	return s, nil
}

// NewInfluxSinkWithWriter 使用自定义写入器创建
func NewInfluxSinkWithWriter(cfg Config, writer PointWriter) *InfluxSink {
	return &InfluxSink{
		writer: writer,
		cfg:    withDefaults(cfg),
		log:    logger.WithComponent("InfluxSink"),
	}
}

func withDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.URL == "" {
		cfg.URL = d.URL
	}
	if cfg.Bucket == "" {
		cfg.Bucket = d.Bucket
	}
	if cfg.Measurement == "" {
		cfg.Measurement = d.Measurement
	}
	if cfg.SeriesTag == "" {
		cfg.SeriesTag = d.SeriesTag
	}
	if cfg.Field == "" {
		cfg.Field = d.Field
	}
	if cfg.UnitTag == "" {
		cfg.UnitTag = d.UnitTag
	}
	if cfg.StepTag == "" {
		cfg.StepTag = d.StepTag
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = d.BatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	return cfg
}

// Points 把图表数据转换为 InfluxDB 点，每个 X 一行
func (s *InfluxSink) Points(result chart.ChartResult) []*write.Point {
	data := result.Data
	points := make([]*write.Point, 0, data.Len())
	series := influx.SeriesKey(result.Timeseries)
	step := strconv.FormatBool(data.Interpolation == core.InterpolationStep)

	for i, ts := range data.X {
		p := influxdb2.NewPointWithMeasurement(s.cfg.Measurement).
			AddTag(s.cfg.SeriesTag, series).
			AddTag(s.cfg.StepTag, step).
			AddTag("mode", string(result.Metadata.DataFetchMode)).
			SetTime(time.UnixMilli(ts))
		if result.Metadata.Unit != "" {
			p.AddTag(s.cfg.UnitTag, result.Metadata.Unit)
		}

		y := data.Y[i]
		if y.IsStr {
			p.AddField(s.cfg.Field, y.Str)
		} else {
			p.AddField(s.cfg.Field, y.Num)
		}

		if i < len(data.CustomData) {
			addAggregates(p, data.CustomData[i])
		}
		points = append(points, p)
	}
	return points
}

func addAggregates(p *write.Point, dp core.TimeseriesDatapoint) {
	fields := []struct {
		name string
		v    *float64
	}{
		{"min", dp.Min},
		{"max", dp.Max},
		{"count", dp.Count},
		{"sum", dp.Sum},
	}
	for _, f := range fields {
		if f.v != nil {
			p.AddField(f.name, *f.v)
		}
	}
}

// Write 分批写入，返回写入的点数
func (s *InfluxSink) Write(ctx context.Context, result chart.ChartResult) (int, error) {
	points := s.Points(result)
	written := 0
	for start := 0; start < len(points); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(points) {
			end = len(points)
		}
		if err := s.writer.WritePoint(ctx, points[start:end]...); err != nil {
			return written, errs.WrapError(ErrWrite, "failed to write points", err).
				WithContext("series", result.Timeseries.String()).
				WithContext("written", written)
		}
		written = end
	}

	s.log.WithFields(logrus.Fields{
		"series": result.Timeseries.String(),
		"points": written,
	}).Debug("chart data exported")
	return written, nil
}

// Close 关闭客户端
func (s *InfluxSink) Close() error {
	if s.client != nil {
		s.client.Close()
	}
	return nil
}
