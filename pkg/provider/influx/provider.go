package influx

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"tschart/pkg/core"
	errs "tschart/pkg/error"
	"tschart/pkg/logger"
)

const (
	// ErrQuery 表示 Flux 查询失败。
	ErrQuery errs.ErrorCode = "INFLUX_QUERY"
	// ErrUnsupported 表示请求了不支持的聚合或粒度。
	ErrUnsupported errs.ErrorCode = "INFLUX_UNSUPPORTED"
)

// Config InfluxDB 提供商配置
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
	Timeout     time.Duration `mapstructure:"timeout"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		URL:         "http://localhost:8086",
		Bucket:      "timeseries",
		Measurement: "datapoints",
		SeriesTag:   "series",
		Field:       "value",
		UnitTag:     "unit",
		StepTag:     "is_step",
		Timeout:     30 * time.Second,
	}
}

// Row Flux 结果中的一行
type Row struct {
	Time  time.Time
	Value interface{}
	Tags  map[string]interface{}
}

// RowQuerier 执行 Flux 查询并返回所有行
type RowQuerier interface {
	QueryRows(ctx context.Context, flux string) ([]Row, error)
}

// queryAPIRows 基于 influxdb2 QueryAPI 的实现
type queryAPIRows struct {
	queryAPI api.QueryAPI
}

func (q queryAPIRows) QueryRows(ctx context.Context, flux string) ([]Row, error) {
	result, err := q.queryAPI.Query(ctx, flux)
	if err != nil {
		return nil, err
	}
	defer result.Close()

	var rows []Row
	for result.Next() {
		record := result.Record()
		rows = append(rows, Row{Time: record.Time(), Value: record.Value(), Tags: record.Values()})
	}
	if result.Err() != nil {
		return nil, result.Err()
	}
	return rows, nil
}

// Provider InfluxDB 时间序列数据点提供商
// 每个序列是 measurement 中以 series 标签区分的一个字段
type Provider struct {
	client  influxdb2.Client
	rows    RowQuerier
	builder queryBuilder
	cfg     Config
	log     *logrus.Entry
}

// NewProvider 连接 InfluxDB 并创建提供商
func NewProvider(cfg Config) (*Provider, error) {
	cfg = withDefaults(cfg)
	if cfg.Org == "" {
		return nil, errs.NewError(ErrQuery, "influxdb org is required")
	}
	options := influxdb2.DefaultOptions().SetHTTPRequestTimeout(uint(cfg.Timeout / time.Second))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, options)

	p := NewProviderWithQuerier(cfg, queryAPIRows{queryAPI: client.QueryAPI(cfg.Org)})
	p.client = client
	return p, nil
}

// NewProviderWithQuerier 使用自定义查询器创建提供商
func NewProviderWithQuerier(cfg Config, rows RowQuerier) *Provider {
	cfg = withDefaults(cfg)
	return &Provider{
		rows: rows,
		builder: queryBuilder{
			bucket:      cfg.Bucket,
			measurement: cfg.Measurement,
			seriesTag:   cfg.SeriesTag,
			field:       cfg.Field,
		},
		cfg: cfg,
		log: logger.WithComponent("InfluxProvider"),
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
	if cfg.Timeout <= 0 {
		cfg.Timeout = d.Timeout
	}
	return cfg
}

// Name 返回提供商名称
func (p *Provider) Name() string {
	return "influxdb"
}

// IsHealthy 通过 ping 检查服务状态
func (p *Provider) IsHealthy() bool {
	if p.client == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok, err := p.client.Ping(ctx)
	return err == nil && ok
}

// GetRateLimit InfluxDB 不限速
func (p *Provider) GetRateLimit() time.Duration {
	return 0
}

// Close 关闭客户端
func (p *Provider) Close() error {
	if p.client != nil {
		p.client.Close()
	}
	return nil
}

// RetrieveDatapoints 检索数据点
func (p *Provider) RetrieveDatapoints(ctx context.Context, req core.DatapointsRequest) ([]core.DatapointsResult, error) {
	results := make([]core.DatapointsResult, 0, len(req.Items))
	for _, item := range req.Items {
		id := item.Identifier()

		var (
			dps []core.TimeseriesDatapoint
			err error
		)
		if req.IsAggregate() {
			dps, err = p.retrieveAggregates(ctx, id, req)
		} else {
			dps, err = p.retrieveRaw(ctx, id, req)
		}
		if err != nil {
			return nil, err
		}

		results = append(results, core.DatapointsResult{
			ID:         item.ID,
			ExternalID: item.ExternalID,
			IsString:   len(dps) > 0 && dps[0].Value != nil && dps[0].Value.IsStr,
			Datapoints: dps,
		})
	}
	return results, nil
}

func (p *Provider) retrieveRaw(ctx context.Context, id core.TimeseriesIdentifier, req core.DatapointsRequest) ([]core.TimeseriesDatapoint, error) {
	rows, err := p.query(ctx, p.builder.raw(id, req.Start, req.End, req.Limit))
	if err != nil {
		return nil, err
	}

	dps := make([]core.TimeseriesDatapoint, 0, len(rows))
	for _, row := range rows {
		value, ok := toValue(row.Value)
		if !ok {
			continue
		}
		dps = append(dps, core.TimeseriesDatapoint{Timestamp: row.Time.UnixMilli(), Value: &value})
	}
	return dps, nil
}

// retrieveAggregates 每个聚合字段一次窗口查询，再按时间戳合并
func (p *Provider) retrieveAggregates(ctx context.Context, id core.TimeseriesIdentifier, req core.DatapointsRequest) ([]core.TimeseriesDatapoint, error) {
	every, err := windowEvery(req.Granularity)
	if err != nil {
		return nil, errs.WrapError(ErrUnsupported, "invalid granularity", err)
	}

	merged := make(map[int64]*core.TimeseriesDatapoint)
	for _, agg := range req.Aggregates {
		fn, ok := aggregateFns[agg]
		if !ok {
			return nil, errs.NewError(ErrUnsupported, fmt.Sprintf("aggregate %q is not supported", agg))
		}
		rows, err := p.query(ctx, p.builder.aggregate(id, req.Start, req.End, every, fn, req.Limit))
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			f, ok := toFloat(row.Value)
			if !ok {
				continue
			}
			ts := row.Time.UnixMilli()
			dp, exists := merged[ts]
			if !exists {
				dp = &core.TimeseriesDatapoint{Timestamp: ts}
				merged[ts] = dp
			}
			setAggregate(dp, agg, f)
		}
	}

	dps := make([]core.TimeseriesDatapoint, 0, len(merged))
	for _, dp := range merged {
		dps = append(dps, *dp)
	}
	sort.Slice(dps, func(i, j int) bool { return dps[i].Timestamp < dps[j].Timestamp })
	if req.Limit > 0 && len(dps) > req.Limit {
		dps = dps[:req.Limit]
	}
	return dps, nil
}

// RetrieveSummary 查询区间内点数，并从最后一个点读取单位、阶梯标志与取值类型
func (p *Provider) RetrieveSummary(ctx context.Context, query core.SummaryQuery) (core.SeriesSummary, error) {
	summary := core.SeriesSummary{ID: query.Identifier.ID, ExternalID: query.Identifier.ExternalID}

	rows, err := p.query(ctx, p.builder.count(query.Identifier, query.Start, query.End))
	if err != nil {
		return core.SeriesSummary{}, err
	}
	for _, row := range rows {
		if f, ok := toFloat(row.Value); ok {
			summary.Count += int64(f)
		}
	}

	rows, err = p.query(ctx, p.builder.last(query.Identifier, query.Start, query.End))
	if err != nil {
		return core.SeriesSummary{}, err
	}
	if len(rows) > 0 {
		last := rows[len(rows)-1]
		_, summary.IsString = last.Value.(string)
		if unit, ok := last.Tags[p.cfg.UnitTag].(string); ok {
			summary.Unit = unit
		}
		if step, ok := last.Tags[p.cfg.StepTag].(string); ok {
			summary.IsStep, _ = strconv.ParseBool(step)
		}
	}
	return summary, nil
}

func (p *Provider) query(ctx context.Context, flux string) ([]Row, error) {
	p.log.Debugf("flux query:\n%s", flux)
	rows, err := p.rows.QueryRows(ctx, flux)
	if err != nil {
		return nil, errs.WrapError(ErrQuery, "flux query failed", err)
	}
	return rows, nil
}

func toValue(v interface{}) (core.Value, bool) {
	if s, ok := v.(string); ok {
		return core.StringValue(s), true
	}
	if f, ok := toFloat(v); ok {
		return core.NumberValue(f), true
	}
	return core.Value{}, false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func setAggregate(dp *core.TimeseriesDatapoint, agg string, f float64) {
	switch agg {
	case "average":
		dp.Average = core.Float64(f)
	case "min":
		dp.Min = core.Float64(f)
	case "max":
		dp.Max = core.Float64(f)
	case "count":
		dp.Count = core.Float64(f)
	case "sum":
		dp.Sum = core.Float64(f)
	}
}
