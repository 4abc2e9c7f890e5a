package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// TimeseriesIdentifier 时间序列标识，ID 与 ExternalID 二选一
type TimeseriesIdentifier struct {
	ID         int64  `json:"id,omitempty" mapstructure:"id"`                  // 内部数值 ID
	ExternalID string `json:"externalId,omitempty" mapstructure:"external_id"` // 外部字符串 ID
}

// ByID 通过内部 ID 构造标识
func ByID(id int64) TimeseriesIdentifier {
	return TimeseriesIdentifier{ID: id}
}

// ByExternalID 通过外部 ID 构造标识
func ByExternalID(externalID string) TimeseriesIdentifier {
	return TimeseriesIdentifier{ExternalID: externalID}
}

// Validate 校验恰好设置了一个标识
func (t TimeseriesIdentifier) Validate() error {
	hasID := t.ID != 0
	hasExt := t.ExternalID != ""
	switch {
	case hasID && hasExt:
		return fmt.Errorf("timeseries identifier must set exactly one of id or externalId")
	case !hasID && !hasExt:
		return fmt.Errorf("timeseries identifier is empty")
	}
	return nil
}

// String 返回 "id:42" 或 "externalId:foo"，用于日志和缓存键
func (t TimeseriesIdentifier) String() string {
	if t.ExternalID != "" {
		return "externalId:" + t.ExternalID
	}
	return "id:" + strconv.FormatInt(t.ID, 10)
}

// DateRange 时间范围，Start <= End
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange 创建时间范围
func NewDateRange(start, end time.Time) *DateRange {
	return &DateRange{Start: start, End: end}
}

// Validate 校验起止顺序
func (r DateRange) Validate() error {
	if r.End.Before(r.Start) {
		return fmt.Errorf("date range end %s is before start %s", r.End.Format(time.RFC3339), r.Start.Format(time.RFC3339))
	}
	return nil
}

// StartMillis 起始时间的毫秒时间戳
func (r DateRange) StartMillis() int64 { return r.Start.UnixMilli() }

// EndMillis 结束时间的毫秒时间戳
func (r DateRange) EndMillis() int64 { return r.End.UnixMilli() }

// FetchMode 实际使用的取数模式
type FetchMode string

const (
	FetchModeRaw       FetchMode = "raw"
	FetchModeAggregate FetchMode = "aggregate"
)

// Valid 判断取数模式是否合法
func (m FetchMode) Valid() bool {
	switch m {
	case FetchModeRaw, FetchModeAggregate:
		return true
	}
	return false
}

// DataFetchMode 调用方请求的取数模式，auto 表示由阈值决定
type DataFetchMode string

const (
	DataFetchModeRaw       DataFetchMode = "raw"
	DataFetchModeAggregate DataFetchMode = "aggregate"
	DataFetchModeAuto      DataFetchMode = "auto"
)

// ParseDataFetchMode 解析取数模式，空串视为 auto
func ParseDataFetchMode(s string) (DataFetchMode, error) {
	switch DataFetchMode(s) {
	case "", DataFetchModeAuto:
		return DataFetchModeAuto, nil
	case DataFetchModeRaw:
		return DataFetchModeRaw, nil
	case DataFetchModeAggregate:
		return DataFetchModeAggregate, nil
	}
	return "", fmt.Errorf("unknown data fetch mode %q", s)
}

// ChartMetadata 单个序列一次查询的图表元数据
type ChartMetadata struct {
	NumberOfPoints int       `json:"numberOfPoints"`
	DataFetchMode  FetchMode `json:"dataFetchMode"`
	IsStep         *bool     `json:"isStep,omitempty"`
	IsString       *bool     `json:"isString,omitempty"`
	Unit           string    `json:"unit,omitempty"`
}

// Value 数据点取值，数值或字符串
type Value struct {
	Num   float64 `cbor:"n,omitempty"`
	Str   string  `cbor:"s,omitempty"`
	IsStr bool    `cbor:"t,omitempty"`
}

// NumberValue 构造数值取值
func NumberValue(f float64) Value { return Value{Num: f} }

// StringValue 构造字符串取值
func StringValue(s string) Value { return Value{Str: s, IsStr: true} }

// String 返回取值的文本形式
func (v Value) String() string {
	if v.IsStr {
		return v.Str
	}
	return strconv.FormatFloat(v.Num, 'f', -1, 64)
}

// MarshalJSON 数值编码为 JSON 数字，字符串编码为 JSON 字符串
func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsStr {
		return json.Marshal(v.Str)
	}
	return json.Marshal(v.Num)
}

// UnmarshalJSON 接受 JSON 数字或字符串
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = StringValue(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("datapoint value must be number or string: %w", err)
	}
	*v = NumberValue(f)
	return nil
}

// TimeseriesDatapoint 原始数据点或聚合数据点
// 原始点只有 Value，聚合点只填充请求过的聚合字段
type TimeseriesDatapoint struct {
	Timestamp          int64    `json:"timestamp" cbor:"ts"`
	Value              *Value   `json:"value,omitempty" cbor:"v,omitempty"`
	Average            *float64 `json:"average,omitempty" cbor:"avg,omitempty"`
	Min                *float64 `json:"min,omitempty" cbor:"min,omitempty"`
	Max                *float64 `json:"max,omitempty" cbor:"max,omitempty"`
	Count              *float64 `json:"count,omitempty" cbor:"cnt,omitempty"`
	Sum                *float64 `json:"sum,omitempty" cbor:"sum,omitempty"`
	Interpolation      *float64 `json:"interpolation,omitempty" cbor:"ip,omitempty"`
	StepInterpolation  *float64 `json:"stepInterpolation,omitempty" cbor:"sip,omitempty"`
	ContinuousVariance *float64 `json:"continuousVariance,omitempty" cbor:"cv,omitempty"`
	DiscreteVariance   *float64 `json:"discreteVariance,omitempty" cbor:"dv,omitempty"`
	TotalVariation     *float64 `json:"totalVariation,omitempty" cbor:"tv,omitempty"`
}

// IsAggregate 没有 Value 且至少有一个聚合字段时为聚合点
func (d TimeseriesDatapoint) IsAggregate() bool {
	if d.Value != nil {
		return false
	}
	for _, f := range []*float64{d.Average, d.Min, d.Max, d.Count, d.Sum, d.Interpolation,
		d.StepInterpolation, d.ContinuousVariance, d.DiscreteVariance, d.TotalVariation} {
		if f != nil {
			return true
		}
	}
	return false
}

// Time 返回数据点时间
func (d TimeseriesDatapoint) Time() time.Time {
	return time.UnixMilli(d.Timestamp).UTC()
}

// RawPoint 构造数值原始点
func RawPoint(ts int64, v float64) TimeseriesDatapoint {
	val := NumberValue(v)
	return TimeseriesDatapoint{Timestamp: ts, Value: &val}
}

// StringPoint 构造字符串原始点
func StringPoint(ts int64, s string) TimeseriesDatapoint {
	val := StringValue(s)
	return TimeseriesDatapoint{Timestamp: ts, Value: &val}
}

// Float64 返回指针，便于构造聚合字段
func Float64(f float64) *float64 { return &f }

// Bool 返回指针
func Bool(b bool) *bool { return &b }

// Interpolation 图表插值提示
type Interpolation string

const (
	InterpolationNone Interpolation = ""
	InterpolationStep Interpolation = "step"
)

// ChartData 图表可直接消费的数据，X/Y/CustomData 等长且下标对齐
type ChartData struct {
	X             []int64               `json:"x"`
	Y             []Value               `json:"y"`
	CustomData    []TimeseriesDatapoint `json:"customData"`
	Interpolation Interpolation         `json:"interpolation,omitempty"`
}

// Len 返回点数
func (c ChartData) Len() int { return len(c.X) }

// DatapointsQueryItem 检索请求中的单个序列
type DatapointsQueryItem struct {
	ID         int64  `json:"id,omitempty" cbor:"id,omitempty"`
	ExternalID string `json:"externalId,omitempty" cbor:"xid,omitempty"`
}

// ItemFor 由标识构造请求项
func ItemFor(id TimeseriesIdentifier) DatapointsQueryItem {
	return DatapointsQueryItem{ID: id.ID, ExternalID: id.ExternalID}
}

// Identifier 请求项对应的序列标识
func (i DatapointsQueryItem) Identifier() TimeseriesIdentifier {
	return TimeseriesIdentifier{ID: i.ID, ExternalID: i.ExternalID}
}

// DatapointsRequest 数据点检索请求，Aggregates 非空即为聚合模式
type DatapointsRequest struct {
	Items                []DatapointsQueryItem `json:"items" cbor:"items"`
	Start                *int64                `json:"start,omitempty" cbor:"start,omitempty"`
	End                  *int64                `json:"end,omitempty" cbor:"end,omitempty"`
	Limit                int                   `json:"limit,omitempty" cbor:"limit,omitempty"`
	Aggregates           []string              `json:"aggregates,omitempty" cbor:"aggs,omitempty"`
	Granularity          string                `json:"granularity,omitempty" cbor:"gran,omitempty"`
	IncludeOutsidePoints bool                  `json:"includeOutsidePoints,omitempty" cbor:"outside,omitempty"`
}

// IsAggregate 是否为聚合请求
func (r DatapointsRequest) IsAggregate() bool {
	return len(r.Aggregates) > 0
}

// WithStart 返回设置了新起点的副本
func (r DatapointsRequest) WithStart(start *int64) DatapointsRequest {
	out := r
	out.Start = start
	return out
}

// DatapointsResult 单个序列的检索结果
type DatapointsResult struct {
	ID         int64                 `json:"id" cbor:"id"`
	ExternalID string                `json:"externalId,omitempty" cbor:"xid,omitempty"`
	IsString   bool                  `json:"isString,omitempty" cbor:"str,omitempty"`
	IsStep     bool                  `json:"isStep,omitempty" cbor:"step,omitempty"`
	Unit       string                `json:"unit,omitempty" cbor:"unit,omitempty"`
	Datapoints []TimeseriesDatapoint `json:"datapoints" cbor:"dps"`
}

// SummaryQuery 单聚合摘要查询，固定请求 count
type SummaryQuery struct {
	Identifier TimeseriesIdentifier `json:"identifier"`
	Start      *int64               `json:"start,omitempty"`
	End        *int64               `json:"end,omitempty"`
}

// SeriesSummary 序列摘要
type SeriesSummary struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"externalId,omitempty"`
	IsStep     bool   `json:"isStep"`
	IsString   bool   `json:"isString"`
	Unit       string `json:"unit,omitempty"`
	Count      int64  `json:"count"`
}

// Int64 返回指针
func Int64(i int64) *int64 { return &i }
