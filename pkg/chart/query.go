package chart

import (
	"fmt"
	"strconv"
	"strings"

	"tschart/pkg/core"
	errs "tschart/pkg/error"
)

const (
	// ErrInvalidQuery 表示图表查询参数不合法。
	ErrInvalidQuery errs.ErrorCode = "INVALID_QUERY"
)

// DefaultAggregates 聚合模式默认请求的聚合字段
var DefaultAggregates = []string{"average", "min", "max", "count"}

// ChartQuery 单个序列的图表查询
type ChartQuery struct {
	Timeseries     core.TimeseriesIdentifier `json:"timeseries"`
	DateRange      *core.DateRange           `json:"dateRange,omitempty"`
	NumberOfPoints int                       `json:"numberOfPoints,omitempty"`
}

// Validate 校验序列标识与时间范围
func (q ChartQuery) Validate() error {
	if err := q.Timeseries.Validate(); err != nil {
		return errs.WrapError(ErrInvalidQuery, "invalid timeseries", err)
	}
	if q.DateRange != nil {
		if err := q.DateRange.Validate(); err != nil {
			return errs.WrapError(ErrInvalidQuery, "invalid date range", err)
		}
	}
	if q.NumberOfPoints < 0 {
		return errs.NewError(ErrInvalidQuery, fmt.Sprintf("numberOfPoints must not be negative, got %d", q.NumberOfPoints))
	}
	return nil
}

// DataFetchOptions 取数选项，零值表示沿用服务默认值
type DataFetchOptions struct {
	Mode               core.DataFetchMode `json:"mode,omitempty"`
	RawDatapointsLimit int                `json:"rawDatapointsLimit,omitempty"`
}

// ChartRequest 图表请求
type ChartRequest struct {
	Query   ChartQuery       `json:"query"`
	Options DataFetchOptions `json:"dataFetchOptions"`
}

// Key 返回请求的规范化键
func (r ChartRequest) Key() string {
	parts := []string{r.Query.Timeseries.String()}
	if r.Query.DateRange != nil {
		parts = append(parts,
			strconv.FormatInt(r.Query.DateRange.StartMillis(), 10),
			strconv.FormatInt(r.Query.DateRange.EndMillis(), 10))
	} else {
		parts = append(parts, "-", "-")
	}
	parts = append(parts,
		strconv.Itoa(r.Query.NumberOfPoints),
		string(r.Options.Mode),
		strconv.Itoa(r.Options.RawDatapointsLimit))
	return strings.Join(parts, "|")
}

// ChartResult 图表数据、元数据与加载状态
type ChartResult struct {
	Timeseries core.TimeseriesIdentifier `json:"timeseries"`
	Data       core.ChartData            `json:"data"`
	Metadata   core.ChartMetadata        `json:"metadata"`
	IsLoading  bool                      `json:"isLoading"`
}

// BuildDatapointsRequest 根据查询与元数据构造检索请求。
// 聚合模式附带聚合字段与按点数计算的粒度，原始模式不带聚合字段。
func BuildDatapointsRequest(q ChartQuery, metadata core.ChartMetadata, aggregates []string) core.DatapointsRequest {
	req := core.DatapointsRequest{
		Items: []core.DatapointsQueryItem{core.ItemFor(q.Timeseries)},
		Limit: metadata.NumberOfPoints,
	}
	if q.DateRange != nil {
		req.Start = core.Int64(q.DateRange.StartMillis())
		req.End = core.Int64(q.DateRange.EndMillis())
	}

	if metadata.DataFetchMode == core.FetchModeAggregate {
		if len(aggregates) == 0 {
			aggregates = DefaultAggregates
		}
		req.Aggregates = append([]string(nil), aggregates...)
		req.Granularity = CalculateGranularity(q.DateRange, metadata.NumberOfPoints)
	}
	return req
}
