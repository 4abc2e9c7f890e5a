package chart

import (
	"context"

	"github.com/sirupsen/logrus"

	"tschart/pkg/core"
	"tschart/pkg/logger"
	"tschart/pkg/metrics"
)

// SummaryProvider 提供单聚合摘要
type SummaryProvider interface {
	RetrieveSummary(ctx context.Context, query core.SummaryQuery) (core.SeriesSummary, error)
}

// MetadataResolver 图表元数据解析器
// 通过 count 摘要确定实际需要的点数，并据此决定取数模式
type MetadataResolver struct {
	summaries     SummaryProvider
	defaultPoints int
	log           *logrus.Entry
}

// NewMetadataResolver 创建元数据解析器，defaultPoints 用于未指定点数的查询
func NewMetadataResolver(summaries SummaryProvider, defaultPoints int) *MetadataResolver {
	if defaultPoints <= 0 {
		defaultPoints = DefaultNumberOfPoints
	}
	return &MetadataResolver{
		summaries:     summaries,
		defaultPoints: defaultPoints,
		log:           logger.WithComponent("MetadataResolver"),
	}
}

// Resolve 解析单个序列的图表元数据。
// 点数取请求点数与区间内实际点数的较小值（至少为 1）；摘要查询失败时降级为请求点数且标志未知。
func (r *MetadataResolver) Resolve(ctx context.Context, q ChartQuery, opts DataFetchOptions) core.ChartMetadata {
	requestedPoints := q.NumberOfPoints
	if requestedPoints <= 0 {
		requestedPoints = r.defaultPoints
	}
	metadata := core.ChartMetadata{NumberOfPoints: requestedPoints}

	query := core.SummaryQuery{Identifier: q.Timeseries}
	if q.DateRange != nil {
		query.Start = core.Int64(q.DateRange.StartMillis())
		query.End = core.Int64(q.DateRange.EndMillis())
	}

	summary, err := r.summaries.RetrieveSummary(ctx, query)
	if err != nil {
		metrics.RetrievalFailures.WithLabelValues(metrics.LayerMetadata).Inc()
		r.log.WithError(err).WithField("series", q.Timeseries.String()).Warn("summary lookup failed, using requested point count")
	} else {
		metadata.IsStep = core.Bool(summary.IsStep)
		metadata.IsString = core.Bool(summary.IsString)
		metadata.Unit = summary.Unit
		if summary.Count < int64(requestedPoints) {
			metadata.NumberOfPoints = int(summary.Count)
		}
	}
	if metadata.NumberOfPoints < 1 {
		metadata.NumberOfPoints = 1
	}

	metadata.DataFetchMode = ResolveFetchMode(FetchModeInput{
		NumberOfPoints:     metadata.NumberOfPoints,
		Mode:               opts.Mode,
		RawDatapointsLimit: opts.RawDatapointsLimit,
		IsString:           metadata.IsString != nil && *metadata.IsString,
	})
	return metadata
}
