package chart

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"tschart/pkg/core"
	errs "tschart/pkg/error"
	"tschart/pkg/logger"
	"tschart/pkg/metrics"
	"tschart/pkg/provider"
	"tschart/pkg/retriever"
)

// DefaultNumberOfPoints 未指定点数时每个序列请求的点数
const DefaultNumberOfPoints = 1000

// Settings 图表服务配置
type Settings struct {
	DefaultNumberOfPoints int                      `mapstructure:"default_number_of_points"`
	Mode                  core.DataFetchMode       `mapstructure:"mode"`
	RawDatapointsLimit    int                      `mapstructure:"raw_datapoints_limit"`
	Aggregates            []string                 `mapstructure:"aggregates"`
	Chunking              retriever.ChunkedOptions `mapstructure:"chunking"`
}

// DefaultSettings 默认服务配置
func DefaultSettings() Settings {
	return Settings{
		DefaultNumberOfPoints: DefaultNumberOfPoints,
		Mode:                  core.DataFetchModeAuto,
		RawDatapointsLimit:    DefaultRawDatapointsLimit,
		Aggregates:            append([]string(nil), DefaultAggregates...),
		Chunking:              retriever.DefaultChunkedOptions(),
	}
}

// Service 图表数据服务
// 串联元数据解析、请求构造、分块检索与图表适配
type Service struct {
	resolver *MetadataResolver
	chunked  *retriever.Chunked
	multi    *retriever.Multi
	settings Settings
	log      *logrus.Entry
}

// NewService 创建图表数据服务
func NewService(p provider.DatapointsProvider, settings Settings) *Service {
	if settings.DefaultNumberOfPoints <= 0 {
		settings.DefaultNumberOfPoints = DefaultNumberOfPoints
	}
	if settings.Mode == "" {
		settings.Mode = core.DataFetchModeAuto
	}
	if settings.RawDatapointsLimit <= 0 {
		settings.RawDatapointsLimit = DefaultRawDatapointsLimit
	}
	chunked := retriever.NewChunked(p, settings.Chunking)
	return &Service{
		resolver: NewMetadataResolver(p, settings.DefaultNumberOfPoints),
		chunked:  chunked,
		multi:    retriever.NewMulti(chunked),
		settings: settings,
		log:      logger.WithComponent("ChartService"),
	}
}

// Settings 返回生效的配置
func (s *Service) Settings() Settings {
	return s.settings
}

// options 请求选项为空时回落到服务配置
func (s *Service) options(opts DataFetchOptions) DataFetchOptions {
	if opts.Mode == "" {
		opts.Mode = s.settings.Mode
	}
	if opts.RawDatapointsLimit <= 0 {
		opts.RawDatapointsLimit = s.settings.RawDatapointsLimit
	}
	return opts
}

// prepare 解析元数据并构造检索请求
func (s *Service) prepare(ctx context.Context, req ChartRequest) (core.ChartMetadata, core.DatapointsRequest, error) {
	if err := req.Query.Validate(); err != nil {
		return core.ChartMetadata{}, core.DatapointsRequest{}, err
	}
	opts := s.options(req.Options)
	if _, err := core.ParseDataFetchMode(string(opts.Mode)); err != nil {
		return core.ChartMetadata{}, core.DatapointsRequest{}, errs.WrapError(ErrInvalidQuery, "invalid data fetch mode", err)
	}
	metadata := s.resolver.Resolve(ctx, req.Query, opts)
	return metadata, BuildDatapointsRequest(req.Query, metadata, s.settings.Aggregates), nil
}

// GetChartData 获取单个序列的图表数据，检索失败时返回错误
func (s *Service) GetChartData(ctx context.Context, req ChartRequest) (ChartResult, error) {
	began := time.Now()

	metadata, dpReq, err := s.prepare(ctx, req)
	if err != nil {
		return ChartResult{}, err
	}
	defer func() {
		metrics.ChartRequestDuration.WithLabelValues(string(metadata.DataFetchMode)).Observe(time.Since(began).Seconds())
	}()

	datapoints, err := s.chunked.Retrieve(ctx, dpReq)
	if err != nil {
		return ChartResult{}, err
	}

	s.log.WithFields(logrus.Fields{
		"series":      req.Query.Timeseries.String(),
		"mode":        metadata.DataFetchMode,
		"granularity": dpReq.Granularity,
		"points":      len(datapoints),
	}).Debug("chart data loaded")

	return ChartResult{
		Timeseries: req.Query.Timeseries,
		Data:       AdaptChartData(datapoints, metadata),
		Metadata:   metadata,
	}, nil
}

// GetMultiChartData 并发获取多个序列的图表数据。
// 每个序列的元数据解析与检索都在各自的协程中进行。
// 非法或检索失败的序列被丢弃，其余按输入顺序返回。
func (s *Service) GetMultiChartData(ctx context.Context, reqs []ChartRequest) []ChartResult {
	began := time.Now()
	defer func() {
		metrics.ChartRequestDuration.WithLabelValues("multi").Observe(time.Since(began).Seconds())
	}()

	metas := make([]core.ChartMetadata, len(reqs))
	results := retriever.Succeeded(s.multi.RetrieveEach(ctx, len(reqs), func(ctx context.Context, i int) (core.DatapointsRequest, error) {
		metadata, dpReq, err := s.prepare(ctx, reqs[i])
		if err != nil {
			return core.DatapointsRequest{}, err
		}
		metas[i] = metadata
		return dpReq, nil
	}))

	out := make([]ChartResult, 0, len(results))
	for _, r := range results {
		out = append(out, ChartResult{
			Timeseries: reqs[r.Index].Query.Timeseries,
			Data:       AdaptChartData(r.Datapoints, metas[r.Index]),
			Metadata:   metas[r.Index],
		})
	}
	return out
}
