package retriever

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"tschart/pkg/core"
	errs "tschart/pkg/error"
	"tschart/pkg/logger"
	"tschart/pkg/metrics"
	"tschart/pkg/provider"
)

const (
	// DefaultMaxRawPerRequest 单次原始点请求的上限
	DefaultMaxRawPerRequest = 100000
	// DefaultMaxAggregatePerRequest 单次聚合点请求的上限
	DefaultMaxAggregatePerRequest = 10000
)

// ChunkedOptions 分块检索配置
type ChunkedOptions struct {
	MaxRawPerRequest       int  `mapstructure:"max_raw_per_request"`
	MaxAggregatePerRequest int  `mapstructure:"max_aggregate_per_request"`
	StopOnShortChunk       bool `mapstructure:"stop_on_short_chunk"` // 某块返回不足即停止，会减少调用次数
}

// DefaultChunkedOptions 默认分块配置
func DefaultChunkedOptions() ChunkedOptions {
	return ChunkedOptions{
		MaxRawPerRequest:       DefaultMaxRawPerRequest,
		MaxAggregatePerRequest: DefaultMaxAggregatePerRequest,
	}
}

// Chunked 分块数据点检索器
// 当请求的 limit 超过单次调用上限时，按顺序推进起点逐块请求并拼接结果
type Chunked struct {
	provider provider.DatapointsProvider
	opts     ChunkedOptions
	log      *logrus.Entry
}

// NewChunked 创建分块检索器
func NewChunked(p provider.DatapointsProvider, opts ChunkedOptions) *Chunked {
	if opts.MaxRawPerRequest <= 0 {
		opts.MaxRawPerRequest = DefaultMaxRawPerRequest
	}
	if opts.MaxAggregatePerRequest <= 0 {
		opts.MaxAggregatePerRequest = DefaultMaxAggregatePerRequest
	}
	return &Chunked{
		provider: p,
		opts:     opts,
		log:      logger.WithComponent("ChunkedRetriever"),
	}
}

// MaxPerRequest 返回请求对应的单次上限
func (c *Chunked) MaxPerRequest(req core.DatapointsRequest) int {
	if req.IsAggregate() {
		return c.opts.MaxAggregatePerRequest
	}
	return c.opts.MaxRawPerRequest
}

// SplitLimit 把总量拆分为每块不超过 perCall 的若干块，总和等于 limit
func SplitLimit(limit, perCall int) []int {
	if limit <= 0 || perCall <= 0 {
		return nil
	}
	chunks := make([]int, 0, (limit+perCall-1)/perCall)
	for remaining := limit; remaining > 0; remaining -= perCall {
		if remaining < perCall {
			chunks = append(chunks, remaining)
		} else {
			chunks = append(chunks, perCall)
		}
	}
	return chunks
}

// Retrieve 检索单个序列的全部数据点，按时间升序。
// 任一分块失败或上下文取消都会使整个操作失败，已取得的部分结果被丢弃。
func (c *Chunked) Retrieve(ctx context.Context, req core.DatapointsRequest) ([]core.TimeseriesDatapoint, error) {
	if len(req.Items) != 1 {
		return nil, errs.NewError(ErrInvalidRequest, fmt.Sprintf("chunked retrieval expects exactly one item, got %d", len(req.Items)))
	}

	perCall := c.MaxPerRequest(req)
	limit := req.Limit
	if limit <= 0 {
		limit = perCall
	}
	chunks := SplitLimit(limit, perCall)

	mode := string(core.FetchModeRaw)
	if req.IsAggregate() {
		mode = string(core.FetchModeAggregate)
	}
	series := req.Items[0].Identifier().String()
	log := c.log.WithFields(logrus.Fields{"series": series, "mode": mode})

	cursor := req.Start
	all := make([]core.TimeseriesDatapoint, 0)

	for i, size := range chunks {
		if err := ctx.Err(); err != nil {
			metrics.RetrievalFailures.WithLabelValues(metrics.LayerChunk).Inc()
			return nil, errs.WrapError(ErrAborted, fmt.Sprintf("retrieval of %s aborted before chunk %d/%d", series, i+1, len(chunks)), err)
		}

		chunkReq := req.WithStart(cursor)
		chunkReq.Limit = size

		metrics.ChunkRequests.WithLabelValues(mode).Inc()
		results, err := c.provider.RetrieveDatapoints(ctx, chunkReq)
		if err != nil {
			metrics.RetrievalFailures.WithLabelValues(metrics.LayerChunk).Inc()
			return nil, errs.WrapError(ErrChunkFailed, fmt.Sprintf("chunk %d/%d of %s failed", i+1, len(chunks), series), err).
				WithContext("chunk", i).
				WithContext("series", series)
		}

		datapoints := firstDatapoints(results)
		if n := len(datapoints); n > 0 {
			last := datapoints[n-1].Timestamp
			cursor = &last
		}
		all = append(all, datapoints...)

		log.WithField("chunk", i).Debugf("chunk returned %d/%d points", len(datapoints), size)

		if c.opts.StopOnShortChunk && len(datapoints) < size {
			break
		}
	}

	return all, nil
}

func firstDatapoints(results []core.DatapointsResult) []core.TimeseriesDatapoint {
	if len(results) == 0 {
		return nil
	}
	return results[0].Datapoints
}
