package retriever

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/iter"

	"tschart/pkg/core"
	"tschart/pkg/logger"
	"tschart/pkg/metrics"
)

// SeriesResult 单个序列的检索结果，失败时 Err 非空
type SeriesResult struct {
	Index      int
	Request    core.DatapointsRequest
	Datapoints []core.TimeseriesDatapoint
	Err        error
}

// OK 是否检索成功
func (r SeriesResult) OK() bool { return r.Err == nil }

// Multi 多序列检索器
// 所有序列同时发起请求，等待全部完成后按输入顺序返回
type Multi struct {
	chunked *Chunked
	log     *logrus.Entry
}

// NewMulti 创建多序列检索器
func NewMulti(chunked *Chunked) *Multi {
	return &Multi{
		chunked: chunked,
		log:     logger.WithComponent("MultiRetriever"),
	}
}

// RetrieveAll 并发检索所有序列，保留每个序列的成功或失败结果
func (m *Multi) RetrieveAll(ctx context.Context, reqs []core.DatapointsRequest) []SeriesResult {
	return m.RetrieveEach(ctx, len(reqs), func(_ context.Context, i int) (core.DatapointsRequest, error) {
		return reqs[i], nil
	})
}

// PrepareFunc 在各自的协程中构造第 i 个序列的检索请求
type PrepareFunc func(ctx context.Context, i int) (core.DatapointsRequest, error)

// RetrieveEach 为 n 个序列同时启动 prepare 与分块检索。
// prepare 失败的序列与检索失败的序列一样记入 Err。
func (m *Multi) RetrieveEach(ctx context.Context, n int, prepare PrepareFunc) []SeriesResult {
	indexed := make([]int, n)
	for i := range indexed {
		indexed[i] = i
	}

	mapper := iter.Mapper[int, SeriesResult]{MaxGoroutines: n}
	return mapper.Map(indexed, func(i *int) SeriesResult {
		req, err := prepare(ctx, *i)
		if err != nil {
			m.log.WithError(err).WithField("index", *i).Warn("skipping invalid series request")
			return SeriesResult{Index: *i, Request: req, Err: err}
		}
		datapoints, err := m.chunked.Retrieve(ctx, req)
		if err != nil {
			metrics.RetrievalFailures.WithLabelValues(metrics.LayerSeries).Inc()
			m.log.WithError(err).WithField("index", *i).Warn("series retrieval failed, dropping it")
		}
		return SeriesResult{Index: *i, Request: req, Datapoints: datapoints, Err: err}
	})
}

// Retrieve 并发检索所有序列，只返回成功的结果，失败的序列被静默丢弃
func (m *Multi) Retrieve(ctx context.Context, reqs []core.DatapointsRequest) [][]core.TimeseriesDatapoint {
	ok := Succeeded(m.RetrieveAll(ctx, reqs))
	out := make([][]core.TimeseriesDatapoint, 0, len(ok))
	for _, r := range ok {
		out = append(out, r.Datapoints)
	}
	return out
}

// Succeeded 过滤出成功的结果，保持原有顺序
func Succeeded(results []SeriesResult) []SeriesResult {
	out := make([]SeriesResult, 0, len(results))
	for _, r := range results {
		if r.OK() {
			out = append(out, r)
		}
	}
	return out
}
