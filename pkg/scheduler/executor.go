package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"tschart/pkg/chart"
	"tschart/pkg/core"
	"tschart/pkg/export"
	"tschart/pkg/logger"
)

// ChartFetcher 批量获取图表数据，chart.Service 满足此接口
type ChartFetcher interface {
	GetMultiChartData(ctx context.Context, reqs []chart.ChartRequest) []chart.ChartResult
}

// ChartJobExecutor 按任务窗口拉取图表数据并写出
type ChartJobExecutor struct {
	fetcher ChartFetcher
	sink    export.Sink
	now     func() time.Time
	log     *logrus.Entry
}

// NewChartJobExecutor 创建执行器，sink 为 nil 时只记录日志
func NewChartJobExecutor(fetcher ChartFetcher, sink export.Sink) *ChartJobExecutor {
	return &ChartJobExecutor{
		fetcher: fetcher,
		sink:    sink,
		now:     time.Now,
		log:     logger.WithComponent("ChartJobExecutor"),
	}
}

// Requests 构造任务在给定时刻的图表请求
func Requests(config JobConfig, now time.Time) []chart.ChartRequest {
	dateRange := core.NewDateRange(now.Add(-config.Window), now)
	reqs := make([]chart.ChartRequest, 0, len(config.Series))
	for _, series := range config.Series {
		reqs = append(reqs, chart.ChartRequest{
			Query: chart.ChartQuery{
				Timeseries:     series.Identifier(),
				DateRange:      dateRange,
				NumberOfPoints: config.Points,
			},
			Options: chart.DataFetchOptions{Mode: core.DataFetchMode(config.Mode)},
		})
	}
	return reqs
}

// Execute 执行任务。所有序列都失败或写出失败时返回错误。
func (e *ChartJobExecutor) Execute(ctx context.Context, job *Job) (int, error) {
	reqs := Requests(job.Config, e.now())
	results := e.fetcher.GetMultiChartData(ctx, reqs)
	if len(results) == 0 && len(reqs) > 0 {
		return 0, fmt.Errorf("任务 %s 的 %d 个序列全部获取失败", job.Config.Name, len(reqs))
	}
	if len(results) < len(reqs) {
		e.log.WithField("job", job.Config.Name).Warnf("%d/%d 个序列获取失败", len(reqs)-len(results), len(reqs))
	}

	if e.sink == nil || (job.Config.Output != nil && job.Config.Output.Type == OutputLog) {
		total := 0
		for _, r := range results {
			total += r.Data.Len()
			e.log.WithFields(logrus.Fields{
				"job":    job.Config.Name,
				"series": r.Timeseries.String(),
				"mode":   r.Metadata.DataFetchMode,
				"points": r.Data.Len(),
			}).Info("chart data prefetched")
		}
		return total, nil
	}

	total := 0
	for _, r := range results {
		n, err := e.sink.Write(ctx, r)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
