package influx

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"tschart/pkg/core"
)

// aggregateFns 聚合字段到 Flux 函数的映射
var aggregateFns = map[string]string{
	"average": "mean",
	"min":     "min",
	"max":     "max",
	"count":   "count",
	"sum":     "sum",
}

// queryBuilder 根据配置生成 Flux 查询
type queryBuilder struct {
	bucket      string
	measurement string
	seriesTag   string
	field       string
}

// SeriesKey 序列在标签中的取值，外部 ID 优先
func SeriesKey(id core.TimeseriesIdentifier) string {
	if id.ExternalID != "" {
		return id.ExternalID
	}
	return strconv.FormatInt(id.ID, 10)
}

func fluxTime(ms *int64, fallback string) string {
	if ms == nil {
		return fallback
	}
	return time.UnixMilli(*ms).UTC().Format(time.RFC3339Nano)
}

// fluxEscaper 转义 Flux 字符串字面量，$ 会触发 ${} 插值
var fluxEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	`$`, `\$`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func fluxString(s string) string {
	return `"` + fluxEscaper.Replace(s) + `"`
}

// source 公共的 from/range/filter 片段
func (b queryBuilder) source(id core.TimeseriesIdentifier, start, end *int64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "from(bucket: %s)\n", fluxString(b.bucket))
	fmt.Fprintf(&sb, "  |> range(start: %s, stop: %s)\n", fluxTime(start, "0"), fluxTime(end, "now()"))
	fmt.Fprintf(&sb, "  |> filter(fn: (r) => r._measurement == %s and r[%s] == %s and r._field == %s)\n",
		fluxString(b.measurement), fluxString(b.seriesTag), fluxString(SeriesKey(id)), fluxString(b.field))
	return sb.String()
}

// raw 原始点查询
func (b queryBuilder) raw(id core.TimeseriesIdentifier, start, end *int64, limit int) string {
	q := b.source(id, start, end) + "  |> sort(columns: [\"_time\"])\n"
	if limit > 0 {
		q += fmt.Sprintf("  |> limit(n: %d)\n", limit)
	}
	return q
}

// aggregate 单个聚合函数的窗口查询，窗口以起点为时间戳
func (b queryBuilder) aggregate(id core.TimeseriesIdentifier, start, end *int64, every, fn string, limit int) string {
	q := b.source(id, start, end) +
		fmt.Sprintf("  |> aggregateWindow(every: %s, fn: %s, createEmpty: false, timeSrc: \"_start\")\n", every, fn) +
		"  |> sort(columns: [\"_time\"])\n"
	if limit > 0 {
		q += fmt.Sprintf("  |> limit(n: %d)\n", limit)
	}
	return q
}

// count 区间内点数
func (b queryBuilder) count(id core.TimeseriesIdentifier, start, end *int64) string {
	return b.source(id, start, end) + "  |> count()\n"
}

// last 区间内最后一个点，用于读取标签与取值类型
func (b queryBuilder) last(id core.TimeseriesIdentifier, start, end *int64) string {
	return b.source(id, start, end) + "  |> last()\n"
}

// windowEvery 把粒度转换为 Flux 时长，零粒度提升为 1s
func windowEvery(granularity string) (string, error) {
	d, err := core.ParseGranularity(granularity)
	if err != nil {
		return "", err
	}
	if d <= 0 {
		return "1s", nil
	}
	return granularity, nil
}
