package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"tschart/pkg/app"
	"tschart/pkg/chart"
	"tschart/pkg/config"
	"tschart/pkg/core"
	"tschart/pkg/logger"
)

var (
	configPath = flag.String("config", "", "配置文件路径 (默认查找 ./config/tschart.yaml)")
	id         = flag.Int64("id", 0, "序列内部 ID")
	externalID = flag.String("external-id", "", "序列外部 ID")
	start      = flag.String("start", "", "开始时间，毫秒时间戳或 RFC3339")
	end        = flag.String("end", "", "结束时间，毫秒时间戳或 RFC3339")
	window     = flag.Duration("window", time.Hour, "未指定 start/end 时取最近的时间窗口")
	points     = flag.Int("points", 0, "期望点数，0 使用配置默认值")
	mode       = flag.String("mode", "", "取数模式 (auto, raw, aggregate)")
	format     = flag.String("format", "json", "输出格式 (json、yaml 或 table)")
	timeout    = flag.Duration("timeout", 30*time.Second, "请求超时")
	logLevel   = flag.String("log-level", "warn", "日志级别")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chartctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	cfg.SetLogLevel(*logLevel)
	logger.InitWithOutput(cfg.Logger, os.Stderr)

	req, err := buildRequest(time.Now())
	if err != nil {
		return err
	}

	pipeline, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := pipeline.Service.GetChartData(ctx, req)
	if err != nil {
		return err
	}

	switch *format {
	case "json":
		return writeJSON(os.Stdout, result)
	case "yaml":
		return writeYAML(os.Stdout, result)
	case "table":
		return writeTable(os.Stdout, result)
	default:
		return fmt.Errorf("unknown output format %q", *format)
	}
}

// buildRequest 根据命令行参数构造图表请求
func buildRequest(now time.Time) (chart.ChartRequest, error) {
	var req chart.ChartRequest
	req.Query.Timeseries = core.TimeseriesIdentifier{ID: *id, ExternalID: *externalID}
	req.Query.NumberOfPoints = *points

	fetchMode, err := core.ParseDataFetchMode(*mode)
	if err != nil {
		return req, err
	}
	req.Options.Mode = fetchMode

	switch {
	case *start != "" && *end != "":
		startTime, err := parseTime(*start)
		if err != nil {
			return req, err
		}
		endTime, err := parseTime(*end)
		if err != nil {
			return req, err
		}
		req.Query.DateRange = core.NewDateRange(startTime, endTime)
	case *start != "" || *end != "":
		return req, fmt.Errorf("start and end must be given together")
	default:
		req.Query.DateRange = core.NewDateRange(now.Add(-*window), now)
	}

	return req, req.Query.Validate()
}

func parseTime(value string) (time.Time, error) {
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: expected milliseconds or RFC3339", value)
	}
	return t, nil
}
