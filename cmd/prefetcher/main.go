package main

import (
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tschart/pkg/app"
	"tschart/pkg/config"
	"tschart/pkg/export"
	"tschart/pkg/logger"
	"tschart/pkg/metrics"
	"tschart/pkg/scheduler"
)

var (
	configPath  = flag.String("config", "", "配置文件路径 (默认查找 ./config/tschart.yaml)")
	jobsPath    = flag.String("jobs", "", "任务配置文件路径，覆盖 scheduler.jobs_file")
	metricsAddr = flag.String("metrics-addr", "", "指标监听地址，为空时不暴露指标")
	runOnce     = flag.String("run", "", "立即执行指定任务一次后退出")
	logLevel    = flag.String("log-level", "", "日志级别 (debug, info, warn, error)")
	logFormat   = flag.String("log-format", "", "日志格式 (json 或 text)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.InitFromEnv()
		logger.WithComponent("prefetcher").WithError(err).Fatal("加载配置失败")
	}
	if *logLevel != "" {
		cfg.SetLogLevel(*logLevel)
	}
	if *logFormat != "" {
		cfg.Logger.Format = *logFormat
	}
	if *jobsPath != "" {
		cfg.Scheduler.JobsFile = *jobsPath
	}

	logger.Init(cfg.Logger)
	log := logger.WithComponent("prefetcher")

	pipeline, err := app.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("初始化取数管线失败")
	}
	defer pipeline.Close()

	// 未配置 org 时只记录日志，不写出
	var sink export.Sink
	if cfg.Export.Org != "" {
		influxSink, err := export.NewInfluxSink(cfg.Export)
		if err != nil {
			log.WithError(err).Fatal("创建 InfluxDB 写入器失败")
		}
		defer influxSink.Close()
		sink = influxSink
	} else {
		log.Warn("export.org 未配置，预取结果只写入日志")
	}

	jobScheduler := scheduler.NewJobScheduler()
	jobScheduler.SetExecutor(scheduler.NewChartJobExecutor(pipeline.Service, sink))
	if err := jobScheduler.LoadConfig(cfg.Scheduler.JobsFile); err != nil {
		log.WithError(err).Fatal("加载任务配置失败")
	}

	if *runOnce != "" {
		executeOnce(jobScheduler, *runOnce)
		return
	}

	if *metricsAddr != "" {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.WithError(err).Fatal("注册指标失败")
		}
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, metrics.Handler(prometheus.DefaultGatherer))
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.WithError(err).Error("指标服务异常退出")
			}
		}()
	}

	if err := jobScheduler.Start(); err != nil {
		log.WithError(err).Fatal("启动任务调度器失败")
	}
	for _, job := range jobScheduler.GetAllJobs() {
		log.WithFields(map[string]interface{}{
			"job":      job.Config.Name,
			"schedule": job.Config.Schedule,
			"series":   len(job.Config.Series),
			"next_run": job.NextRun,
		}).Info("任务已注册")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("正在停止任务调度器...")
	if err := jobScheduler.Stop(); err != nil {
		log.WithError(err).Error("停止任务调度器失败")
	}
}

// executeOnce 同步执行一次任务并报告结果
func executeOnce(s *scheduler.DefaultJobScheduler, name string) {
	log := logger.WithComponent("prefetcher").WithField("job", name)

	if err := s.RunJob(name); err != nil {
		log.WithError(err).Fatal("执行任务失败")
	}
	s.Wait()

	job, err := s.GetJob(name)
	if err != nil {
		log.WithError(err).Fatal("读取任务状态失败")
	}
	if job.LastError != nil {
		log.WithError(job.LastError).Fatal("任务执行失败")
	}
	log.WithField("points", job.LastWritten).Info("任务执行完成")
}
