package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"tschart/pkg/api"
	"tschart/pkg/app"
	"tschart/pkg/chart"
	"tschart/pkg/config"
	"tschart/pkg/logger"
	"tschart/pkg/metrics"
)

var (
	configPath = flag.String("config", "", "配置文件路径 (默认查找 ./config/tschart.yaml)")
	addr       = flag.String("addr", "", "监听地址，覆盖配置中的 server.addr")
	logLevel   = flag.String("log-level", "", "日志级别 (debug, info, warn, error)")
	logFormat  = flag.String("log-format", "", "日志格式 (json 或 text)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.InitFromEnv()
		logger.WithComponent("chart_server").WithError(err).Fatal("加载配置失败")
	}
	if *logLevel != "" {
		cfg.SetLogLevel(*logLevel)
	}
	if *logFormat != "" {
		cfg.Logger.Format = *logFormat
	}
	if *addr != "" {
		cfg.SetServerAddr(*addr)
	}

	logger.Init(cfg.Logger)
	log := logger.WithComponent("chart_server")

	pipeline, err := app.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("初始化取数管线失败")
	}
	defer pipeline.Close()

	metricsPath := ""
	if cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			log.WithError(err).Fatal("注册指标失败")
		}
		metricsPath = cfg.Metrics.Path
	}

	server := api.NewServer(pipeline.Service, chart.NewStore(), pipeline.Provider, api.Options{
		Addr:            cfg.Server.Addr,
		Mode:            cfg.Server.Mode,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     metricsPath,
		Gatherer:        prometheus.DefaultGatherer,
	})
	if err := server.Start(); err != nil {
		log.WithError(err).Fatal("启动 HTTP 服务失败")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	log.WithField("signal", sig.String()).Info("收到退出信号，正在关闭服务...")
	server.Stop()
	log.Info("服务已关闭")
}
