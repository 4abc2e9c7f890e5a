// Package api 提供图表数据的 HTTP 接口
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"tschart/pkg/chart"
	"tschart/pkg/logger"
	"tschart/pkg/metrics"
	"tschart/pkg/provider"
)

// ChartService 图表数据服务，chart.Service 满足此接口
type ChartService interface {
	GetChartData(ctx context.Context, req chart.ChartRequest) (chart.ChartResult, error)
	GetMultiChartData(ctx context.Context, reqs []chart.ChartRequest) []chart.ChartResult
}

// Options 服务选项
type Options struct {
	Addr            string
	Mode            string // gin 运行模式
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration // 单个图表请求的处理超时
	JobTimeout      time.Duration // 异步加载任务的超时
	MetricsPath     string        // 为空时不暴露指标
	Gatherer        prometheus.Gatherer
}

// DefaultOptions 默认选项
func DefaultOptions() Options {
	return Options{
		Addr:            ":8080",
		Mode:            gin.ReleaseMode,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RequestTimeout:  30 * time.Second,
		JobTimeout:      5 * time.Minute,
		MetricsPath:     "/metrics",
		Gatherer:        prometheus.DefaultGatherer,
	}
}

// Server 图表 HTTP 服务
type Server struct {
	service ChartService
	store   *chart.Store
	health  provider.Provider
	opts    Options
	log     *logrus.Entry
	router  *gin.Engine
	server  *http.Server

	// 异步任务
	jobCtx    context.Context
	jobCancel context.CancelFunc
	jobs      sync.WaitGroup
}

// NewServer 创建服务，health 为 nil 时健康检查总是成功
func NewServer(service ChartService, store *chart.Store, health provider.Provider, opts Options) *Server {
	defaults := DefaultOptions()
	if opts.Addr == "" {
		opts.Addr = defaults.Addr
	}
	if opts.Mode == "" {
		opts.Mode = defaults.Mode
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaults.RequestTimeout
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaults.JobTimeout
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = defaults.ShutdownTimeout
	}
	if opts.Gatherer == nil {
		opts.Gatherer = defaults.Gatherer
	}
	if store == nil {
		store = chart.NewStore()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		service:   service,
		store:     store,
		health:    health,
		opts:      opts,
		log:       logger.WithComponent("APIServer"),
		jobCtx:    ctx,
		jobCancel: cancel,
	}
	s.router = s.routes()
	return s
}

// Handler 返回路由，便于测试与嵌入
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(s.opts.Mode)
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(s.log))
	router.Use(metricsMiddleware())
	router.Use(corsMiddleware())

	router.GET("/health", s.healthCheck)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/chart", s.getChart)
		v1.POST("/charts", s.postCharts)
		v1.POST("/chart-jobs", s.postChartJob)
		v1.GET("/chart-jobs", s.listChartJobs)
		v1.GET("/chart-jobs/:key", s.getChartJob)
	}

	if s.opts.MetricsPath != "" {
		router.GET(s.opts.MetricsPath, gin.WrapH(metrics.Handler(s.opts.Gatherer)))
	}
	return router
}

// Start 在后台监听
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.opts.Addr,
		Handler:      s.router,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
	}

	s.log.WithField("addr", s.opts.Addr).Info("Starting API server...")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("HTTP server stopped unexpectedly")
		}
	}()
	return nil
}

// Stop 优雅关闭，并取消未完成的异步任务
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.log.WithError(err).Error("Failed to gracefully shutdown server")
		}
	}

	s.jobCancel()
	s.jobs.Wait()
}
