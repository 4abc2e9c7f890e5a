package api

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tschart/pkg/chart"
	"tschart/pkg/core"
	errs "tschart/pkg/error"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ChartsRequest 批量图表请求体
type ChartsRequest struct {
	Requests []chart.ChartRequest `json:"requests"`
}

// ChartsResponse 批量图表响应，只包含成功的序列
type ChartsResponse struct {
	Items     []chart.ChartResult `json:"items"`
	Requested int                 `json:"requested"`
	Succeeded int                 `json:"succeeded"`
}

// JobResponse 异步任务受理响应
type JobResponse struct {
	Key       string `json:"key"`
	IsLoading bool   `json:"isLoading"`
	Started   bool   `json:"started"`
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: message})
}

// statusFor 把检索错误映射为 HTTP 状态码
func statusFor(err error) int {
	switch {
	case errs.HasCode(err, chart.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	health := gin.H{
		"status":    "ok",
		"timestamp": time.Now(),
	}
	if s.health != nil {
		healthy := s.health.IsHealthy()
		health["provider"] = gin.H{"name": s.health.Name(), "healthy": healthy}
		if !healthy {
			health["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, health)
			return
		}
	}
	c.JSON(http.StatusOK, health)
}

// parseTime 解析毫秒时间戳或 RFC3339 时间
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

func queryInt(c *gin.Context, name string) (int, error) {
	value := c.Query(name)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, value)
	}
	return n, nil
}

// parseChartRequest 从查询参数构造图表请求
func parseChartRequest(c *gin.Context) (chart.ChartRequest, error) {
	var req chart.ChartRequest

	if id := c.Query("id"); id != "" {
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			return req, fmt.Errorf("invalid id %q", id)
		}
		req.Query.Timeseries.ID = n
	}
	req.Query.Timeseries.ExternalID = c.Query("externalId")

	start, end := c.Query("start"), c.Query("end")
	switch {
	case start != "" && end != "":
		startTime, err := parseTime(start)
		if err != nil {
			return req, err
		}
		endTime, err := parseTime(end)
		if err != nil {
			return req, err
		}
		req.Query.DateRange = core.NewDateRange(startTime, endTime)
	case start != "" || end != "":
		return req, errors.New("start and end must be given together")
	}

	points, err := queryInt(c, "points")
	if err != nil {
		return req, err
	}
	req.Query.NumberOfPoints = points

	mode, err := core.ParseDataFetchMode(c.Query("mode"))
	if err != nil {
		return req, err
	}
	req.Options.Mode = mode

	rawLimit, err := queryInt(c, "rawLimit")
	if err != nil {
		return req, err
	}
	req.Options.RawDatapointsLimit = rawLimit

	return req, req.Query.Validate()
}

func (s *Server) getChart(c *gin.Context) {
	req, err := parseChartRequest(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
	defer cancel()

	result, err := s.service.GetChartData(ctx, req)
	if err != nil {
		_ = c.Error(err)
		status := statusFor(err)
		c.JSON(status, ErrorResponse{Error: http.StatusText(status), Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) postCharts(c *gin.Context) {
	var body ChartsRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err.Error())
		return
	}
	if len(body.Requests) == 0 {
		badRequest(c, "requests must not be empty")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.opts.RequestTimeout)
	defer cancel()

	results := s.service.GetMultiChartData(ctx, body.Requests)
	c.JSON(http.StatusOK, ChartsResponse{
		Items:     results,
		Requested: len(body.Requests),
		Succeeded: len(results),
	})
}

// JobKey 返回请求对应的任务键，相同请求得到相同的键
func JobKey(req chart.ChartRequest) string {
	return base64.RawURLEncoding.EncodeToString([]byte(req.Key()))
}

func (s *Server) postChartJob(c *gin.Context) {
	var req chart.ChartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if err := req.Query.Validate(); err != nil {
		badRequest(c, err.Error())
		return
	}

	key := JobKey(req)
	started := s.store.Begin(key)
	if started {
		s.jobs.Add(1)
		go s.runJob(key, req)
	}
	c.JSON(http.StatusAccepted, JobResponse{Key: key, IsLoading: true, Started: started})
}

// runJob 加载图表并把结果写入状态存储
func (s *Server) runJob(key string, req chart.ChartRequest) {
	defer s.jobs.Done()

	ctx, cancel := context.WithTimeout(s.jobCtx, s.opts.JobTimeout)
	defer cancel()

	result, err := s.service.GetChartData(ctx, req)
	if err != nil {
		s.log.WithError(err).WithField("key", key).Warn("chart job failed")
		s.store.Fail(key, err)
		return
	}
	s.store.Complete(key, result)
}

func (s *Server) getChartJob(c *gin.Context) {
	snapshot, ok := s.store.Get(c.Param("key"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "chart job not found"})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (s *Server) listChartJobs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"keys": s.store.Keys()})
}
