package cdf

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"tschart/pkg/core"
	errs "tschart/pkg/error"
	"tschart/pkg/limiter"
	"tschart/pkg/logger"
)

// summaryGranularity 摘要请求使用最大粒度，使一次请求覆盖尽可能长的区间
const summaryGranularity = "100d"

// summaryLimit 摘要请求的最大桶数
const summaryLimit = 10000

// Config CDF 客户端配置
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	Project      string        `mapstructure:"project"`
	Token        string        `mapstructure:"token"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	RateLimit    time.Duration `mapstructure:"rate_limit"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://api.cognitedata.com",
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Second,
		RateLimit:    50 * time.Millisecond,
		UserAgent:    "tschart/1.0",
	}
}

// Provider CDF 时间序列数据点提供商
type Provider struct {
	httpClient   *http.Client
	baseURL      string
	project      string
	token        string
	lastRequest  time.Time
	requestMu    sync.Mutex
	rateLimit    time.Duration
	maxRetries   int
	retryBackoff time.Duration
	userAgent    string
	classifier   *limiter.ErrorClassifier
	log          *logrus.Entry
}

// NewProvider 创建 CDF 提供商
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" || cfg.Project == "" {
		return nil, errs.NewError(ErrConfig, "cdf base_url and project are required")
	}
	defaults := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	if cfg.RetryBackoff < 0 {
		cfg.RetryBackoff = 0
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaults.UserAgent
	}

	return &Provider{
		httpClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
				MaxConnsPerHost:     10,
			},
			Timeout: cfg.Timeout,
		},
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		project:      cfg.Project,
		token:        cfg.Token,
		rateLimit:    cfg.RateLimit,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		userAgent:    cfg.UserAgent,
		classifier:   limiter.NewErrorClassifier(),
		log:          logger.WithComponent("CDFProvider"),
	}, nil
}

// Name 返回提供商名称
func (p *Provider) Name() string {
	return "cdf"
}

// IsHealthy 客户端本身无状态，总是健康
func (p *Provider) IsHealthy() bool {
	return true
}

// GetRateLimit 获取请求间隔
func (p *Provider) GetRateLimit() time.Duration {
	return p.rateLimit
}

// SetRateLimit 设置请求频率限制
func (p *Provider) SetRateLimit(limit time.Duration) {
	p.rateLimit = limit
}

// SetMaxRetries 设置最大尝试次数
func (p *Provider) SetMaxRetries(retries int) {
	if retries < 1 {
		retries = 1
	}
	p.maxRetries = retries
}

// SetTimeout 设置超时时间
func (p *Provider) SetTimeout(timeout time.Duration) {
	p.httpClient.Timeout = timeout
}

// Close 关闭空闲连接
func (p *Provider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// RetrieveDatapoints 检索数据点
func (p *Provider) RetrieveDatapoints(ctx context.Context, req core.DatapointsRequest) ([]core.DatapointsResult, error) {
	if len(req.Items) == 0 {
		return []core.DatapointsResult{}, nil
	}

	var resp datapointsResponse
	if err := p.post(ctx, p.dataListURL(), toQuery(req), &resp); err != nil {
		return nil, err
	}

	results := make([]core.DatapointsResult, 0, len(resp.Items))
	for _, item := range resp.Items {
		results = append(results, item.toResult())
	}
	return results, nil
}

// RetrieveSummary 以 count 聚合查询区间内的点数，各桶计数相加
func (p *Provider) RetrieveSummary(ctx context.Context, query core.SummaryQuery) (core.SeriesSummary, error) {
	req := core.DatapointsRequest{
		Items:       []core.DatapointsQueryItem{core.ItemFor(query.Identifier)},
		Start:       query.Start,
		End:         query.End,
		Limit:       summaryLimit,
		Aggregates:  []string{"count"},
		Granularity: summaryGranularity,
	}

	var resp datapointsResponse
	if err := p.post(ctx, p.dataListURL(), toQuery(req), &resp); err != nil {
		return core.SeriesSummary{}, err
	}
	if len(resp.Items) == 0 {
		return core.SeriesSummary{}, errs.NewError(ErrDecode, fmt.Sprintf("summary response for %s has no items", query.Identifier.String()))
	}

	item := resp.Items[0]
	summary := core.SeriesSummary{
		ID:         item.ID,
		ExternalID: item.ExternalID,
		IsStep:     item.IsStep,
		IsString:   item.IsString,
		Unit:       item.Unit,
	}
	for _, dp := range item.Datapoints {
		if dp.Count != nil {
			summary.Count += int64(*dp.Count)
		}
	}
	return summary, nil
}

func (p *Provider) dataListURL() string {
	return fmt.Sprintf("%s/api/v1/projects/%s/timeseries/data/list", p.baseURL, p.project)
}

// post 发送 JSON 请求，网络错误与可重试状态码按退避重试
func (p *Provider) post(ctx context.Context, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return errs.WrapError(ErrDecode, "encode request failed", err)
	}

	var lastErr error
	for i := 0; i < p.maxRetries; i++ {
		if i > 0 {
			p.log.Debugf("Retry attempt %d/%d", i+1, p.maxRetries)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(i) * p.retryBackoff):
			}
		}

		p.enforceRateLimit()

		respBody, err := p.doOnce(ctx, url, payload)
		if err == nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return errs.WrapError(ErrDecode, "decode response failed", err)
			}
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if p.classifier.Classify(err) != limiter.LevelNetwork {
			return err
		}
		p.log.WithError(err).Warn("request failed, will retry")
	}

	return errs.WrapError(ErrHTTP, fmt.Sprintf("failed after %d attempts", p.maxRetries), lastErr)
}

func (p *Provider) doOnce(ctx context.Context, url string, payload []byte) ([]byte, error) {
	requestStart := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, errs.WrapError(ErrHTTP, "create request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errs.WrapError(ErrHTTP, "HTTP request failed", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, errs.WrapError(ErrHTTP, "read response failed", err)
	}

	p.log.Debugf("HTTP request completed in %v, status: %d, body length: %d",
		time.Since(requestStart), resp.StatusCode, len(body))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		message := http.StatusText(resp.StatusCode)
		var apiErr errorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		return nil, errs.NewError(ErrHTTP, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, message)).
			WithContext(limiter.StatusCodeKey, resp.StatusCode)
	}
	return body, nil
}

// enforceRateLimit 执行频率限制
func (p *Provider) enforceRateLimit() {
	p.requestMu.Lock()
	defer p.requestMu.Unlock()

	elapsed := time.Since(p.lastRequest)
	if elapsed < p.rateLimit && !p.lastRequest.IsZero() {
		time.Sleep(p.rateLimit - elapsed)
	}
	p.lastRequest = time.Now()
}
