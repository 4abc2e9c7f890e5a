package cdf

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"tschart/pkg/core"
)

// MockSeries 模拟服务器中的序列
type MockSeries struct {
	ID         int64
	ExternalID string
	IsString   bool
	IsStep     bool
	Unit       string
	Datapoints []core.TimeseriesDatapoint
}

// HTTPMock CDF data/list 接口的模拟服务器
// 原始请求按 [start, end) 过滤并截取 limit；聚合请求按粒度分桶计算聚合值
type HTTPMock struct {
	server   *httptest.Server
	project  string
	token    string
	mu       sync.RWMutex
	series   []*MockSeries
	failures []int // 依次返回的错误状态码
	requests int64
	bodies   []datapointsQuery
}

// NewHTTPMock 创建模拟服务器，token 非空时校验 Bearer 令牌
func NewHTTPMock(project, token string) *HTTPMock {
	mock := &HTTPMock{project: project, token: token}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handleRequest))
	return mock
}

// GetURL 获取模拟服务器的URL
func (m *HTTPMock) GetURL() string {
	return m.server.URL
}

// Close 关闭模拟服务器
func (m *HTTPMock) Close() {
	if m.server != nil {
		m.server.Close()
	}
}

// AddSeries 添加序列
func (m *HTTPMock) AddSeries(s MockSeries) {
	dps := append([]core.TimeseriesDatapoint(nil), s.Datapoints...)
	sort.SliceStable(dps, func(i, j int) bool { return dps[i].Timestamp < dps[j].Timestamp })
	s.Datapoints = dps

	m.mu.Lock()
	defer m.mu.Unlock()
	m.series = append(m.series, &s)
}

// SimulateErrors 让接下来的请求依次返回给定状态码
func (m *HTTPMock) SimulateErrors(statusCodes ...int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = append(m.failures, statusCodes...)
}

// GetRequestCount 获取请求计数
func (m *HTTPMock) GetRequestCount() int {
	return int(atomic.LoadInt64(&m.requests))
}

// Requests 返回收到的请求体
func (m *HTTPMock) Requests() []datapointsQuery {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]datapointsQuery(nil), m.bodies...)
}

func (m *HTTPMock) handleRequest(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&m.requests, 1)

	if r.Method != http.MethodPost || r.URL.Path != fmt.Sprintf("/api/v1/projects/%s/timeseries/data/list", m.project) {
		writeError(w, http.StatusNotFound, "unknown path "+r.URL.Path)
		return
	}
	if m.token != "" && r.Header.Get("Authorization") != "Bearer "+m.token {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	m.mu.Lock()
	if len(m.failures) > 0 {
		status := m.failures[0]
		m.failures = m.failures[1:]
		m.mu.Unlock()
		writeError(w, status, http.StatusText(status))
		return
	}
	m.mu.Unlock()

	var q datapointsQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	m.mu.Lock()
	m.bodies = append(m.bodies, q)
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	resp := datapointsResponse{Items: make([]responseItem, 0, len(q.Items))}
	for _, item := range q.Items {
		s := m.find(item)
		if s == nil {
			writeError(w, http.StatusBadRequest, "timeseries not found")
			return
		}
		if len(q.Aggregates) > 0 && s.IsString {
			writeError(w, http.StatusBadRequest, "aggregates are not supported for string timeseries")
			return
		}
		dps, err := m.selectDatapoints(s, q)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		resp.Items = append(resp.Items, responseItem{
			ID:         s.ID,
			ExternalID: s.ExternalID,
			IsString:   s.IsString,
			IsStep:     s.IsStep,
			Unit:       s.Unit,
			Datapoints: dps,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

func (m *HTTPMock) find(item queryItem) *MockSeries {
	for _, s := range m.series {
		if (item.ID != 0 && s.ID == item.ID) || (item.ExternalID != "" && s.ExternalID == item.ExternalID) {
			return s
		}
	}
	return nil
}

func (m *HTTPMock) selectDatapoints(s *MockSeries, q datapointsQuery) ([]core.TimeseriesDatapoint, error) {
	in := make([]core.TimeseriesDatapoint, 0)
	for _, dp := range s.Datapoints {
		if q.Start != nil && dp.Timestamp < *q.Start {
			continue
		}
		if q.End != nil && dp.Timestamp >= *q.End {
			continue
		}
		in = append(in, dp)
	}

	if len(q.Aggregates) == 0 {
		if q.Limit > 0 && len(in) > q.Limit {
			in = in[:q.Limit]
		}
		return in, nil
	}

	width, err := core.ParseGranularity(q.Granularity)
	if err != nil {
		return nil, err
	}
	bucketMillis := width.Milliseconds()
	if bucketMillis <= 0 {
		bucketMillis = 1
	}

	out := make([]core.TimeseriesDatapoint, 0)
	for i := 0; i < len(in); {
		bucket := in[i].Timestamp - mod(in[i].Timestamp, bucketMillis)
		j := i
		for j < len(in) && in[j].Timestamp-mod(in[j].Timestamp, bucketMillis) == bucket {
			j++
		}
		out = append(out, aggregate(bucket, in[i:j], q.Aggregates))
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		i = j
	}
	return out, nil
}

func mod(a, b int64) int64 {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}

func aggregate(ts int64, dps []core.TimeseriesDatapoint, aggregates []string) core.TimeseriesDatapoint {
	sum, lo, hi := 0.0, math.Inf(1), math.Inf(-1)
	for _, dp := range dps {
		v := dp.Value.Num
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	n := float64(len(dps))

	out := core.TimeseriesDatapoint{Timestamp: ts}
	for _, agg := range aggregates {
		switch strings.ToLower(agg) {
		case "average":
			out.Average = core.Float64(sum / n)
		case "min":
			out.Min = core.Float64(lo)
		case "max":
			out.Max = core.Float64(hi)
		case "count":
			out.Count = core.Float64(n)
		case "sum":
			out.Sum = core.Float64(sum)
		}
	}
	return out
}

func writeError(w http.ResponseWriter, status int, message string) {
	var body errorResponse
	body.Error.Code = status
	body.Error.Message = message
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
