package limiter

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	errs "tschart/pkg/error"
)

// ErrorLevel 定义错误的严重级别
type ErrorLevel int

const (
	LevelFatal   ErrorLevel = iota // 致命级，立即终止
	LevelNetwork                   // 网络错误，可重试
	LevelInvalid                   // 无效参数，不重试
	LevelUnknown                   // 未知错误
)

// String 返回级别名称
func (l ErrorLevel) String() string {
	switch l {
	case LevelFatal:
		return "fatal"
	case LevelNetwork:
		return "network"
	case LevelInvalid:
		return "invalid"
	}
	return "unknown"
}

// StatusCodeKey 错误上下文中 HTTP 状态码的键
const StatusCodeKey = "status_code"

// MaxRetries 默认最大重试次数
const MaxRetries = 3

// DefaultBackoff 默认重试等待时间，依次对应第 1、2、3 次重试
var DefaultBackoff = []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second}

// ErrorClassifier 负责根据错误类型进行分类
type ErrorClassifier struct {
	backoff []time.Duration
}

// NewErrorClassifier 创建新的错误分类器
func NewErrorClassifier() *ErrorClassifier {
	return NewErrorClassifierWithBackoff(DefaultBackoff)
}

// NewErrorClassifierWithBackoff 使用自定义等待时间创建分类器，重试次数等于等待时间个数
func NewErrorClassifierWithBackoff(backoff []time.Duration) *ErrorClassifier {
	if len(backoff) == 0 {
		backoff = DefaultBackoff
	}
	return &ErrorClassifier{backoff: append([]time.Duration(nil), backoff...)}
}

// MaxRetries 返回最大重试次数
func (c *ErrorClassifier) MaxRetries() int {
	return len(c.backoff)
}

// Classify 根据错误内容分类错误级别。
// 优先使用错误上下文中的 HTTP 状态码，其次匹配错误信息。
func (c *ErrorClassifier) Classify(err error) ErrorLevel {
	if err == nil {
		return LevelUnknown
	}

	if errors.Is(err, context.Canceled) {
		return LevelFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return LevelNetwork
	}

	if status, ok := StatusCode(err); ok {
		return classifyStatus(status)
	}

	msg := strings.ToLower(err.Error())

	// 致命级错误 - 立即终止
	switch {
	case strings.Contains(msg, "connection refused"):
		return LevelFatal
	case strings.Contains(msg, "connection reset") && (!strings.Contains(msg, "read tcp") && !strings.Contains(msg, "write tcp")):
		return LevelFatal // 只有直接连接重置才是致命错误，TCP读写重置是网络错误
	case strings.Contains(msg, "nosuchhost"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "dial tcp"),
		strings.Contains(msg, "dial udp"):
		return LevelFatal
	case strings.Contains(msg, "unauthorized") && strings.Contains(msg, "401"):
		return LevelFatal
	case strings.Contains(msg, "forbidden") && strings.Contains(msg, "403"):
		return LevelFatal
	case strings.Contains(msg, "circuit breaker is open"):
		return LevelFatal
	}

	// 网络错误 - 可重试
	switch {
	case strings.Contains(msg, "timeout"):
		return LevelNetwork
	case strings.Contains(msg, "network is unreachable"):
		return LevelNetwork
	case strings.Contains(msg, "temporary failure"):
		return LevelNetwork
	case strings.Contains(msg, "read tcp") && strings.Contains(msg, "connection reset"):
		return LevelNetwork
	case strings.Contains(msg, "write tcp"):
		return LevelNetwork
	case strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "service unavailable"):
		return LevelNetwork
	}

	// 无效参数
	switch {
	case strings.Contains(msg, "invalid argument"):
		return LevelInvalid
	case strings.Contains(msg, "bad request"):
		return LevelInvalid
	case strings.Contains(msg, "not found") && strings.Contains(msg, "404"):
		return LevelInvalid
	}

	return LevelUnknown
}

// StatusCode 返回错误链中第一个带 HTTP 状态码的错误的状态码
func StatusCode(err error) (int, bool) {
	for ; err != nil; err = errors.Unwrap(err) {
		if be, ok := err.(*errs.BaseError); ok {
			if status, ok := be.ContextInt(StatusCodeKey); ok {
				return status, true
			}
		}
	}
	return 0, false
}

func classifyStatus(status int) ErrorLevel {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return LevelFatal
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return LevelNetwork
	case status >= 400:
		return LevelInvalid
	}
	return LevelUnknown
}

// GetRetryStrategy 根据错误级别提供重试策略，attempt 从 0 开始
func (c *ErrorClassifier) GetRetryStrategy(level ErrorLevel, attempt int) (shouldRetry bool, waitDuration time.Duration) {
	if level != LevelNetwork {
		return false, 0
	}
	if attempt < 0 || attempt >= len(c.backoff) {
		return false, 0
	}
	return true, c.backoff[attempt]
}

// IsRetryAllowedInTime 检查重试是否能在截止时间前完成，截止时间为零值表示不限
func (c *ErrorClassifier) IsRetryAllowedInTime(nextRetryTime time.Time, deadline time.Time) bool {
	if deadline.IsZero() {
		return true
	}
	return nextRetryTime.Before(deadline)
}

// GetRetryMessage 获取重试提示信息
func (c *ErrorClassifier) GetRetryMessage(level ErrorLevel, attempt int, nextWait time.Duration) string {
	switch level {
	case LevelFatal:
		return "致命错误，立即终止操作"
	case LevelNetwork:
		if attempt >= len(c.backoff) {
			return "网络错误已达到最大重试次数，终止此次操作"
		}
		return "网络错误，等待重试..."
	case LevelInvalid:
		return "参数无效，跳过重试"
	case LevelUnknown:
		return "未知错误，跳过重试"
	default:
		return "错误处理中..."
	}
}
