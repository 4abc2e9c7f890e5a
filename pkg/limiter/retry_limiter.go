package limiter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrStopped 限制器因致命错误停止
var ErrStopped = errors.New("limiter stopped after fatal error")

// RetryLimiter 重试限制器，统筹一个提供商所有调用的重试与停止策略
// 致命错误会使限制器停止，直到 Reset 或冷却时间结束
type RetryLimiter struct {
	mu         sync.RWMutex
	classifier *ErrorClassifier
	cooldown   time.Duration
	now        func() time.Time

	lastError error
	stoppedAt time.Time
	stopped   bool

	// 统计信息
	totalRequests   int64
	totalErrors     int64
	totalRetries    int64
	lastRequestTime time.Time
}

// NewRetryLimiter 创建重试限制器，cooldown 为 0 表示致命错误后不自动恢复
func NewRetryLimiter(classifier *ErrorClassifier, cooldown time.Duration) *RetryLimiter {
	if classifier == nil {
		classifier = NewErrorClassifier()
	}
	return &RetryLimiter{
		classifier: classifier,
		cooldown:   cooldown,
		now:        time.Now,
	}
}

// Classifier 返回使用的错误分类器
func (l *RetryLimiter) Classifier() *ErrorClassifier {
	return l.classifier
}

// ShouldProceed 判断是否可以发起调用
func (l *RetryLimiter) ShouldProceed(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.stopped {
		if l.cooldown > 0 && l.now().Sub(l.stoppedAt) >= l.cooldown {
			l.stopped = false
			l.lastError = nil
			return true, nil
		}
		return false, fmt.Errorf("%w: %v", ErrStopped, l.lastError)
	}
	return true, nil
}

// RecordResult 记录一次调用结果，attempt 为本次调用已重试的次数。
// 返回是否应当重试、重试前的等待时间，以及不再重试时的最终错误。
func (l *RetryLimiter) RecordResult(ctx context.Context, err error, attempt int) (shouldRetry bool, wait time.Duration, finalErr error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastRequestTime = l.now()
	l.totalRequests++

	if err == nil {
		l.lastError = nil
		return false, 0, nil
	}

	l.totalErrors++
	l.lastError = err

	level := l.classifier.Classify(err)
	switch level {
	case LevelFatal:
		l.stopped = true
		l.stoppedAt = l.now()
		return false, 0, fmt.Errorf("fatal error: %w", err)

	case LevelNetwork:
		retry, waitDuration := l.classifier.GetRetryStrategy(level, attempt)
		if !retry {
			return false, 0, fmt.Errorf("retries exhausted after %d attempts: %w", attempt+1, err)
		}

		var deadline time.Time
		if d, ok := ctx.Deadline(); ok {
			deadline = d
		}
		if !l.classifier.IsRetryAllowedInTime(l.now().Add(waitDuration), deadline) {
			return false, 0, fmt.Errorf("retry would exceed deadline: %w", err)
		}

		l.totalRetries++
		return true, waitDuration, nil
	}

	return false, 0, fmt.Errorf("non-retryable error: %w", err)
}

// IsSafeToContinue 检查是否安全继续
func (l *RetryLimiter) IsSafeToContinue() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if !l.stopped {
		return true
	}
	return l.cooldown > 0 && l.now().Sub(l.stoppedAt) >= l.cooldown
}

// GetStatus 获取限制器当前状态
func (l *RetryLimiter) GetStatus() map[string]interface{} {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return map[string]interface{}{
		"stopped":           l.stopped,
		"has_last_error":    l.lastError != nil,
		"last_request_time": l.lastRequestTime,
		"total_requests":    l.totalRequests,
		"total_errors":      l.totalErrors,
		"total_retries":     l.totalRetries,
		"max_retries":       l.classifier.MaxRetries(),
	}
}

// Reset 重置限制器状态
func (l *RetryLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.lastError = nil
	l.stopped = false
	l.stoppedAt = time.Time{}
	l.totalRequests = 0
	l.totalErrors = 0
	l.totalRetries = 0
}
