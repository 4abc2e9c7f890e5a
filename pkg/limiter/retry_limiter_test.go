package limiter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(cooldown time.Duration) (*RetryLimiter, *time.Time) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewRetryLimiter(NewErrorClassifierWithBackoff([]time.Duration{time.Millisecond, 2 * time.Millisecond}), cooldown)
	l.now = func() time.Time { return now }
	return l, &now
}

// TestRetryLimiter_Success 测试成功调用不重试
func TestRetryLimiter_Success(t *testing.T) {
	l, _ := newTestLimiter(0)

	ok, err := l.ShouldProceed(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	retry, wait, finalErr := l.RecordResult(context.Background(), nil, 0)
	assert.False(t, retry)
	assert.Zero(t, wait)
	assert.NoError(t, finalErr)
	assert.Equal(t, int64(1), l.GetStatus()["total_requests"])
}

// TestRetryLimiter_NetworkRetries 测试网络错误按退避重试直至耗尽
func TestRetryLimiter_NetworkRetries(t *testing.T) {
	l, _ := newTestLimiter(0)
	netErr := errors.New("i/o timeout")

	retry, wait, finalErr := l.RecordResult(context.Background(), netErr, 0)
	assert.True(t, retry)
	assert.Equal(t, time.Millisecond, wait)
	assert.NoError(t, finalErr)

	retry, wait, _ = l.RecordResult(context.Background(), netErr, 1)
	assert.True(t, retry)
	assert.Equal(t, 2*time.Millisecond, wait)

	retry, _, finalErr = l.RecordResult(context.Background(), netErr, 2)
	assert.False(t, retry)
	require.Error(t, finalErr)
	assert.ErrorIs(t, finalErr, netErr)
	assert.True(t, l.IsSafeToContinue(), "网络错误不会停止限制器")
	assert.Equal(t, int64(2), l.GetStatus()["total_retries"])
}

// TestRetryLimiter_DeadlineStopsRetry 测试重试会超过截止时间时不重试
func TestRetryLimiter_DeadlineStopsRetry(t *testing.T) {
	l, now := newTestLimiter(0)

	ctx, cancel := context.WithDeadline(context.Background(), now.Add(500*time.Microsecond))
	defer cancel()

	retry, _, finalErr := l.RecordResult(ctx, errors.New("i/o timeout"), 0)
	assert.False(t, retry)
	assert.Error(t, finalErr)
}

// TestRetryLimiter_FatalStops 测试致命错误停止限制器
func TestRetryLimiter_FatalStops(t *testing.T) {
	l, _ := newTestLimiter(0)

	retry, _, finalErr := l.RecordResult(context.Background(), errors.New("dial tcp: connection refused"), 0)
	assert.False(t, retry)
	assert.Error(t, finalErr)
	assert.False(t, l.IsSafeToContinue())

	ok, err := l.ShouldProceed(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrStopped)

	l.Reset()
	ok, err = l.ShouldProceed(context.Background())
	assert.True(t, ok)
	assert.NoError(t, err)
}

// TestRetryLimiter_Cooldown 测试冷却后自动恢复
func TestRetryLimiter_Cooldown(t *testing.T) {
	l, now := newTestLimiter(time.Minute)

	l.RecordResult(context.Background(), errors.New("HTTP/1.1 403 Forbidden"), 0)
	ok, _ := l.ShouldProceed(context.Background())
	assert.False(t, ok)

	*now = now.Add(time.Minute)
	assert.True(t, l.IsSafeToContinue())
	ok, err := l.ShouldProceed(context.Background())
	assert.True(t, ok)
	assert.NoError(t, err)
}

// TestRetryLimiter_InvalidNotRetried 测试无效参数不重试
func TestRetryLimiter_InvalidNotRetried(t *testing.T) {
	l, _ := newTestLimiter(0)

	retry, _, finalErr := l.RecordResult(context.Background(), errors.New("HTTP/1.1 400 Bad Request"), 0)
	assert.False(t, retry)
	assert.Error(t, finalErr)
	assert.True(t, l.IsSafeToContinue())
}

// TestRetryLimiter_CancelledContext 测试已取消的上下文不能继续
func TestRetryLimiter_CancelledContext(t *testing.T) {
	l, _ := newTestLimiter(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ok, err := l.ShouldProceed(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
