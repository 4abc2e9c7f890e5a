package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseGranularity 测试粒度解析
func TestParseGranularity(t *testing.T) {
	tests := map[string]time.Duration{
		"0s":   0,
		"60s":  time.Minute,
		"2m":   2 * time.Minute,
		"1h":   time.Hour,
		"100d": 100 * 24 * time.Hour,
	}
	for token, want := range tests {
		got, err := ParseGranularity(token)
		require.NoError(t, err, token)
		assert.Equal(t, want, got, token)
	}

	for _, bad := range []string{"", "s", "10", "10w", "-1m", "xh"} {
		_, err := ParseGranularity(bad)
		assert.Error(t, err, "非法粒度 %q 应该返回错误", bad)
	}
}
