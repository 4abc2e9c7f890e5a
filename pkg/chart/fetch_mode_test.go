package chart

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tschart/pkg/core"
)

// TestResolveFetchMode 测试取数模式判定
func TestResolveFetchMode(t *testing.T) {
	tests := []struct {
		name string
		in   FetchModeInput
		want core.FetchMode
	}{
		{"默认阈值内为raw", FetchModeInput{NumberOfPoints: 500}, core.FetchModeRaw},
		{"超过默认阈值为aggregate", FetchModeInput{NumberOfPoints: 501}, core.FetchModeAggregate},
		{"auto等同默认", FetchModeInput{NumberOfPoints: 501, Mode: core.DataFetchModeAuto}, core.FetchModeAggregate},
		{"自定义阈值", FetchModeInput{NumberOfPoints: 200, RawDatapointsLimit: 100}, core.FetchModeAggregate},
		{"自定义阈值边界", FetchModeInput{NumberOfPoints: 100, RawDatapointsLimit: 100}, core.FetchModeRaw},
		{"非正阈值使用默认值", FetchModeInput{NumberOfPoints: 500, RawDatapointsLimit: -1}, core.FetchModeRaw},
		{"强制raw", FetchModeInput{NumberOfPoints: 100000, Mode: core.DataFetchModeRaw}, core.FetchModeRaw},
		{"强制aggregate", FetchModeInput{NumberOfPoints: 1, Mode: core.DataFetchModeAggregate}, core.FetchModeAggregate},
		{"字符串序列总是raw", FetchModeInput{NumberOfPoints: 100000, IsString: true}, core.FetchModeRaw},
		{"字符串序列优先于强制aggregate", FetchModeInput{NumberOfPoints: 10, Mode: core.DataFetchModeAggregate, IsString: true}, core.FetchModeRaw},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveFetchMode(tt.in))
		})
	}
}
