package core

import (
	"fmt"
	"strconv"
	"time"
)

// ParseGranularity 把粒度字符串转换为时长，仅支持 s/m/h/d 单位
func ParseGranularity(token string) (time.Duration, error) {
	if len(token) < 2 {
		return 0, fmt.Errorf("invalid granularity %q", token)
	}
	n, err := strconv.ParseInt(token[:len(token)-1], 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid granularity %q", token)
	}

	var unit time.Duration
	switch token[len(token)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid granularity unit in %q", token)
	}
	return time.Duration(n) * unit, nil
}
