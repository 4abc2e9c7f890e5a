package cdf

import (
	errs "tschart/pkg/error"
)

const (
	// ErrHTTP 表示请求失败或返回了非 2xx 状态码，状态码保存在上下文 status_code 中。
	ErrHTTP errs.ErrorCode = "PROVIDER_HTTP"
	// ErrDecode 表示响应体无法解析。
	ErrDecode errs.ErrorCode = "PROVIDER_DECODE"
	// ErrConfig 表示客户端配置不完整。
	ErrConfig errs.ErrorCode = "PROVIDER_CONFIG"
)
