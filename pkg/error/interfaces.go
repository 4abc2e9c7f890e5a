// Package error 定义带分类代码与上下文的错误类型
package error

import (
	"errors"
	"fmt"
)

// ErrorCode 错误代码，各包以 <包>_<原因> 的形式声明自己的代码
type ErrorCode string

// BaseError 带代码的错误，可包装底层错误并携带键值上下文
type BaseError struct {
	Code    ErrorCode              `json:"code"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// NewError 创建错误
func NewError(code ErrorCode, message string) *BaseError {
	return &BaseError{Code: code, Message: message}
}

// WrapError 包装底层错误
func WrapError(code ErrorCode, message string, cause error) *BaseError {
	return &BaseError{Code: code, Message: message, Cause: cause}
}

func (e *BaseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BaseError) Unwrap() error {
	return e.Cause
}

// Is 代码相同即视为同一错误，便于 errors.Is(err, errs.NewError(code, ""))
func (e *BaseError) Is(target error) bool {
	if t, ok := target.(*BaseError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext 附加上下文并返回自身
func (e *BaseError) WithContext(key string, value interface{}) *BaseError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ContextInt 读取整型上下文
func (e *BaseError) ContextInt(key string) (int, bool) {
	i, ok := e.Context[key].(int)
	return i, ok
}

// CodeOf 返回错误链中最外层 BaseError 的代码
func CodeOf(err error) ErrorCode {
	var be *BaseError
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}

// HasCode 错误链中任意一层带有该代码即返回 true
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if be, ok := err.(*BaseError); ok && be.Code == code {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
