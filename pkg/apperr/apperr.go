// Package apperr 定义统一的错误分类，供接口层映射 HTTP 状态码。
// 分类语义：
//   - Validation：入参非法（粒度、horizon 越界等），400
//   - Precondition：数据不足（历史不足 90 天等），400，未持久化任何内容
//   - NotFound：目标不存在或不属于调用方公司（不泄露跨租户存在性），404
//   - Conflict：重复的 active 预测运行、非法状态迁移，409
//   - Upstream：预测 worker 不可达，仅记录日志，不作为请求失败透出
//   - Integrity：存储层约束意外失败，500，生产环境不暴露细节
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 错误分类
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindPrecondition
	KindNotFound
	KindConflict
	KindUpstream
	KindIntegrity
)

// Error 携带分类与细节的业务错误
type Error struct {
	kind    Kind
	message string
	// 字段级细节，Validation 错误透出给调用方
	Fields map[string]string
	cause  error
}

// Error 实现 error 接口
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap 返回底层错误
func (e *Error) Unwrap() error { return e.cause }

// Kind 返回分类
func (e *Error) Kind() Kind { return e.kind }

// Message 返回对外消息
func (e *Error) Message() string { return e.message }

// WithField 追加字段级细节
func (e *Error) WithField(field, detail string) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = detail
	return e
}

// WithCause 包装底层错误
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Validation 创建入参校验错误
func Validation(format string, args ...any) *Error {
	return newError(KindValidation, format, args...)
}

// Precondition 创建前置条件错误
func Precondition(format string, args ...any) *Error {
	return newError(KindPrecondition, format, args...)
}

// NotFound 创建未找到错误
func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

// Conflict 创建冲突错误
func Conflict(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// Upstream 创建上游错误
func Upstream(format string, args ...any) *Error {
	return newError(KindUpstream, format, args...)
}

// Integrity 创建存储完整性错误
func Integrity(format string, args ...any) *Error {
	return newError(KindIntegrity, format, args...)
}

// KindOf 提取错误分类，非业务错误归为 Unknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// IsKind 判断错误是否属于指定分类
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Status 将错误映射为 HTTP 状态码
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation, KindPrecondition:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Body 构造对外响应体。非业务错误与 Integrity 错误一律脱敏。
func Body(err error) map[string]any {
	var e *Error
	if !errors.As(err, &e) || e.kind == KindIntegrity || e.kind == KindUnknown {
		return map[string]any{"error": "internal server error"}
	}
	body := map[string]any{"error": e.message}
	if len(e.Fields) > 0 {
		body["fields"] = e.Fields
	}
	return body
}
