package platform

import (
	"errors"
	"fmt"
)

// ==================== 错误分类 ====================

// ErrorKind 远程调用错误类别
type ErrorKind string

const (
	KindNotFound    ErrorKind = "not_found"   // 远端资源不存在，本轮不重试
	KindValidation  ErrorKind = "validation"  // 请求数据不合法，需人工处理
	KindTransient   ErrorKind = "transient"   // 网络/5xx，客户端内部已退避重试
	KindConsistency ErrorKind = "consistency" // 本地映射缺失或有歧义，跳过并告警
	KindUnknown     ErrorKind = "unknown"
)

// Error 平台调用错误
type Error struct {
	Kind   ErrorKind
	Op     string // 如 "ebay.GetInventoryItem"
	Status int    // HTTP 状态码，非 HTTP 错误为 0
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.Status > 0 {
		msg += fmt.Sprintf(" (HTTP %d)", e.Status)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// ==================== 构造函数 ====================

func NotFound(op, detail string) error {
	return &Error{Kind: KindNotFound, Op: op, Status: 404, Detail: detail}
}

func Validation(op, detail string) error {
	return &Error{Kind: KindValidation, Op: op, Detail: detail}
}

func Transient(op string, err error) error {
	return &Error{Kind: KindTransient, Op: op, Err: err}
}

func Consistency(op, detail string) error {
	return &Error{Kind: KindConsistency, Op: op, Detail: detail}
}

// FromStatus 根据 HTTP 状态码归类
func FromStatus(op string, status int, body string) error {
	kind := KindUnknown
	switch {
	case status == 404:
		kind = KindNotFound
	case status == 400 || status == 409 || status == 422:
		kind = KindValidation
	case status == 429 || status >= 500:
		kind = KindTransient
	}
	if len(body) > 500 {
		body = body[:500]
	}
	return &Error{Kind: kind, Op: op, Status: status, Detail: body}
}

// ==================== 判定工具 ====================

// KindOf 提取错误类别
func KindOf(err error) ErrorKind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

func IsNotFound(err error) bool    { return KindOf(err) == KindNotFound }
func IsValidation(err error) bool  { return KindOf(err) == KindValidation }
func IsConsistency(err error) bool { return KindOf(err) == KindConsistency }

// IsRetryable 是否值得在下一轮重试
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}
