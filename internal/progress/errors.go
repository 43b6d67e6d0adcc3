package progress

import (
	"errors"
	"fmt"
)

// Code 是 contract 失败时返回给调用方的稳定错误码
type Code string

const (
	CodeValidation     Code = "ERR_VALIDATION"
	CodeNotFound       Code = "ERR_NOT_FOUND"
	CodeReversalFailed Code = "ERR_REVERSAL_FAILED"
	CodeInternal       Code = "ERR_INTERNAL"
)

var (
	// ErrValidation 匹配任何带 CodeValidation 的错误
	ErrValidation = &Error{Code: CodeValidation, Message: "validation failed"}
	// ErrNotFound 匹配任何带 CodeNotFound 的错误
	ErrNotFound = &Error{Code: CodeNotFound, Message: "not found"}
	// ErrReversalFailed 匹配任何带 CodeReversalFailed 的错误
	ErrReversalFailed = &Error{Code: CodeReversalFailed, Message: "reversal failed"}
	// ErrInternal 匹配任何带 CodeInternal 的错误
	ErrInternal = &Error{Code: CodeInternal, Message: "internal error"}
)

// Error 是协调器对外返回的结构化错误
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is 按 Code 匹配，errors.Is(err, ErrNotFound) 对所有未找到错误都成立
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func validationError(format string, args ...any) error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func notFoundError(format string, args ...any) error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func reversalError(err error, format string, args ...any) error {
	return &Error{Code: CodeReversalFailed, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf 返回 err 携带的错误码，未分类的错误视为 CodeInternal
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// classify 保留结构化错误，其余一律包装为内部错误
func classify(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Code: CodeInternal, Message: "unexpected failure", Err: err}
}
