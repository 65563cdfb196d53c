// Package errors 提供统一的错误定义
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode 错误码类型
type ErrorCode string

// 预定义错误码
const (
	// 通用错误 (1xxx)
	CodeSuccess            ErrorCode = "0"
	CodeUnknown            ErrorCode = "1000"
	CodeInvalidParam       ErrorCode = "1001"
	CodeUnauthorized       ErrorCode = "1002"
	CodeForbidden          ErrorCode = "1003"
	CodeNotFound           ErrorCode = "1004"
	CodeConflict           ErrorCode = "1005"
	CodeTooManyRequests    ErrorCode = "1006"
	CodeInternalError      ErrorCode = "1007"
	CodeServiceUnavailable ErrorCode = "1008"
	CodeMethodNotAllowed   ErrorCode = "1009"

	// 认证错误 (2xxx)
	CodeInvalidAdminKey  ErrorCode = "2001"
	CodeInvalidSignature ErrorCode = "2002"

	// 计费业务错误 (3xxx)
	CodeInsufficientCredits ErrorCode = "3001"
	CodeUserNotFound        ErrorCode = "3002"
	CodeInvalidLicense      ErrorCode = "3003"
	CodeLicenseConflict     ErrorCode = "3004"
	CodeDuplicateWebhook    ErrorCode = "3005"

	// 外部服务错误 (5xxx)
	CodeUpstreamTimeout ErrorCode = "5001"
	CodeUpstreamError   ErrorCode = "5002"
	CodeLedgerError     ErrorCode = "5003"
	CodeDatabaseError   ErrorCode = "5004"
	CodeCacheError      ErrorCode = "5005"
)

// AppError 应用错误
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Detail     string    `json:"detail,omitempty"`
	HTTPStatus int       `json:"-"`
	Err        error     `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap 返回底层错误
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail 添加详细信息
func (e *AppError) WithDetail(detail string) *AppError {
	e.Detail = detail
	return e
}

// WithError 添加底层错误
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

// WithStatus 覆盖 HTTP 状态码（上游透传场景）
func (e *AppError) WithStatus(status int) *AppError {
	if status > 0 {
		e.HTTPStatus = status
	}
	return e
}

// IsClientError 上游错误是否为 4xx
func (e *AppError) IsClientError() bool {
	return e.HTTPStatus >= 400 && e.HTTPStatus < 500
}

// New 创建新的应用错误
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

// Wrap 包装错误
func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Err:        err,
	}
}

// codeToHTTPStatus 错误码转 HTTP 状态码
func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case CodeSuccess:
		return http.StatusOK
	case CodeInvalidParam, CodeInvalidLicense:
		return http.StatusBadRequest
	case CodeUnauthorized, CodeInvalidAdminKey, CodeInvalidSignature:
		return http.StatusUnauthorized
	case CodeInsufficientCredits:
		return http.StatusPaymentRequired
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound, CodeUserNotFound:
		return http.StatusNotFound
	case CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case CodeConflict, CodeLicenseConflict, CodeDuplicateWebhook:
		return http.StatusConflict
	case CodeTooManyRequests:
		return http.StatusTooManyRequests
	case CodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case CodeUpstreamTimeout:
		return http.StatusGatewayTimeout
	case CodeUpstreamError, CodeLedgerError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// 错误构造函数。每次返回新实例，避免共享实例被 WithDetail 改写。

func Validation(message string) *AppError { return New(CodeInvalidParam, message) }

func InvalidAdminKey() *AppError { return New(CodeInvalidAdminKey, "Invalid admin key") }

func InvalidSignature() *AppError { return New(CodeInvalidSignature, "Invalid signature") }

func Internal(err error) *AppError {
	return Wrap(err, CodeInternalError, "Internal server error")
}

// UpstreamTimeout 上游调用超时
func UpstreamTimeout(err error) *AppError {
	return Wrap(err, CodeUpstreamTimeout, "Request timeout")
}

// Upstream 上游返回非 2xx，status 透传；status 为 0 时使用 502
func Upstream(status int, message string, err error) *AppError {
	return Wrap(err, CodeUpstreamError, message).WithStatus(status)
}

// IsAppError 检查是否为 AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError 将错误转换为 AppError
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, CodeUnknown, "unknown error")
}

// HasCode 判断错误链上是否存在指定错误码
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
