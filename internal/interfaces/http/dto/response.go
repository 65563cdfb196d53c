// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"credits-gateway/internal/domain/service"
	apperrors "credits-gateway/pkg/errors"
	"credits-gateway/pkg/tracer"
)

// ErrorResponse 错误响应，字段与插件客户端约定一致
type ErrorResponse struct {
	Error   string              `json:"error"`
	Details string              `json:"details,omitempty"`
	Code    apperrors.ErrorCode `json:"code,omitempty"`
	TraceID string              `json:"trace_id,omitempty"`
}

// InsufficientCreditsResponse 402 响应，不包含生成内容
type InsufficientCreditsResponse struct {
	Error               string          `json:"error"`
	InsufficientCredits bool            `json:"insufficient_credits"`
	CurrentCredits      float64         `json:"current_credits"`
	RequiredCredits     float64         `json:"required_credits"`
	Usage               json.RawMessage `json:"usage,omitempty"`
	Cost                any             `json:"cost,omitempty"`
}

// OK 返回 200 和原样的 JSON 体
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error 返回错误响应
func Error(c *gin.Context, httpCode int, message, details string) {
	c.JSON(httpCode, ErrorResponse{
		Error:   message,
		Details: details,
		TraceID: tracer.TraceID(c.Request.Context()),
	})
}

// InsufficientCredits 返回 402
func InsufficientCredits(c *gin.Context, resp InsufficientCreditsResponse) {
	resp.Error = "Insufficient credits"
	resp.InsufficientCredits = true
	c.JSON(http.StatusPaymentRequired, resp)
}

// Fail 将错误映射为 HTTP 响应
func Fail(c *gin.Context, err error) {
	var insufficient *service.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		InsufficientCredits(c, InsufficientCreditsResponse{
			CurrentCredits:  insufficient.CurrentCredits,
			RequiredCredits: insufficient.RequiredCredits,
		})
		return
	}

	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		if errors.Is(err, context.DeadlineExceeded) {
			appErr = apperrors.UpstreamTimeout(err)
		} else {
			appErr = apperrors.Internal(err)
		}
	}
	_ = c.Error(err)

	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.JSON(status, ErrorResponse{
		Error:   appErr.Message,
		Details: appErr.Detail,
		Code:    appErr.Code,
		TraceID: tracer.TraceID(c.Request.Context()),
	})
}

// MethodNotAllowed 405
func MethodNotAllowed(c *gin.Context) {
	Error(c, http.StatusMethodNotAllowed, "Method not allowed", "")
}

// NotFound 404
func NotFound(c *gin.Context) {
	Error(c, http.StatusNotFound, "Not found", "")
}
