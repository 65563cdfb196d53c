// Package handler 提供 HTTP 请求处理器
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"credits-gateway/internal/interfaces/http/dto"
	"credits-gateway/pkg/logger"
)

// bindJSON 解析请求体，失败时直接写 400
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		dto.Error(c, http.StatusBadRequest, "Invalid JSON body", err.Error())
		return false
	}
	return true
}

// withUser 把插件用户 ID 写入日志上下文和审计字段
func withUser(c *gin.Context, userID string) {
	if userID == "" {
		return
	}
	c.Set("figma_user_id", userID)
	c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), logger.UserIDKey, userID))
}
