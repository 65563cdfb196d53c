// Package dto 提供 HTTP 层数据传输对象
package dto

import (
	"encoding/json"
	"strconv"

	"github.com/gin-gonic/gin"

	"credits-gateway/internal/domain/service"
)

// ChatRequest 插件发起的单轮对话
type ChatRequest struct {
	Messages       []service.ChatMessage `json:"messages"`
	UserID         string                `json:"figma_user_id"`
	SessionID      string                `json:"sessionId,omitempty"`
	IsFirstMessage *bool                 `json:"isFirstMessage,omitempty"`
}

// DeductRequest 直接扣费，cost_usd 为空表示缺失
type DeductRequest struct {
	UserID      string          `json:"figma_user_id"`
	CostUSD     *float64        `json:"cost_usd"`
	Description string          `json:"description"`
	Usage       json.RawMessage `json:"usage"`
}

type VerifyRequest struct {
	UserID   string `json:"figma_user_id"`
	Username string `json:"figma_username"`
}

type MonthlyCreditsRequest struct {
	UserID   string `json:"figma_user_id"`
	Username string `json:"figma_username"`
}

type RedeemRequest struct {
	UserID     string `json:"figma_user_id"`
	LicenseKey string `json:"license_key"`
}

// UpdateCreditsRequest 管理员调整积分
type UpdateCreditsRequest struct {
	AdminKey     string   `json:"admin_key"`
	UserID       string   `json:"figma_user_id"`
	Username     string   `json:"figma_username"`
	CreditsDelta *float64 `json:"credits_delta"`
	Description  string   `json:"description"`
}

type AddBetaUserRequest struct {
	AdminKey string   `json:"admin_key"`
	Username string   `json:"figma_username"`
	Credits  *float64 `json:"credits"`
}

// LimitOffset 分页参数
type LimitOffset struct {
	Limit  int
	Offset int
}

// BindLimitOffset 从 query 绑定分页参数，解析失败时取默认值，范围由服务层规范化
func BindLimitOffset(c *gin.Context, defaultLimit int) LimitOffset {
	return LimitOffset{
		Limit:  parseIntWithDefault(c.Query("limit"), defaultLimit),
		Offset: parseIntWithDefault(c.Query("offset"), 0),
	}
}

// parseIntWithDefault 解析整数，失败时返回默认值
func parseIntWithDefault(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}
