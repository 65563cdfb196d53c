package service

import (
	"context"
	"encoding/json"
	"fmt"

	"credits-gateway/internal/domain/entity"
)

// ChatMessage 对话消息，Role 只允许 user / assistant
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest 一次补全请求
type ChatRequest struct {
	Messages  []ChatMessage
	MaxTokens int
	Model     string
}

// ChatResponse 提供商返回
type ChatResponse struct {
	Content string
	Usage   entity.UsageRecord
	// RawUsage 原样保存的 usage，写入扣费流水 metadata
	RawUsage json.RawMessage
	Raw      json.RawMessage
	Model    string
}

// ChatProvider LLM 提供商
// 超时由调用方通过 ctx 控制，实现方必须尊重 ctx 取消。
type ChatProvider interface {
	Name() string
	Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// ProviderStatusError 提供商返回非 2xx
type ProviderStatusError struct {
	StatusCode int
	Body       string
}

func (e *ProviderStatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.StatusCode, e.Body)
}
