// Package llm 提供 LLM 提供商实现
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"credits-gateway/internal/config"
	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
	"credits-gateway/pkg/metrics"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicVersion = "2023-06-01"
	defaultMaxTokens        = 8192

	maxProviderErrorBody = 64 << 10
)

// MessagesClient Anthropic Messages API 客户端
// 不设置 http.Client 超时，由调用方的 ctx 控制。
type MessagesClient struct {
	name       string
	baseURL    string
	apiKey     string
	apiVersion string
	model      string
	maxTokens  int
	httpClient *http.Client
}

var _ service.ChatProvider = (*MessagesClient)(nil)

// NewMessagesClient 创建 Messages API 客户端
func NewMessagesClient(name string, cfg config.ProviderConfig) *MessagesClient {
	c := &MessagesClient{
		name:       name,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		apiVersion: cfg.APIVersion,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	if c.baseURL == "" {
		c.baseURL = defaultAnthropicBaseURL
	}
	if c.apiVersion == "" {
		c.apiVersion = defaultAnthropicVersion
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	return c
}

func (c *MessagesClient) Name() string { return c.name }

type messagesRequest struct {
	Model     string                `json:"model"`
	MaxTokens int                   `json:"max_tokens"`
	Messages  []service.ChatMessage `json:"messages"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Message json.RawMessage `json:"message"`
	Usage   json.RawMessage `json:"usage"`
}

// Complete 发送一次 Messages 请求，内容取第一个 content 块的文本
func (c *MessagesClient) Complete(ctx context.Context, req service.ChatRequest) (resp *service.ChatResponse, err error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
		}
		metrics.LLMCallTotal.WithLabelValues(c.name, model, status).Inc()
		metrics.LLMCallDuration.WithLabelValues(c.name, model).Observe(time.Since(start).Seconds())
	}()

	payload, err := json.Marshal(messagesRequest{Model: model, MaxTokens: maxTokens, Messages: req.Messages})
	if err != nil {
		return nil, fmt.Errorf("marshal messages request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build messages request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.apiVersion)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("messages request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxProviderErrorBody))
		return nil, &service.ProviderStatusError{StatusCode: httpResp.StatusCode, Body: string(body)}
	}

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read messages response: %w", err)
	}
	var parsed messagesResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode messages response: %w", err)
	}

	usage := entity.ParseUsage(parsed.Usage)
	recordTokens(c.name, model, usage)

	return &service.ChatResponse{
		Content:  extractText(parsed),
		Usage:    usage,
		RawUsage: parsed.Usage,
		Raw:      raw,
		Model:    firstNonEmpty(parsed.Model, model),
	}, nil
}

// extractText content[0].text 优先，其次是字符串类型的 message 字段
func extractText(r messagesResponse) string {
	if len(r.Content) > 0 && r.Content[0].Text != "" {
		return r.Content[0].Text
	}
	var msg string
	if len(r.Message) > 0 && json.Unmarshal(r.Message, &msg) == nil {
		return msg
	}
	return ""
}

func recordTokens(provider, model string, usage entity.UsageRecord) {
	if usage.InputTokens != nil {
		metrics.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(*usage.InputTokens))
	}
	if usage.OutputTokens != nil {
		metrics.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(*usage.OutputTokens))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
