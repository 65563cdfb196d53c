package llm

import (
	"context"
	"encoding/json"
	"fmt"

	einocallbacks "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
)

// EinoProvider 将 Eino ChatModel 适配为 ChatProvider
// 指标与追踪由 eino/callback 中注册的全局回调负责。
type EinoProvider struct {
	name  string
	model string
	chat  model.BaseChatModel
}

var _ service.ChatProvider = (*EinoProvider)(nil)

func NewEinoProvider(name, modelName string, chat model.BaseChatModel) *EinoProvider {
	return &EinoProvider{name: name, model: modelName, chat: chat}
}

func (p *EinoProvider) Name() string { return p.name }

func (p *EinoProvider) Complete(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error) {
	ctx = service.WithProvider(ctx, p.name)
	ctx = einocallbacks.InitCallbacks(ctx, &einocallbacks.RunInfo{
		Name:      p.name,
		Type:      "ChatProvider",
		Component: components.ComponentOfChatModel,
	})

	input := make([]*schema.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "assistant":
			input = append(input, schema.AssistantMessage(m.Content, nil))
		default:
			input = append(input, schema.UserMessage(m.Content))
		}
	}

	var opts []model.Option
	if req.MaxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(req.MaxTokens))
	}
	if req.Model != "" {
		opts = append(opts, model.WithModel(req.Model))
	}

	out, err := p.chat.Generate(ctx, input, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", p.name, err)
	}
	if out == nil {
		return nil, fmt.Errorf("%s generate: empty message", p.name)
	}

	resp := &service.ChatResponse{Content: out.Content, Model: p.model}
	if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
		u := out.ResponseMeta.Usage
		resp.Usage = entity.NewUsage(int64(u.PromptTokens), int64(u.CompletionTokens))
		// 与 Messages API 的 usage 字段名一致
		resp.RawUsage, _ = json.Marshal(resp.Usage)
	}
	resp.Raw, _ = json.Marshal(out)
	return resp, nil
}
