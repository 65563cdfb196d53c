package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"

	"credits-gateway/internal/config"
	"credits-gateway/internal/domain/service"
)

// ProviderAnthropic 走原生 Messages API，其余名称按 OpenAI 兼容接口经 Eino 调用
const ProviderAnthropic = "anthropic"

// Factory 管理多个 ChatProvider 实例
type Factory struct {
	config    *config.LLMConfig
	providers map[string]service.ChatProvider
	mu        sync.RWMutex
}

// NewFactory 创建 LLM 工厂
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		config:    &cfg.LLM,
		providers: make(map[string]service.ChatProvider),
	}
}

// Get 获取指定名称的提供商，未指定时返回 llm.provider
func (f *Factory) Get(ctx context.Context, name string) (service.ChatProvider, error) {
	if name == "" {
		name = f.config.Provider
	}

	f.mu.RLock()
	p, ok := f.providers[name]
	f.mu.RUnlock()
	if ok {
		return p, nil
	}

	// 惰性加载
	f.mu.Lock()
	defer f.mu.Unlock()

	// 再次检查防止竞态
	if p, ok = f.providers[name]; ok {
		return p, nil
	}

	providerCfg, ok := f.config.Providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not found in LLM config", name)
	}

	if name == ProviderAnthropic {
		p = NewMessagesClient(name, providerCfg)
	} else {
		chatModel, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      providerCfg.APIKey,
			BaseURL:     providerCfg.BaseURL,
			Model:       providerCfg.Model,
			MaxTokens:   &providerCfg.MaxTokens,
			Temperature: ptrFloat32(float32(providerCfg.Temperature)),
			Timeout:     f.config.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create eino chat model for %s: %w", name, err)
		}
		p = NewEinoProvider(name, providerCfg.Model, chatModel)
	}

	f.providers[name] = p
	return p, nil
}

// Default 返回配置的默认提供商
func (f *Factory) Default(ctx context.Context) (service.ChatProvider, error) {
	return f.Get(ctx, "")
}

func ptrFloat32(f float32) *float32 {
	return &f
}
