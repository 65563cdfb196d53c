package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credits-gateway/internal/config"
	"credits-gateway/internal/domain/service"
)

func newMessagesServer(t *testing.T, status int, body string, inspect func(r *http.Request)) *MessagesClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inspect != nil {
			inspect(r)
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewMessagesClient("anthropic", config.ProviderConfig{
		APIKey:  "sk-test",
		BaseURL: srv.URL,
		Model:   "claude-test",
	})
}

func TestMessagesClient_Complete(t *testing.T) {
	var sent map[string]any
	c := newMessagesServer(t, http.StatusOK,
		`{"model":"claude-test","content":[{"type":"text","text":"hello"}],"usage":{"input_tokens":12,"output_tokens":34}}`,
		func(r *http.Request) {
			assert.Equal(t, "/v1/messages", r.URL.Path)
			assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
			assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&sent))
		})

	resp, err := c.Complete(context.Background(), service.ChatRequest{
		Messages: []service.ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	require.True(t, resp.Usage.Complete())
	assert.Equal(t, int64(12), *resp.Usage.InputTokens)
	assert.Equal(t, int64(34), *resp.Usage.OutputTokens)
	assert.JSONEq(t, `{"input_tokens":12,"output_tokens":34}`, string(resp.RawUsage))
	assert.Contains(t, string(resp.Raw), `"content"`)

	assert.Equal(t, "claude-test", sent["model"])
	assert.Equal(t, float64(defaultMaxTokens), sent["max_tokens"])
}

func TestMessagesClient_QuotedUsageIsNotBillable(t *testing.T) {
	c := newMessagesServer(t, http.StatusOK,
		`{"content":[{"type":"text","text":"hello"}],"usage":{"input_tokens":"12","output_tokens":34}}`, nil)

	resp, err := c.Complete(context.Background(), service.ChatRequest{
		Messages: []service.ChatMessage{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.Usage.InputTokens)
	assert.False(t, resp.Usage.Complete())
}

func TestMessagesClient_FallsBackToMessageField(t *testing.T) {
	c := newMessagesServer(t, http.StatusOK, `{"message":"plain text"}`, nil)

	resp, err := c.Complete(context.Background(), service.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "plain text", resp.Content)
	assert.False(t, resp.Usage.Complete())
}

func TestMessagesClient_UnexpectedShapeYieldsEmptyContent(t *testing.T) {
	c := newMessagesServer(t, http.StatusOK, `{"content":[],"message":{"nested":true}}`, nil)

	resp, err := c.Complete(context.Background(), service.ChatRequest{})
	require.NoError(t, err)
	assert.Empty(t, resp.Content)
}

func TestMessagesClient_StatusError(t *testing.T) {
	c := newMessagesServer(t, http.StatusTooManyRequests, `{"type":"error"}`, nil)

	_, err := c.Complete(context.Background(), service.ChatRequest{})
	var statusErr *service.ProviderStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestMessagesClient_RespectsContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	c := NewMessagesClient("anthropic", config.ProviderConfig{BaseURL: srv.URL})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Complete(ctx, service.ChatRequest{})
	assert.ErrorIs(t, err, context.Canceled)
}

type stubChatModel struct {
	got  []*schema.Message
	out  *schema.Message
	err  error
	opts []model.Option
}

func (m *stubChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.got = input
	m.opts = opts
	return m.out, m.err
}

func (m *stubChatModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestEinoProvider_Complete(t *testing.T) {
	stub := &stubChatModel{out: &schema.Message{
		Role:    schema.Assistant,
		Content: "answer",
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 20},
		},
	}}
	p := NewEinoProvider("openai", "gpt-test", stub)

	resp, err := p.Complete(context.Background(), service.ChatRequest{
		Messages:  []service.ChatMessage{{Role: "user", Content: "q"}, {Role: "assistant", Content: "a"}},
		MaxTokens: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, "answer", resp.Content)
	assert.Equal(t, int64(100), *resp.Usage.InputTokens)
	assert.JSONEq(t, `{"input_tokens":100,"output_tokens":20}`, string(resp.RawUsage))

	require.Len(t, stub.got, 2)
	assert.Equal(t, schema.User, stub.got[0].Role)
	assert.Equal(t, schema.Assistant, stub.got[1].Role)
	assert.Len(t, stub.opts, 1)
}

func TestEinoProvider_NoUsage(t *testing.T) {
	p := NewEinoProvider("openai", "gpt-test", &stubChatModel{out: &schema.Message{Content: "x"}})

	resp, err := p.Complete(context.Background(), service.ChatRequest{})
	require.NoError(t, err)
	assert.False(t, resp.Usage.Complete())
	assert.Nil(t, resp.RawUsage)
}

func TestEinoProvider_Error(t *testing.T) {
	p := NewEinoProvider("openai", "gpt-test", &stubChatModel{err: context.DeadlineExceeded})

	_, err := p.Complete(context.Background(), service.ChatRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFactory(t *testing.T) {
	cfg := &config.Config{LLM: config.LLMConfig{
		Provider: "anthropic",
		Providers: map[string]config.ProviderConfig{
			"anthropic": {APIKey: "k", Model: "claude"},
		},
	}}
	f := NewFactory(cfg)

	p, err := f.Default(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
	assert.IsType(t, &MessagesClient{}, p)

	again, err := f.Get(context.Background(), "anthropic")
	require.NoError(t, err)
	assert.Same(t, p, again)

	_, err = f.Get(context.Background(), "missing")
	assert.Error(t, err)
}
