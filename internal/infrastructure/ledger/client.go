// Package ledger 提供账本服务的 HTTP 客户端
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"credits-gateway/internal/config"
	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
	apperrors "credits-gateway/pkg/errors"
	"credits-gateway/pkg/logger"
	"credits-gateway/pkg/metrics"
)

const (
	defaultTimeout = 10 * time.Second
	// 错误响应体只读取前 64KB
	maxErrorBody = 64 << 10
)

// Client 账本客户端，每个操作只发起一次请求
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ service.Ledger = (*Client)(nil)

// NewClient 创建账本客户端
func NewClient(cfg *config.LedgerConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// errorBody 账本错误响应
type errorBody struct {
	Error           string   `json:"error"`
	Details         string   `json:"details"`
	CurrentCredits  *float64 `json:"current_credits"`
	RequiredCredits *float64 `json:"required_credits"`
}

func (c *Client) Debit(ctx context.Context, req service.DebitRequest) (*service.DebitResult, error) {
	var out service.DebitResult
	if err := c.do(ctx, "debit", http.MethodPost, "/user/deduct", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Credit(ctx context.Context, req service.CreditRequest) (*service.CreditResult, error) {
	var out service.CreditResult
	if err := c.do(ctx, "credit", http.MethodPost, "/user/credit", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Purchase(ctx context.Context, req service.PurchaseRequest) (*service.PurchaseResult, error) {
	var out service.PurchaseResult
	if err := c.do(ctx, "purchase", http.MethodPost, "/webhook/purchase", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Account(ctx context.Context, userID string) (*entity.Account, error) {
	var out entity.Account
	q := url.Values{"figma_user_id": {userID}}
	if err := c.do(ctx, "account", http.MethodGet, "/user/credits", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Verify(ctx context.Context, userID, username string) (json.RawMessage, error) {
	body := map[string]string{"figma_user_id": userID, "figma_username": username}
	var out json.RawMessage
	if err := c.do(ctx, "verify", http.MethodPost, "/user/verify", nil, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Transactions(ctx context.Context, q service.TransactionQuery) (json.RawMessage, error) {
	params := url.Values{
		"figma_user_id": {q.UserID},
		"limit":         {strconv.Itoa(q.Limit)},
		"offset":        {strconv.Itoa(q.Offset)},
	}
	var out json.RawMessage
	if err := c.do(ctx, "transactions", http.MethodGet, "/user/transactions", params, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MonthlyCredits(ctx context.Context, userID, username string) (json.RawMessage, error) {
	body := map[string]string{"figma_user_id": userID, "figma_username": username}
	var out json.RawMessage
	if err := c.do(ctx, "monthly_credits", http.MethodPost, "/user/monthly-credits", nil, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) LogWebhook(ctx context.Context, payload entity.WebhookReceivedPayload) error {
	return c.do(ctx, "webhook_log", http.MethodPost, "/webhook/log", nil, payload, nil)
}

func (c *Client) CheckSubscriptions(ctx context.Context) (*service.SubscriptionCheckResult, error) {
	var out service.SubscriptionCheckResult
	if err := c.do(ctx, "check_subscriptions", http.MethodPost, "/subscription/check-expiration", nil, struct{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AdjustCredits(ctx context.Context, req service.AdjustRequest) (*service.AdjustResult, error) {
	var out service.AdjustResult
	if err := c.do(ctx, "adjust_credits", http.MethodPut, "/admin/update-credits", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) AddBetaUser(ctx context.Context, username string, credits float64) (*service.BetaUserResult, error) {
	body := map[string]any{"figma_username": username, "credits": credits}
	var out service.BetaUserResult
	if err := c.do(ctx, "add_beta_user", http.MethodPost, "/admin/add-beta-user", nil, body, &out); err != nil {
		return nil, err
	}
	if out.Username == "" {
		out.Username = username
	}
	return &out, nil
}

func (c *Client) ListUsers(ctx context.Context, q service.UserListQuery) (*service.UserPage, error) {
	params := url.Values{
		"limit":  {strconv.Itoa(q.Limit)},
		"offset": {strconv.Itoa(q.Offset)},
	}
	if q.AccessType != "" {
		params.Set("access_type", string(q.AccessType))
	}
	var out service.UserPage
	if err := c.do(ctx, "list_users", http.MethodGet, "/admin/users", params, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ListUsersCursor(ctx context.Context, q service.UserCursorQuery) (json.RawMessage, error) {
	params := url.Values{"limit": {strconv.Itoa(q.Limit)}}
	if q.CursorCreatedAt != "" && q.CursorID != "" {
		params.Set("cursor_created_at", q.CursorCreatedAt)
		params.Set("cursor_id", q.CursorID)
	}
	var out json.RawMessage
	if err := c.do(ctx, "list_users_cursor", http.MethodGet, "/admin/users-cursor", params, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// do 发送请求并解码响应；out 为 nil 时丢弃响应体
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	start := time.Now()
	status := "ok"
	defer func() {
		if err != nil {
			status = "error"
		}
		metrics.LedgerCallDuration.WithLabelValues(op, status).Observe(time.Since(start).Seconds())
	}()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(ctx, op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperrors.Wrap(err, apperrors.CodeLedgerError, "Database error").
			WithDetail(fmt.Sprintf("Unexpected %s response from ledger", op))
	}
	return nil
}

// decodeError 402 转为余额不足，其余状态码透传
func decodeError(ctx context.Context, op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	logger.Warn(ctx, "ledger returned error status",
		"operation", op, "status", resp.StatusCode, "body", string(raw))

	var body errorBody
	_ = json.Unmarshal(raw, &body)

	if resp.StatusCode == http.StatusPaymentRequired {
		insufficient := &service.InsufficientCreditsError{}
		if body.CurrentCredits != nil {
			insufficient.CurrentCredits = *body.CurrentCredits
		}
		if body.RequiredCredits != nil {
			insufficient.RequiredCredits = *body.RequiredCredits
		}
		return insufficient
	}

	msg := body.Error
	if msg == "" {
		msg = "Database error"
	}
	return apperrors.New(apperrors.CodeLedgerError, msg).
		WithStatus(resp.StatusCode).
		WithDetail(body.Details).
		WithError(fmt.Errorf("ledger %s: status %d", op, resp.StatusCode))
}

func transportError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return apperrors.UpstreamTimeout(err).WithDetail(fmt.Sprintf("Ledger %s timed out", op))
	}
	return apperrors.Wrap(err, apperrors.CodeLedgerError, "Database error").
		WithDetail(fmt.Sprintf("Unable to reach ledger for %s", op))
}
