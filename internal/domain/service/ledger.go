// Package service 定义领域端口，由基础设施层实现
package service

import (
	"context"
	"encoding/json"
	"fmt"

	"credits-gateway/internal/domain/entity"
)

// Ledger 外部账本服务契约
// 每个请求由账本按账户原子执行；本服务只发起一次调用，不做重试。
type Ledger interface {
	// Debit 扣费，余额不足时返回 *InsufficientCreditsError
	Debit(ctx context.Context, req DebitRequest) (*DebitResult, error)
	// Credit 直接加积分（许可证兑换）
	Credit(ctx context.Context, req CreditRequest) (*CreditResult, error)
	// Purchase 记录一次支付并加积分
	Purchase(ctx context.Context, req PurchaseRequest) (*PurchaseResult, error)
	// Account 查询账户余额
	Account(ctx context.Context, userID string) (*entity.Account, error)
	Verify(ctx context.Context, userID, username string) (json.RawMessage, error)
	Transactions(ctx context.Context, q TransactionQuery) (json.RawMessage, error)
	MonthlyCredits(ctx context.Context, userID, username string) (json.RawMessage, error)
	LogWebhook(ctx context.Context, payload entity.WebhookReceivedPayload) error
	CheckSubscriptions(ctx context.Context) (*SubscriptionCheckResult, error)

	AdjustCredits(ctx context.Context, req AdjustRequest) (*AdjustResult, error)
	AddBetaUser(ctx context.Context, username string, credits float64) (*BetaUserResult, error)
	ListUsers(ctx context.Context, q UserListQuery) (*UserPage, error)
	ListUsersCursor(ctx context.Context, q UserCursorQuery) (json.RawMessage, error)
}

// InsufficientCreditsError 账本拒绝扣费：余额不足
type InsufficientCreditsError struct {
	CurrentCredits  float64
	RequiredCredits float64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient credits: have %.6f, need %.6f", e.CurrentCredits, e.RequiredCredits)
}

// DebitRequest 扣费请求，Metadata 为 JSON 字符串
type DebitRequest struct {
	UserID      string  `json:"figma_user_id"`
	CostUSD     float64 `json:"cost_usd"`
	Description string  `json:"description"`
	Metadata    string  `json:"metadata,omitempty"`
}

type DebitResult struct {
	UserID           string  `json:"figma_user_id"`
	RemainingCredits float64 `json:"remaining_credits"`
	TransactionID    string  `json:"transaction_id"`
}

// CreditRequest 加积分请求
type CreditRequest struct {
	UserID      string            `json:"figma_user_id"`
	Credits     float64           `json:"credits"`
	Source      string            `json:"source"`
	Description string            `json:"description"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type CreditResult struct {
	UserID        string  `json:"figma_user_id"`
	NewCredits    float64 `json:"new_credits"`
	TransactionID string  `json:"transaction_id"`
}

// PurchaseRequest 支付入账请求
type PurchaseRequest struct {
	Username    string  `json:"figma_username"`
	Email       string  `json:"email,omitempty"`
	Credits     int64   `json:"credits"`
	USDAmount   float64 `json:"usd_amount"`
	ProductName string  `json:"product_name,omitempty"`
	VariantName string  `json:"variant_name,omitempty"`
	OrderID     string  `json:"order_id"`
	WebhookID   string  `json:"webhook_id,omitempty"`
}

type PurchaseResult struct {
	UserID        string `json:"figma_user_id"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// AdjustRequest 管理员调整，UserID 与 Username 至少一个
type AdjustRequest struct {
	UserID      string  `json:"figma_user_id,omitempty"`
	Username    string  `json:"figma_username,omitempty"`
	Delta       float64 `json:"credits_delta"`
	Description string  `json:"description"`
}

type AdjustResult struct {
	UserID          string  `json:"figma_user_id"`
	Username        string  `json:"figma_username"`
	PreviousCredits float64 `json:"previous_credits"`
	NewCredits      float64 `json:"new_credits"`
	Delta           float64 `json:"credits_delta"`
	TransactionID   string  `json:"transaction_id"`
}

type BetaUserResult struct {
	Username   string            `json:"figma_username"`
	Credits    float64           `json:"credits"`
	AccessType entity.AccessTier `json:"access_type"`
}

type TransactionQuery struct {
	UserID string
	Limit  int
	Offset int
}

type UserListQuery struct {
	Limit      int
	Offset     int
	AccessType entity.AccessTier
}

type UserPage struct {
	Users   json.RawMessage `json:"users"`
	Total   int64           `json:"total"`
	HasMore bool            `json:"has_more"`
}

// UserCursorQuery 游标分页，CreatedAt 与 ID 同时存在才生效
type UserCursorQuery struct {
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

type SubscriptionCheckResult struct {
	UsersChecked int `json:"users_checked"`
	ExpiredCount int `json:"expired_count"`
}
