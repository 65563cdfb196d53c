package dto

import (
	"encoding/json"
	"time"

	"credits-gateway/internal/application/billing"
	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
)

// ChatResponse 对话成功响应，raw_response 为提供商原始响应
type ChatResponse struct {
	Content          string          `json:"content"`
	Usage            json.RawMessage `json:"usage,omitempty"`
	Cost             *billing.Cost   `json:"cost,omitempty"`
	SessionID        string          `json:"sessionId,omitempty"`
	IsFirstMessage   *bool           `json:"isFirstMessage,omitempty"`
	RemainingCredits *float64        `json:"remaining_credits,omitempty"`
	TransactionID    string          `json:"transaction_id,omitempty"`
	CreditsDeducted  float64         `json:"credits_deducted"`
	RawResponse      json.RawMessage `json:"raw_response,omitempty"`
}

func NewChatResponse(res *billing.ChatTurnResult) ChatResponse {
	return ChatResponse{
		Content:          res.Content,
		Usage:            res.Usage,
		Cost:             res.Cost,
		SessionID:        res.SessionID,
		IsFirstMessage:   res.IsFirstMessage,
		RemainingCredits: res.RemainingCredits,
		TransactionID:    res.TransactionID,
		CreditsDeducted:  res.CreditsDeducted,
		RawResponse:      res.Raw,
	}
}

// NewChatInsufficientResponse 余额不足时只返回用量与费用
func NewChatInsufficientResponse(res *billing.ChatTurnResult) InsufficientCreditsResponse {
	resp := InsufficientCreditsResponse{
		CurrentCredits:  res.CurrentCredits,
		RequiredCredits: res.RequiredCredits,
		Usage:           res.Usage,
	}
	if res.Cost != nil {
		resp.Cost = res.Cost
	}
	return resp
}

// CreditsResponse 余额查询响应
type CreditsResponse struct {
	UserID                string            `json:"figma_user_id"`
	Credits               float64           `json:"credits"`
	AccessType            entity.AccessTier `json:"access_type"`
	TotalCreditsPurchased float64           `json:"total_credits_purchased"`
	TotalCreditsUsed      float64           `json:"total_credits_used"`
}

func NewCreditsResponse(a *entity.Account) CreditsResponse {
	return CreditsResponse{
		UserID:                a.UserID,
		Credits:               a.Credits,
		AccessType:            a.AccessType,
		TotalCreditsPurchased: a.TotalCreditsPurchased,
		TotalCreditsUsed:      a.TotalCreditsUsed,
	}
}

type DeductResponse struct {
	Success          bool    `json:"success"`
	UserID           string  `json:"figma_user_id"`
	RemainingCredits float64 `json:"remaining_credits"`
	CostUSD          float64 `json:"cost_usd"`
	TransactionID    string  `json:"transaction_id"`
}

func NewDeductResponse(out *service.DebitResult, cost float64) DeductResponse {
	return DeductResponse{
		Success:          true,
		UserID:           out.UserID,
		RemainingCredits: out.RemainingCredits,
		CostUSD:          cost,
		TransactionID:    out.TransactionID,
	}
}

// RedeemResponse 许可证兑换响应
type RedeemResponse struct {
	Success bool `json:"success"`
	*billing.RedeemResult
}

type SubscriptionCheckResponse struct {
	Success      bool      `json:"success"`
	Timestamp    time.Time `json:"timestamp"`
	UsersChecked int       `json:"users_checked"`
	ExpiredCount int       `json:"expired_count"`
	Message      string    `json:"message"`
}

type UpdateCreditsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*service.AdjustResult
}

type AddBetaUserResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	*service.BetaUserResult
}
