package billing

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
	apperrors "credits-gateway/pkg/errors"
	"credits-gateway/pkg/logger"
	"credits-gateway/pkg/metrics"
)

// AdjustCommand 管理员调整命令，Delta 为 nil 表示未提供
type AdjustCommand struct {
	AdminKey    string
	UserID      string
	Username    string
	Delta       *float64
	Description string
}

// CreditAdjuster 管理员按增量调整积分，不解释增量含义
type CreditAdjuster struct {
	guard     *SecretGuard
	ledger    service.Ledger
	cache     BalanceCache
	publisher service.BillingEventPublisher
}

func NewCreditAdjuster(guard *SecretGuard, ledger service.Ledger, cache BalanceCache, publisher service.BillingEventPublisher) *CreditAdjuster {
	if cache == nil {
		cache = NopBalanceCache{}
	}
	if publisher == nil {
		publisher = service.NopPublisher{}
	}
	return &CreditAdjuster{guard: guard, ledger: ledger, cache: cache, publisher: publisher}
}

// Authorize 只校验管理员密钥，请求体无法解析时由接口层先调用
func (a *CreditAdjuster) Authorize(adminKey string) error {
	return a.guard.Check(adminKey)
}

// Adjust 先校验管理员密钥，再校验字段
func (a *CreditAdjuster) Adjust(ctx context.Context, cmd AdjustCommand) (*service.AdjustResult, error) {
	if err := a.guard.Check(cmd.AdminKey); err != nil {
		return nil, err
	}

	userID := strings.TrimSpace(cmd.UserID)
	username := strings.TrimSpace(cmd.Username)
	if (userID == "" && username == "") || cmd.Delta == nil {
		return nil, apperrors.Validation("Either figma_user_id or figma_username is required, along with credits_delta")
	}

	delta := *cmd.Delta
	description := strings.TrimSpace(cmd.Description)
	if description == "" {
		description = DefaultAdjustDescription(delta)
	}

	out, err := a.ledger.AdjustCredits(ctx, service.AdjustRequest{
		UserID:      userID,
		Username:    username,
		Delta:       delta,
		Description: description,
	})
	if err != nil {
		logger.Error(ctx, "admin credit adjustment failed", err, "figma_user_id", userID, "figma_username", username)
		return nil, err
	}

	_ = a.cache.Invalidate(ctx, out.UserID)
	if delta > 0 {
		metrics.CreditsGrantedTotal.WithLabelValues("admin").Add(delta)
	}
	logger.Info(ctx, "admin credit adjustment applied",
		"figma_user_id", out.UserID, "previous_credits", out.PreviousCredits, "new_credits", out.NewCredits, "delta", delta)

	if pubErr := a.publisher.Publish(ctx, entity.BillingEventCreditGranted, out.UserID, entity.CreditGrantedPayload{
		UserID:        out.UserID,
		Username:      out.Username,
		Credits:       delta,
		Source:        "admin",
		TransactionID: out.TransactionID,
	}); pubErr != nil {
		logger.Error(ctx, "failed to publish credit event", pubErr)
	}
	return out, nil
}

// DefaultAdjustDescription 审计描述，正数带 + 号
func DefaultAdjustDescription(delta float64) string {
	sign := ""
	if delta > 0 {
		sign = "+"
	}
	return fmt.Sprintf("Admin adjustment: %s%s credits", sign, strconv.FormatFloat(delta, 'f', -1, 64))
}
