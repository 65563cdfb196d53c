package billing

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
	apperrors "credits-gateway/pkg/errors"
	"credits-gateway/pkg/logger"
	"credits-gateway/pkg/metrics"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 500
)

// AccountService 面向插件用户的账户操作，均为账本的薄封装
type AccountService struct {
	ledger           service.Ledger
	cache            BalanceCache
	debitDescription string
}

func NewAccountService(ledger service.Ledger, cache BalanceCache, debitDescription string) *AccountService {
	if cache == nil {
		cache = NopBalanceCache{}
	}
	return &AccountService{ledger: ledger, cache: cache, debitDescription: debitDescription}
}

// Credits 查询余额，命中缓存时不访问账本
func (s *AccountService) Credits(ctx context.Context, userID string) (*entity.Account, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.Validation("figma_user_id parameter is required")
	}
	return s.cache.GetOrLoad(ctx, userID, func(ctx context.Context) (*entity.Account, error) {
		return s.ledger.Account(ctx, userID)
	})
}

// Verify 首次调用时由账本创建账户
func (s *AccountService) Verify(ctx context.Context, userID, username string) (json.RawMessage, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(username) == "" {
		return nil, apperrors.Validation("Missing figma_user_id or figma_username")
	}
	return s.ledger.Verify(ctx, userID, username)
}

// DebitCommand 直接扣费，CostUSD 为 nil 表示未提供
type DebitCommand struct {
	UserID      string
	CostUSD     *float64
	Description string
	Usage       json.RawMessage
}

// Debit 余额不足时返回 *service.InsufficientCreditsError
func (s *AccountService) Debit(ctx context.Context, cmd DebitCommand) (*service.DebitResult, error) {
	if strings.TrimSpace(cmd.UserID) == "" || cmd.CostUSD == nil {
		return nil, apperrors.Validation("figma_user_id and cost_usd are required")
	}
	if *cmd.CostUSD < 0 {
		return nil, apperrors.Validation("cost_usd must be a non-negative number")
	}
	description := cmd.Description
	if description == "" {
		description = s.debitDescription
	}
	var metadata string
	if len(cmd.Usage) > 0 && string(cmd.Usage) != "null" {
		metadata = string(cmd.Usage)
	}

	out, err := s.ledger.Debit(ctx, service.DebitRequest{
		UserID:      cmd.UserID,
		CostUSD:     *cmd.CostUSD,
		Description: description,
		Metadata:    metadata,
	})
	if err != nil {
		outcome := DebitFailed
		var insufficient *service.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			outcome = DebitInsufficient
			if insufficient.RequiredCredits == 0 {
				insufficient.RequiredCredits = *cmd.CostUSD
			}
		}
		metrics.DebitTotal.WithLabelValues(string(outcome)).Inc()
		return nil, err
	}
	metrics.DebitTotal.WithLabelValues(string(DebitCharged)).Inc()
	_ = s.cache.Invalidate(ctx, cmd.UserID)
	return out, nil
}

// Transactions 分页查询流水
func (s *AccountService) Transactions(ctx context.Context, userID string, limit, offset int) (json.RawMessage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Validation("figma_user_id parameter is required")
	}
	return s.ledger.Transactions(ctx, service.TransactionQuery{
		UserID: userID,
		Limit:  normalizeLimit(limit),
		Offset: max(offset, 0),
	})
}

// MonthlyCredits 触发账本的月度积分发放检查
func (s *AccountService) MonthlyCredits(ctx context.Context, userID, username string) (json.RawMessage, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperrors.Validation("figma_user_id is required")
	}
	logger.Info(ctx, "monthly credits check", "figma_user_id", userID)
	return s.ledger.MonthlyCredits(ctx, userID, username)
}

// SweepSubscriptions 订阅过期检查，HTTP 与 job-worker 共用
func (s *AccountService) SweepSubscriptions(ctx context.Context) (*service.SubscriptionCheckResult, error) {
	logger.Info(ctx, "starting subscription expiration check")
	out, err := s.ledger.CheckSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "subscription check completed",
		"users_checked", out.UsersChecked, "expired_count", out.ExpiredCount)
	return out, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultPageLimit
	}
	return min(limit, maxPageLimit)
}
