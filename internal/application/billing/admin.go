package billing

import (
	"context"
	"encoding/json"
	"strings"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
	apperrors "credits-gateway/pkg/errors"
	"credits-gateway/pkg/logger"
	"credits-gateway/pkg/metrics"
)

const defaultBetaCredits = 100

// AdminService 管理员列表与内测用户
type AdminService struct {
	guard  *SecretGuard
	ledger service.Ledger
}

func NewAdminService(guard *SecretGuard, ledger service.Ledger) *AdminService {
	return &AdminService{guard: guard, ledger: ledger}
}

func (s *AdminService) Authorize(adminKey string) error {
	return s.guard.Check(adminKey)
}

// UserPage 偏移分页结果
type UserPage struct {
	Users   json.RawMessage `json:"users"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	HasMore bool            `json:"has_more"`
}

func (s *AdminService) ListUsers(ctx context.Context, adminKey string, limit, offset int, accessType string) (*UserPage, error) {
	if err := s.guard.Check(adminKey); err != nil {
		return nil, err
	}
	tier := entity.AccessTier(strings.TrimSpace(accessType))
	if tier != "" && !tier.Valid() {
		return nil, apperrors.Validation("access_type must be one of default, beta, paid, expired")
	}
	q := service.UserListQuery{Limit: normalizeLimit(limit), Offset: max(offset, 0), AccessType: tier}
	out, err := s.ledger.ListUsers(ctx, q)
	if err != nil {
		return nil, err
	}
	return &UserPage{Users: out.Users, Total: out.Total, Limit: q.Limit, Offset: q.Offset, HasMore: out.HasMore}, nil
}

// ListUsersCursor 游标只有 created_at 与 id 同时给出时才转发
func (s *AdminService) ListUsersCursor(ctx context.Context, adminKey string, limit int, cursorCreatedAt, cursorID string) (json.RawMessage, error) {
	if err := s.guard.Check(adminKey); err != nil {
		return nil, err
	}
	q := service.UserCursorQuery{Limit: normalizeLimit(limit)}
	if cursorCreatedAt != "" && cursorID != "" {
		q.CursorCreatedAt = cursorCreatedAt
		q.CursorID = cursorID
	}
	return s.ledger.ListUsersCursor(ctx, q)
}

// AddBetaUser credits 为 nil 或 0 时发放默认 100
func (s *AdminService) AddBetaUser(ctx context.Context, adminKey, username string, credits *float64) (*service.BetaUserResult, error) {
	if err := s.guard.Check(adminKey); err != nil {
		return nil, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperrors.Validation("figma_username is required")
	}
	grant := float64(defaultBetaCredits)
	if credits != nil && *credits != 0 {
		grant = *credits
	}
	if grant < 0 {
		return nil, apperrors.Validation("credits must not be negative")
	}

	out, err := s.ledger.AddBetaUser(ctx, username, grant)
	if err != nil {
		return nil, err
	}
	metrics.CreditsGrantedTotal.WithLabelValues("beta").Add(grant)
	logger.Info(ctx, "beta user added", "figma_username", username, "credits", grant)
	return out, nil
}
