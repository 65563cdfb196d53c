package billing

import (
	"context"

	"credits-gateway/internal/domain/entity"
)

// BalanceCache 余额查询缓存，积分变动后失效
type BalanceCache interface {
	GetOrLoad(ctx context.Context, userID string, load func(ctx context.Context) (*entity.Account, error)) (*entity.Account, error)
	Invalidate(ctx context.Context, userID string) error
}

// NopBalanceCache 不缓存，直接回源
type NopBalanceCache struct{}

func (NopBalanceCache) GetOrLoad(ctx context.Context, _ string, load func(ctx context.Context) (*entity.Account, error)) (*entity.Account, error) {
	return load(ctx)
}

func (NopBalanceCache) Invalidate(context.Context, string) error { return nil }
