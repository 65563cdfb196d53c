package service

import (
	"context"

	"credits-gateway/internal/domain/entity"
)

// ReceiptStore 支付回调去重
type ReceiptStore interface {
	// Claim 原子地占用 key，已存在时返回 false
	Claim(ctx context.Context, receipt entity.WebhookReceipt) (bool, error)
	// Release 入账失败后释放占用，允许重投递
	Release(ctx context.Context, key string) error
}
