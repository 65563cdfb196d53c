package postgres

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm/clause"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
)

// ReceiptRepository 回调去重记录，依赖主键冲突保证只占用一次
type ReceiptRepository struct {
	client *Client
}

var _ service.ReceiptStore = (*ReceiptRepository)(nil)

func NewReceiptRepository(client *Client) *ReceiptRepository {
	return &ReceiptRepository{client: client}
}

// Claim INSERT ... ON CONFLICT DO NOTHING，插入成功即占用
func (r *ReceiptRepository) Claim(ctx context.Context, receipt entity.WebhookReceipt) (bool, error) {
	ctx, span := tracer.Start(ctx, "postgres.ReceiptRepository.Claim",
		trace.WithAttributes(attribute.String("receipt.key", receipt.Key)))
	defer span.End()

	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	result := r.client.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&receipt)
	if result.Error != nil {
		span.RecordError(result.Error)
		return false, fmt.Errorf("claim receipt: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *ReceiptRepository) Release(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "postgres.ReceiptRepository.Release")
	defer span.End()

	if err := r.client.db.WithContext(ctx).
		Where("key = ?", key).
		Delete(&entity.WebhookReceipt{}).Error; err != nil {
		span.RecordError(err)
		return fmt.Errorf("release receipt: %w", err)
	}
	return nil
}
