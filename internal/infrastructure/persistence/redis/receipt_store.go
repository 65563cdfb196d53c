package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
)

// ReceiptStore 基于 SET NX 的回调去重
type ReceiptStore struct {
	client *Client
	prefix string
	ttl    time.Duration
}

var _ service.ReceiptStore = (*ReceiptStore)(nil)

// NewReceiptStore ttl 为 0 时回执永不过期
func NewReceiptStore(client *Client, prefix string, ttl time.Duration) *ReceiptStore {
	return &ReceiptStore{client: client, prefix: prefix, ttl: ttl}
}

// Claim 首次写入返回 true，已存在返回 false
func (s *ReceiptStore) Claim(ctx context.Context, receipt entity.WebhookReceipt) (bool, error) {
	key := s.prefix + receipt.Key
	ctx, span := tracer.Start(ctx, "receipt.Claim",
		trace.WithAttributes(attribute.String("receipt.key", key)))
	defer span.End()

	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(receipt)
	if err != nil {
		return false, fmt.Errorf("marshal receipt: %w", err)
	}

	ok, err := s.client.rdb.SetNX(ctx, key, data, s.ttl).Result()
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("claim receipt: %w", err)
	}
	span.SetAttributes(attribute.Bool("receipt.claimed", ok))
	return ok, nil
}

// Release 入账失败时删除回执，允许重投递
func (s *ReceiptStore) Release(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "receipt.Release")
	defer span.End()

	if err := s.client.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("release receipt: %w", err)
	}
	return nil
}
