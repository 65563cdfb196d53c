package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"credits-gateway/internal/domain/entity"
)

const balanceKeyPrefix = "credits:balance:"

// BalanceCache 余额读穿缓存，singleflight 合并同一用户的并发回源
type BalanceCache struct {
	client *Client
	ttl    time.Duration
	group  singleflight.Group
}

// NewBalanceCache ttl 为 0 时每次都回源
func NewBalanceCache(client *Client, ttl time.Duration) *BalanceCache {
	return &BalanceCache{client: client, ttl: ttl}
}

func balanceKey(userID string) string {
	return balanceKeyPrefix + userID
}

// GetOrLoad 缓存未命中时调用 load 并写回
func (c *BalanceCache) GetOrLoad(ctx context.Context, userID string, load func(ctx context.Context) (*entity.Account, error)) (*entity.Account, error) {
	if c.ttl <= 0 {
		return load(ctx)
	}

	key := balanceKey(userID)
	ctx, span := tracer.Start(ctx, "cache.GetOrLoad",
		trace.WithAttributes(attribute.String("cache.key", key)))
	defer span.End()

	if acct, ok := c.get(ctx, key); ok {
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return acct, nil
	}
	span.SetAttributes(attribute.Bool("cache.hit", false))

	result, err, shared := c.group.Do(key, func() (any, error) {
		// 再次检查缓存（可能已被其他请求填充）
		if acct, ok := c.get(ctx, key); ok {
			return acct, nil
		}

		acct, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if data, err := json.Marshal(acct); err == nil {
			if err := c.client.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
				// 缓存写入失败不影响返回结果
				span.RecordError(err)
			}
		}
		return acct, nil
	})
	span.SetAttributes(attribute.Bool("cache.shared", shared))
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	acct := *result.(*entity.Account)
	return &acct, nil
}

func (c *BalanceCache) get(ctx context.Context, key string) (*entity.Account, bool) {
	val, err := c.client.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !IsNil(err) {
			trace.SpanFromContext(ctx).RecordError(err)
		}
		return nil, false
	}
	var acct entity.Account
	if err := json.Unmarshal(val, &acct); err != nil {
		return nil, false
	}
	return &acct, true
}

// Invalidate 积分变动后删除缓存
func (c *BalanceCache) Invalidate(ctx context.Context, userID string) error {
	if c.ttl <= 0 || userID == "" {
		return nil
	}
	ctx, span := tracer.Start(ctx, "cache.Invalidate")
	defer span.End()

	if err := c.client.rdb.Del(ctx, balanceKey(userID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("invalidate balance cache: %w", err)
	}
	return nil
}
