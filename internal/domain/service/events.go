package service

import "context"

// BillingEventPublisher 发布计费事件
type BillingEventPublisher interface {
	Publish(ctx context.Context, eventType, userID string, payload any) error
}

// NopPublisher 未启用消息队列时使用
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, string, string, any) error { return nil }
