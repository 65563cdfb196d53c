package billing

import (
	"context"
	"encoding/json"
	"fmt"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
	"credits-gateway/pkg/logger"
)

// EventProcessor job-worker 消费计费事件
// 返回错误时消息留在队列中重试，超过上限进入死信队列。
type EventProcessor struct {
	ledger service.Ledger
	cache  BalanceCache
}

func NewEventProcessor(ledger service.Ledger, cache BalanceCache) *EventProcessor {
	if cache == nil {
		cache = NopBalanceCache{}
	}
	return &EventProcessor{ledger: ledger, cache: cache}
}

// HandleWebhookReceived 将回调原文写入账本的 webhook 日志
func (p *EventProcessor) HandleWebhookReceived(ctx context.Context, payload json.RawMessage) error {
	var evt entity.WebhookReceivedPayload
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("decode webhook payload: %w", err)
	}
	if err := p.ledger.LogWebhook(ctx, evt); err != nil {
		return fmt.Errorf("log webhook %s: %w", evt.EventName, err)
	}
	logger.Debug(ctx, "webhook logged", "event_name", evt.EventName)
	return nil
}

// HandleCreditGranted 使其他实例上的余额缓存失效
func (p *EventProcessor) HandleCreditGranted(ctx context.Context, payload json.RawMessage) error {
	var evt entity.CreditGrantedPayload
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("decode credit payload: %w", err)
	}
	if evt.UserID != "" {
		if err := p.cache.Invalidate(ctx, evt.UserID); err != nil {
			return fmt.Errorf("invalidate balance: %w", err)
		}
	}
	logger.Info(ctx, "credits granted",
		"source", evt.Source, "credits", evt.Credits, "transaction_id", evt.TransactionID, "order_id", evt.OrderID)
	return nil
}

// HandleDebitFailed 记录未入账的消耗，供人工对账
func (p *EventProcessor) HandleDebitFailed(ctx context.Context, payload json.RawMessage) error {
	var evt entity.DebitFailedPayload
	if err := json.Unmarshal(payload, &evt); err != nil {
		return fmt.Errorf("decode debit payload: %w", err)
	}
	logger.Warn(ctx, "unbilled usage recorded for reconciliation",
		"figma_user_id", evt.UserID, "cost_usd", evt.CostUSD, "reason", evt.Reason)
	return nil
}
