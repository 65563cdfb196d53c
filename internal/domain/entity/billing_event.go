package entity

// 计费事件类型，写入 Redis Stream 由 job-worker 消费
const (
	BillingEventWebhookReceived = "webhook.received"
	BillingEventDebitFailed     = "debit.failed"
	BillingEventCreditGranted   = "credit.granted"
)

// WebhookReceivedPayload 需要转发到账本 webhook 日志的回调
type WebhookReceivedPayload struct {
	Source    string `json:"webhook_type"`
	EventName string `json:"event_name"`
	Payload   string `json:"payload"`
}

// DebitFailedPayload 非余额不足的扣费失败，供对账使用
type DebitFailedPayload struct {
	UserID  string      `json:"figma_user_id"`
	CostUSD float64     `json:"cost_usd"`
	Usage   UsageRecord `json:"usage"`
	Reason  string      `json:"reason"`
}

// CreditGrantedPayload 积分发放记录
type CreditGrantedPayload struct {
	UserID        string  `json:"figma_user_id,omitempty"`
	Username      string  `json:"figma_username,omitempty"`
	Credits       float64 `json:"credits"`
	Source        string  `json:"source"`
	TransactionID string  `json:"transaction_id,omitempty"`
	OrderID       string  `json:"order_id,omitempty"`
}
