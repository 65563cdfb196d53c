package entity

import (
	"encoding/json"
	"time"
)

// 支付回调事件名
const (
	WebhookOrderCreated               = "order_created"
	WebhookSubscriptionPaymentSuccess = "subscription_payment_success"
	WebhookSubscriptionCancelled      = "subscription_cancelled"
)

// WebhookEvent 支付服务推送的事件，只使用一次
type WebhookEvent struct {
	EventName string
	WebhookID string
	DataID    string
	DataType  string
	Order     OrderAttributes
	Raw       []byte
}

// OrderAttributes 订单中参与计费的字段
type OrderAttributes struct {
	UserEmail     string
	TotalCents    float64
	ProductName   string
	VariantName   string
	FigmaUsername string
}

// TotalUSD 订单金额（美元）
func (o OrderAttributes) TotalUSD() float64 {
	return o.TotalCents / 100
}

// Handle 用于记账的用户标识，优先 custom_data.figma_username
func (o OrderAttributes) Handle() string {
	if o.FigmaUsername != "" {
		return o.FigmaUsername
	}
	return o.UserEmail
}

type webhookEnvelope struct {
	Meta struct {
		EventName  string `json:"event_name"`
		WebhookID  string `json:"webhook_id"`
		CustomData struct {
			FigmaUsername string `json:"figma_username"`
		} `json:"custom_data"`
	} `json:"meta"`
	Data struct {
		ID         json.RawMessage `json:"id"`
		Type       string          `json:"type"`
		Attributes struct {
			UserEmail      string      `json:"user_email"`
			Total          json.Number `json:"total"`
			ProductName    string      `json:"product_name"`
			VariantName    string      `json:"variant_name"`
			FirstOrderItem *orderItem  `json:"first_order_item"`
		} `json:"attributes"`
	} `json:"data"`
}

type orderItem struct {
	ProductName string `json:"product_name"`
	VariantName string `json:"variant_name"`
	CustomData  struct {
		FigmaUsername string `json:"figma_username"`
	} `json:"custom_data"`
}

// ParseWebhookEvent 解析回调原始字节
func ParseWebhookEvent(raw []byte) (*WebhookEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	attrs := env.Data.Attributes
	order := OrderAttributes{UserEmail: attrs.UserEmail}
	if total, err := attrs.Total.Float64(); err == nil {
		order.TotalCents = total
	}
	if item := attrs.FirstOrderItem; item != nil {
		order.ProductName = item.ProductName
		order.VariantName = item.VariantName
		order.FigmaUsername = item.CustomData.FigmaUsername
	}
	// 订阅续费事件没有 first_order_item，商品名在 attributes 上
	if order.ProductName == "" {
		order.ProductName = attrs.ProductName
	}
	if order.VariantName == "" {
		order.VariantName = attrs.VariantName
	}
	if order.FigmaUsername == "" {
		order.FigmaUsername = env.Meta.CustomData.FigmaUsername
	}

	return &WebhookEvent{
		EventName: env.Meta.EventName,
		WebhookID: env.Meta.WebhookID,
		DataID:    unquoteID(env.Data.ID),
		DataType:  env.Data.Type,
		Order:     order,
		Raw:       raw,
	}, nil
}

// unquoteID 订单 ID 可能是字符串也可能是数字
func unquoteID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// WebhookReceipt 已处理订单的去重记录
type WebhookReceipt struct {
	Key       string    `json:"key" gorm:"type:varchar(255);primaryKey"`
	EventName string    `json:"event_name" gorm:"type:varchar(64);not null"`
	WebhookID string    `json:"webhook_id,omitempty" gorm:"type:varchar(128)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (WebhookReceipt) TableName() string {
	return "webhook_receipts"
}
