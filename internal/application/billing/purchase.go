package billing

import (
	"context"
	"fmt"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
	apperrors "credits-gateway/pkg/errors"
	"credits-gateway/pkg/logger"
	"credits-gateway/pkg/metrics"
	"credits-gateway/pkg/tracer"
)

// WebhookAck 返回给支付服务的回执
// 除签名失败外一律 HTTP 200，避免支付服务重试风暴。
type WebhookAck struct {
	Received     bool   `json:"received"`
	Processed    bool   `json:"processed"`
	Duplicate    bool   `json:"duplicate,omitempty"`
	CreditsAdded int64  `json:"credits_added,omitempty"`
	Username     string `json:"figma_username,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	Message      string `json:"message,omitempty"`
	Error        string `json:"error,omitempty"`
	Details      string `json:"details,omitempty"`
}

// PurchaseConfig 入账参数
type PurchaseConfig struct {
	Source string
	// AsyncWebhookLog 为 true 时回调日志经消息队列由 job-worker 写入账本
	AsyncWebhookLog bool
}

// PurchaseIngester 校验回调、去重、解析套餐并入账
type PurchaseIngester struct {
	verifier  *SignatureVerifier
	catalog   *PackageCatalog
	ledger    service.Ledger
	receipts  service.ReceiptStore
	publisher service.BillingEventPublisher
	cache     BalanceCache
	cfg       PurchaseConfig
}

func NewPurchaseIngester(
	verifier *SignatureVerifier,
	catalog *PackageCatalog,
	ledger service.Ledger,
	receipts service.ReceiptStore,
	publisher service.BillingEventPublisher,
	cache BalanceCache,
	cfg PurchaseConfig,
) *PurchaseIngester {
	if publisher == nil {
		publisher = service.NopPublisher{}
	}
	if cache == nil {
		cache = NopBalanceCache{}
	}
	return &PurchaseIngester{
		verifier:  verifier,
		catalog:   catalog,
		ledger:    ledger,
		receipts:  receipts,
		publisher: publisher,
		cache:     cache,
		cfg:       cfg,
	}
}

// Ingest 签名失败返回 AuthError（调用方返回 401）；其余结果都经 acknowledge 整形为回执。
func (p *PurchaseIngester) Ingest(ctx context.Context, raw []byte, signature string) (*WebhookAck, error) {
	ctx, span := tracer.Start(ctx, "billing.PurchaseIngester.Ingest")
	defer span.End()

	if !p.verifier.Verify(raw, signature) {
		err := apperrors.InvalidSignature()
		tracer.RecordError(span, err)
		logger.Warn(ctx, "invalid webhook signature")
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "rejected").Inc()
		return nil, err
	}

	evt, err := entity.ParseWebhookEvent(raw)
	if err != nil {
		return p.acknowledge(ctx, "unknown", nil, apperrors.Validation("Malformed webhook payload").WithError(err)), nil
	}
	ctx = logger.WithContext(ctx, logger.EventKey, evt.EventName)
	ctx = logger.WithContext(ctx, logger.OrderIDKey, evt.DataID)

	p.recordReceived(ctx, evt)

	ack, err := p.dispatch(ctx, evt)
	return p.acknowledge(ctx, evt.EventName, ack, err), nil
}

// Unreadable 请求体读取失败（超限或连接中断）时无法验签，仍按 200 回执，不做任何入账
func (p *PurchaseIngester) Unreadable(ctx context.Context, message string, err error) *WebhookAck {
	return p.acknowledge(ctx, "unknown", nil, apperrors.Validation(message).WithError(err))
}

func (p *PurchaseIngester) dispatch(ctx context.Context, evt *entity.WebhookEvent) (*WebhookAck, error) {
	switch evt.EventName {
	case entity.WebhookOrderCreated, entity.WebhookSubscriptionPaymentSuccess:
		return p.creditOrder(ctx, evt)
	case entity.WebhookSubscriptionCancelled:
		logger.Info(ctx, "subscription cancelled")
		return &WebhookAck{Processed: true, Message: "Subscription cancellation noted"}, nil
	default:
		logger.Info(ctx, "unhandled webhook event")
		return &WebhookAck{
			Processed: false,
			Message:   fmt.Sprintf("Event %s acknowledged but not processed", evt.EventName),
		}, nil
	}
}

func (p *PurchaseIngester) creditOrder(ctx context.Context, evt *entity.WebhookEvent) (*WebhookAck, error) {
	handle := evt.Order.Handle()
	if handle == "" {
		return nil, apperrors.Validation("Figma username required").
			WithDetail("Please provide figma_username in custom_data")
	}
	if evt.DataID == "" {
		return nil, apperrors.Validation("Order identifier missing")
	}

	totalUSD := evt.Order.TotalUSD()
	pkg, matched := p.catalog.Resolve(evt.Order.ProductName, evt.Order.VariantName, totalUSD)
	if pkg.Credits <= 0 {
		return nil, apperrors.Validation("No credits resolvable for order").
			WithDetail(fmt.Sprintf("product=%q variant=%q total=%.2f", evt.Order.ProductName, evt.Order.VariantName, totalUSD))
	}

	key := receiptKey(evt)
	claimed, err := p.receipts.Claim(ctx, entity.WebhookReceipt{Key: key, EventName: evt.EventName, WebhookID: evt.WebhookID})
	if err != nil {
		// 去重存储不可用时不入账，避免重复发放
		return nil, apperrors.Wrap(err, apperrors.CodeInternalError, "Deduplication store unavailable")
	}
	if !claimed {
		metrics.WebhookDuplicatesTotal.Inc()
		logger.Info(ctx, "duplicate webhook order, skipping credit", "receipt_key", key)
		return &WebhookAck{
			Processed: false,
			Duplicate: true,
			Username:  handle,
			Message:   fmt.Sprintf("Order %s already processed", evt.DataID),
		}, nil
	}

	out, err := p.ledger.Purchase(ctx, service.PurchaseRequest{
		Username:    handle,
		Email:       evt.Order.UserEmail,
		Credits:     pkg.Credits,
		USDAmount:   totalUSD,
		ProductName: evt.Order.ProductName,
		VariantName: evt.Order.VariantName,
		OrderID:     evt.DataID,
		WebhookID:   evt.WebhookID,
	})
	if err != nil {
		if relErr := p.receipts.Release(ctx, key); relErr != nil {
			logger.Error(ctx, "failed to release webhook receipt", relErr, "receipt_key", key)
		}
		return nil, apperrors.Wrap(err, apperrors.CodeLedgerError, "Database error processing purchase").
			WithDetail("Credits may not have been added")
	}

	_ = p.cache.Invalidate(ctx, out.UserID)
	metrics.CreditsGrantedTotal.WithLabelValues("purchase").Add(float64(pkg.Credits))
	logger.Info(ctx, "purchase credited",
		"figma_username", handle, "credits", pkg.Credits, "package", pkg.Key, "keyword_match", matched)

	granted := entity.CreditGrantedPayload{
		UserID:        out.UserID,
		Username:      handle,
		Credits:       float64(pkg.Credits),
		Source:        "purchase",
		TransactionID: out.TransactionID,
		OrderID:       evt.DataID,
	}
	if err := p.publisher.Publish(ctx, entity.BillingEventCreditGranted, out.UserID, granted); err != nil {
		logger.Error(ctx, "failed to publish credit event", err)
	}

	return &WebhookAck{
		Processed:    true,
		CreditsAdded: pkg.Credits,
		Username:     handle,
		UserID:       out.UserID,
	}, nil
}

// recordReceived 回调日志写入账本，走消息队列时由 job-worker 转发
func (p *PurchaseIngester) recordReceived(ctx context.Context, evt *entity.WebhookEvent) {
	payload := entity.WebhookReceivedPayload{
		Source:    p.cfg.Source,
		EventName: evt.EventName,
		Payload:   string(evt.Raw),
	}
	if !p.cfg.AsyncWebhookLog {
		if err := p.ledger.LogWebhook(ctx, payload); err != nil {
			logger.Warn(ctx, "failed to log webhook", "error", err.Error())
		}
		return
	}
	if err := p.publisher.Publish(ctx, entity.BillingEventWebhookReceived, "", payload); err != nil {
		logger.Warn(ctx, "failed to enqueue webhook log", "error", err.Error())
	}
}

// acknowledge 统一的回执整形：内部结果只体现在响应体里
func (p *PurchaseIngester) acknowledge(ctx context.Context, eventName string, ack *WebhookAck, err error) *WebhookAck {
	if err != nil {
		appErr := apperrors.AsAppError(err)
		logger.Error(ctx, "webhook processing failed", err)
		metrics.WebhookEventsTotal.WithLabelValues(eventName, "error").Inc()
		return &WebhookAck{
			Received:  true,
			Processed: false,
			Error:     appErr.Message,
			Details:   appErr.Detail,
		}
	}

	ack.Received = true
	outcome := "ignored"
	switch {
	case ack.Duplicate:
		outcome = "duplicate"
	case ack.Processed:
		outcome = "processed"
	}
	metrics.WebhookEventsTotal.WithLabelValues(eventName, outcome).Inc()
	return ack
}

// receiptKey 以订单类型和订单 ID 作为去重键
func receiptKey(evt *entity.WebhookEvent) string {
	kind := evt.DataType
	if kind == "" {
		kind = "orders"
	}
	return kind + ":" + evt.DataID
}
