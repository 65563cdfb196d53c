package messaging

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"credits-gateway/internal/domain/service"
	"credits-gateway/pkg/logger"
)

var tracer = otel.Tracer("messaging")

// Producer 消息生产者
type Producer struct {
	client *redis.Client
	maxLen int64
}

// NewProducer 创建消息生产者
func NewProducer(client *redis.Client, maxLen int64) *Producer {
	if maxLen <= 0 {
		maxLen = 100000
	}
	return &Producer{
		client: client,
		maxLen: maxLen,
	}
}

// Publish 发布消息到指定流
func (p *Producer) Publish(ctx context.Context, stream Stream, msg *Message) (string, error) {
	ctx, span := tracer.Start(ctx, "producer.Publish",
		trace.WithAttributes(
			attribute.String("stream", string(stream)),
			attribute.String("message.id", msg.ID),
			attribute.String("message.type", msg.Type),
		))
	defer span.End()

	data, err := json.Marshal(msg)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to marshal message: %w", err)
	}

	result, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: string(stream),
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"data": string(data),
		},
	}).Result()

	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to publish message: %w", err)
	}

	span.SetAttributes(attribute.String("stream.message_id", result))
	return result, nil
}

// StreamPublisher 将计费事件写入 Redis Stream
type StreamPublisher struct {
	producer *Producer
	stream   Stream
}

var _ service.BillingEventPublisher = (*StreamPublisher)(nil)

func NewStreamPublisher(producer *Producer, stream Stream) *StreamPublisher {
	if stream == "" {
		stream = StreamBillingEvents
	}
	return &StreamPublisher{producer: producer, stream: stream}
}

// Publish 附带 request_id / trace_id，便于消费端串联日志
func (p *StreamPublisher) Publish(ctx context.Context, eventType, userID string, payload any) error {
	msg, err := NewMessage(uuid.NewString(), eventType, userID, payload)
	if err != nil {
		return fmt.Errorf("build %s message: %w", eventType, err)
	}

	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok && reqID != "" {
		msg.SetMetadata("request_id", reqID)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		msg.SetMetadata("trace_id", sc.TraceID().String())
	}

	_, err = p.producer.Publish(ctx, p.stream, msg)
	return err
}
