package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credits-gateway/internal/config"
	"credits-gateway/internal/domain/entity"
	"credits-gateway/pkg/logger"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCalculateBackoff(t *testing.T) {
	b := BackoffConfig{Initial: time.Second, Max: 5 * time.Second, Multiplier: 2}
	assert.Equal(t, time.Second, b.CalculateBackoff(0))
	assert.Equal(t, 2*time.Second, b.CalculateBackoff(1))
	assert.Equal(t, 4*time.Second, b.CalculateBackoff(2))
	assert.Equal(t, 5*time.Second, b.CalculateBackoff(3))
	assert.Equal(t, 5*time.Second, b.CalculateBackoff(10))
}

func TestBackoffFromConfig(t *testing.T) {
	b := BackoffFromConfig(config.BackoffConfig{Initial: 200 * time.Millisecond})
	assert.Equal(t, 200*time.Millisecond, b.Initial)
	assert.Equal(t, time.Minute, b.Max)
	assert.Equal(t, 2.0, b.Multiplier)
}

func TestLedgerSyncGroup(t *testing.T) {
	assert.Equal(t, ConsumerGroup("credits-ledger-sync"), LedgerSyncGroup(""))
	assert.Equal(t, ConsumerGroup("prod-ledger-sync"), LedgerSyncGroup("prod"))
}

func TestStreamPublisher_Publish(t *testing.T) {
	rdb := newTestRedis(t)
	pub := NewStreamPublisher(NewProducer(rdb, 0), "")

	ctx := logger.WithContext(context.Background(), logger.RequestIDKey, "req-1")
	err := pub.Publish(ctx, entity.BillingEventCreditGranted, "u-1", entity.CreditGrantedPayload{Credits: 10, Source: "purchase"})
	require.NoError(t, err)

	entries, err := rdb.XRange(context.Background(), string(StreamBillingEvents), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)

	msg, ok := decodeMessage(entries[0])
	require.True(t, ok)
	assert.Equal(t, entity.BillingEventCreditGranted, msg.Type)
	assert.Equal(t, "u-1", msg.UserID)
	assert.Equal(t, "req-1", msg.GetMetadata("request_id"))
	assert.NotEmpty(t, msg.ID)

	var payload entity.CreditGrantedPayload
	require.NoError(t, msg.UnmarshalPayload(&payload))
	assert.Equal(t, 10.0, payload.Credits)
}

func newTestConsumer(rdb *redis.Client, retryLimit int) *Consumer {
	return NewConsumer(rdb, ConsumerConfig{
		Stream:        StreamBillingEvents,
		Group:         LedgerSyncGroup("test"),
		ConsumerName:  "worker-1",
		BlockTimeout:  20 * time.Millisecond,
		ClaimInterval: time.Hour,
		RetryLimit:    retryLimit,
		Backoff:       BackoffConfig{Initial: 10 * time.Millisecond, Max: 20 * time.Millisecond, Multiplier: 2},
	})
}

func TestConsumer_DispatchesByType(t *testing.T) {
	rdb := newTestRedis(t)
	pub := NewStreamPublisher(NewProducer(rdb, 0), StreamBillingEvents)
	c := newTestConsumer(rdb, 3)

	var handled int32
	var gotEvent atomic.Value
	c.RegisterHandler(entity.BillingEventWebhookReceived, func(_ context.Context, msg *Message) error {
		var p entity.WebhookReceivedPayload
		if err := msg.UnmarshalPayload(&p); err != nil {
			return err
		}
		gotEvent.Store(p.EventName)
		atomic.AddInt32(&handled, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	require.NoError(t, pub.Publish(ctx, entity.BillingEventWebhookReceived, "", entity.WebhookReceivedPayload{EventName: "order_created"}))
	require.NoError(t, pub.Publish(ctx, "unknown.type", "", map[string]string{}))

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&handled) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "order_created", gotEvent.Load())

	assert.Eventually(t, func() bool {
		pending, err := rdb.XPending(ctx, string(StreamBillingEvents), string(LedgerSyncGroup("test"))).Result()
		return err == nil && pending.Count == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestConsumer_MovesToDLQAfterRetries(t *testing.T) {
	rdb := newTestRedis(t)
	pub := NewStreamPublisher(NewProducer(rdb, 0), StreamBillingEvents)
	c := newTestConsumer(rdb, 1)

	var attempts int32
	c.RegisterHandler(entity.BillingEventDebitFailed, func(context.Context, *Message) error {
		atomic.AddInt32(&attempts, 1)
		return errors.New("ledger unavailable")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()

	require.NoError(t, pub.Publish(ctx, entity.BillingEventDebitFailed, "u-9", entity.DebitFailedPayload{UserID: "u-9"}))

	assert.Eventually(t, func() bool {
		n, err := rdb.XLen(ctx, StreamBillingEvents.DLQStream()).Result()
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(1))
}

func TestConsumer_StartTwice(t *testing.T) {
	rdb := newTestRedis(t)
	c := newTestConsumer(rdb, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Start(ctx))
	defer c.Stop()
	assert.Error(t, c.Start(ctx))
}
