package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credits-gateway/internal/domain/entity"
	apperrors "credits-gateway/pkg/errors"
)

const testWebhookSecret = "whsec_test"

func orderPayload(event, id, product string, totalCents int, username string) []byte {
	return []byte(fmt.Sprintf(`{
  "meta": {"event_name": %q, "webhook_id": "wh-1"},
  "data": {
    "id": %q,
    "type": "orders",
    "attributes": {
      "user_email": "buyer@example.com",
      "total": %d,
      "first_order_item": {
        "product_name": %q,
        "variant_name": "Default",
        "custom_data": {"figma_username": %q}
      }
    }
  }
}`, event, id, totalCents, product, username))
}

type ingesterFixture struct {
	ingester *PurchaseIngester
	ledger   *fakeLedger
	receipts *fakeReceipts
	pub      *fakePublisher
}

func newIngesterFixture(secret string) *ingesterFixture {
	f := &ingesterFixture{
		ledger:   newFakeLedger(0),
		receipts: newFakeReceipts(),
		pub:      &fakePublisher{},
	}
	f.ingester = NewPurchaseIngester(
		NewSignatureVerifier(secret, "sha256="),
		NewPackageCatalog(defaultPackages(), 20),
		f.ledger, f.receipts, f.pub, nil,
		PurchaseConfig{Source: "lemonsqueezy"},
	)
	return f
}

func TestIngest_InvalidSignatureRejectedWithoutLedgerCall(t *testing.T) {
	f := newIngesterFixture(testWebhookSecret)
	raw := orderPayload("order_created", "1001", "Pro", 2000, "alice")

	ack, err := f.ingester.Ingest(context.Background(), raw, "sha256="+Sign(raw, "wrong-secret"))
	require.Error(t, err)
	assert.Nil(t, ack)
	assert.Equal(t, http.StatusUnauthorized, apperrors.AsAppError(err).HTTPStatus)
	assert.Equal(t, 0, f.ledger.calls())
	assert.Empty(t, f.ledger.logs)
}

func TestIngest_UnknownEventAcknowledgedNotProcessed(t *testing.T) {
	f := newIngesterFixture(testWebhookSecret)
	raw := orderPayload("license_key_created", "1001", "Pro", 2000, "alice")

	ack, err := f.ingester.Ingest(context.Background(), raw, "sha256="+Sign(raw, testWebhookSecret))
	require.NoError(t, err)
	assert.True(t, ack.Received)
	assert.False(t, ack.Processed)
	assert.Equal(t, "Event license_key_created acknowledged but not processed", ack.Message)
	assert.Equal(t, 0, f.ledger.calls())
}

func TestIngest_ProKeywordCreditsRegardlessOfTotal(t *testing.T) {
	f := newIngesterFixture(testWebhookSecret)
	raw := orderPayload("order_created", "1001", "Figma AI Pro", 100, "alice")

	ack, err := f.ingester.Ingest(context.Background(), raw, "sha256="+Sign(raw, testWebhookSecret))
	require.NoError(t, err)
	assert.True(t, ack.Processed)
	assert.Equal(t, int64(500), ack.CreditsAdded)
	assert.Equal(t, "alice", ack.Username)
	assert.Equal(t, "user-alice", ack.UserID)

	require.Len(t, f.ledger.purchases, 1)
	p := f.ledger.purchases[0]
	assert.Equal(t, int64(500), p.Credits)
	assert.Equal(t, 1.00, p.USDAmount)
	assert.Equal(t, "1001", p.OrderID)
	assert.Equal(t, "wh-1", p.WebhookID)
	assert.Equal(t, "buyer@example.com", p.Email)
	assert.Contains(t, f.pub.types(), entity.BillingEventCreditGranted)
}

func TestIngest_FallbackToUSDRate(t *testing.T) {
	f := newIngesterFixture(testWebhookSecret)
	raw := orderPayload("subscription_payment_success", "inv-1", "Credit refill", 1299, "bob")

	ack, err := f.ingester.Ingest(context.Background(), raw, "sha256="+Sign(raw, testWebhookSecret))
	require.NoError(t, err)
	assert.True(t, ack.Processed)
	assert.Equal(t, int64(259), ack.CreditsAdded)
}

func TestIngest_FallsBackToEmailHandle(t *testing.T) {
	f := newIngesterFixture("")
	raw := orderPayload("order_created", "1002", "Starter", 500, "")

	ack, err := f.ingester.Ingest(context.Background(), raw, "")
	require.NoError(t, err)
	assert.True(t, ack.Processed)
	assert.Equal(t, "buyer@example.com", ack.Username)
}

func TestIngest_MissingHandleIsAcknowledgedAsFailure(t *testing.T) {
	f := newIngesterFixture("")
	raw := []byte(`{"meta":{"event_name":"order_created"},"data":{"id":"1","type":"orders","attributes":{"total":500}}}`)

	ack, err := f.ingester.Ingest(context.Background(), raw, "")
	require.NoError(t, err)
	assert.True(t, ack.Received)
	assert.False(t, ack.Processed)
	assert.Equal(t, "Figma username required", ack.Error)
	assert.Equal(t, 0, f.ledger.calls())
}

func TestIngest_RedeliveredOrderCreditsOnce(t *testing.T) {
	f := newIngesterFixture(testWebhookSecret)
	raw := orderPayload("order_created", "1001", "Pro", 2000, "alice")
	sig := "sha256=" + Sign(raw, testWebhookSecret)

	first, err := f.ingester.Ingest(context.Background(), raw, sig)
	require.NoError(t, err)
	assert.True(t, first.Processed)

	second, err := f.ingester.Ingest(context.Background(), raw, sig)
	require.NoError(t, err)
	assert.True(t, second.Received)
	assert.False(t, second.Processed)
	assert.True(t, second.Duplicate)

	assert.Len(t, f.ledger.purchases, 1)
	assert.Equal(t, 500.0, f.ledger.balance)
}

func TestIngest_LedgerFailureReleasesReceipt(t *testing.T) {
	f := newIngesterFixture("")
	f.ledger.purchaseErr = errors.New("ledger down")
	raw := orderPayload("order_created", "1001", "Pro", 2000, "alice")

	ack, err := f.ingester.Ingest(context.Background(), raw, "")
	require.NoError(t, err)
	assert.True(t, ack.Received)
	assert.False(t, ack.Processed)
	assert.Equal(t, "Database error processing purchase", ack.Error)
	assert.Equal(t, []string{"orders:1001"}, f.receipts.released)

	// 释放后允许重投递入账
	f.ledger.purchaseErr = nil
	ack, err = f.ingester.Ingest(context.Background(), raw, "")
	require.NoError(t, err)
	assert.True(t, ack.Processed)
}

func TestIngest_DedupStoreFailureFailsClosed(t *testing.T) {
	f := newIngesterFixture("")
	f.receipts.claimErr = errors.New("redis unavailable")
	raw := orderPayload("order_created", "1001", "Pro", 2000, "alice")

	ack, err := f.ingester.Ingest(context.Background(), raw, "")
	require.NoError(t, err)
	assert.False(t, ack.Processed)
	assert.Empty(t, f.ledger.purchases)
}

func TestIngest_SubscriptionCancelled(t *testing.T) {
	f := newIngesterFixture("")
	raw := orderPayload("subscription_cancelled", "sub-1", "Pro", 0, "alice")

	ack, err := f.ingester.Ingest(context.Background(), raw, "")
	require.NoError(t, err)
	assert.True(t, ack.Processed)
	assert.Equal(t, "Subscription cancellation noted", ack.Message)
	assert.Equal(t, 0, f.ledger.calls())
}

func TestIngest_MalformedJSONStillAcknowledged(t *testing.T) {
	f := newIngesterFixture("")

	ack, err := f.ingester.Ingest(context.Background(), []byte(`{not json`), "")
	require.NoError(t, err)
	assert.True(t, ack.Received)
	assert.False(t, ack.Processed)
}

func TestIngest_UnreadableBodyAcknowledgedWithoutCredit(t *testing.T) {
	f := newIngesterFixture(testWebhookSecret)

	ack := f.ingester.Unreadable(context.Background(), "Payload too large", errors.New("http: request body too large"))
	assert.True(t, ack.Received)
	assert.False(t, ack.Processed)
	assert.Equal(t, "Payload too large", ack.Error)
	assert.Empty(t, f.ledger.purchases)
}

func TestIngest_LogsWebhookSynchronouslyWithoutQueue(t *testing.T) {
	f := newIngesterFixture("")
	raw := orderPayload("subscription_cancelled", "sub-1", "Pro", 0, "alice")

	_, err := f.ingester.Ingest(context.Background(), raw, "")
	require.NoError(t, err)
	require.Len(t, f.ledger.logs, 1)
	assert.Equal(t, "lemonsqueezy", f.ledger.logs[0].Source)
	assert.Equal(t, "subscription_cancelled", f.ledger.logs[0].EventName)
	assert.Equal(t, string(raw), f.ledger.logs[0].Payload)
}

func TestIngest_AsyncWebhookLogGoesThroughPublisher(t *testing.T) {
	f := newIngesterFixture("")
	f.ingester.cfg.AsyncWebhookLog = true
	raw := orderPayload("subscription_cancelled", "sub-1", "Pro", 0, "alice")

	_, err := f.ingester.Ingest(context.Background(), raw, "")
	require.NoError(t, err)
	assert.Empty(t, f.ledger.logs)
	assert.Equal(t, []string{entity.BillingEventWebhookReceived}, f.pub.types())
}
