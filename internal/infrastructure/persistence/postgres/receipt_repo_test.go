package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"credits-gateway/internal/domain/entity"
)

func newMockClient(t *testing.T) (*Client, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return &Client{db: db}, mock
}

func TestReceiptRepository_Claim(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewReceiptRepository(client)

	mock.ExpectExec(`INSERT INTO "webhook_receipts" .* ON CONFLICT DO NOTHING`).
		WithArgs("orders:1001", "order_created", "wh-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.Claim(context.Background(), entity.WebhookReceipt{
		Key: "orders:1001", EventName: "order_created", WebhookID: "wh-1",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepository_ClaimDuplicate(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewReceiptRepository(client)

	mock.ExpectExec(`INSERT INTO "webhook_receipts"`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.Claim(context.Background(), entity.WebhookReceipt{Key: "orders:1001", EventName: "order_created"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReceiptRepository_ClaimError(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewReceiptRepository(client)

	mock.ExpectExec(`INSERT INTO "webhook_receipts"`).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.Claim(context.Background(), entity.WebhookReceipt{Key: "orders:1"})
	assert.ErrorContains(t, err, "connection reset")
}

func TestReceiptRepository_Release(t *testing.T) {
	client, mock := newMockClient(t)
	repo := NewReceiptRepository(client)

	mock.ExpectExec(`DELETE FROM "webhook_receipts" WHERE key = \$1`).
		WithArgs("orders:1001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Release(context.Background(), "orders:1001"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClient_HealthCheck(t *testing.T) {
	client, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT 1`).WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
	require.NoError(t, client.HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
