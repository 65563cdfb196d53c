package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credits-gateway/internal/domain/service"
	apperrors "credits-gateway/pkg/errors"
)

func TestAccountService_Debit(t *testing.T) {
	ledger := newFakeLedger(10)
	s := NewAccountService(ledger, nil, "Claude API usage")

	out, err := s.Debit(context.Background(), DebitCommand{UserID: "u-1", CostUSD: ptr(2.5)})
	require.NoError(t, err)
	assert.Equal(t, 7.5, out.RemainingCredits)
	assert.Equal(t, "Claude API usage", ledger.debits[0].Description)
	assert.Empty(t, ledger.debits[0].Metadata)
}

func TestAccountService_DebitValidation(t *testing.T) {
	s := NewAccountService(newFakeLedger(10), nil, "Claude API usage")

	_, err := s.Debit(context.Background(), DebitCommand{UserID: "u-1"})
	assert.Equal(t, http.StatusBadRequest, apperrors.AsAppError(err).HTTPStatus)

	_, err = s.Debit(context.Background(), DebitCommand{UserID: "u-1", CostUSD: ptr(-1.0)})
	assert.Equal(t, "cost_usd must be a non-negative number", apperrors.AsAppError(err).Message)
}

func TestAccountService_DebitInsufficient(t *testing.T) {
	s := NewAccountService(newFakeLedger(1), nil, "Claude API usage")

	_, err := s.Debit(context.Background(), DebitCommand{
		UserID: "u-1", CostUSD: ptr(5.0), Usage: json.RawMessage(`{"input_tokens":1}`),
	})
	var insufficient *service.InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, 1.0, insufficient.CurrentCredits)
	assert.Equal(t, 5.0, insufficient.RequiredCredits)
}

func TestAccountService_CreditsRequiresUser(t *testing.T) {
	s := NewAccountService(newFakeLedger(10), nil, "")

	_, err := s.Credits(context.Background(), " ")
	assert.Equal(t, http.StatusBadRequest, apperrors.AsAppError(err).HTTPStatus)

	acct, err := s.Credits(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, 10.0, acct.Credits)
}

func TestAccountService_TransactionsNormalizesPaging(t *testing.T) {
	s := NewAccountService(newFakeLedger(0), nil, "")

	raw, err := s.Transactions(context.Background(), "u-1", 0, -5)
	require.NoError(t, err)
	assert.JSONEq(t, `{"transactions":[],"limit":50,"offset":0}`, string(raw))

	raw, err = s.Transactions(context.Background(), "u-1", 10000, 20)
	require.NoError(t, err)
	assert.JSONEq(t, `{"transactions":[],"limit":500,"offset":20}`, string(raw))
}

func TestAccountService_SweepSubscriptions(t *testing.T) {
	out, err := NewAccountService(newFakeLedger(0), nil, "").SweepSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, out.UsersChecked)
	assert.Equal(t, 1, out.ExpiredCount)
}

func TestAdminService(t *testing.T) {
	s := NewAdminService(NewAdminGuard("k"), newFakeLedger(0))
	ctx := context.Background()

	_, err := s.ListUsersCursor(ctx, "bad", 10, "", "")
	assert.Equal(t, http.StatusUnauthorized, apperrors.AsAppError(err).HTTPStatus)

	// 游标只给一半时不转发
	raw, err := s.ListUsersCursor(ctx, "k", 0, "2024-01-01T00:00:00Z", "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"limit":50,"cursor_created_at":"","cursor_id":""}`, string(raw))

	raw, err = s.ListUsersCursor(ctx, "k", 5, "2024-01-01T00:00:00Z", "id-9")
	require.NoError(t, err)
	assert.JSONEq(t, `{"limit":5,"cursor_created_at":"2024-01-01T00:00:00Z","cursor_id":"id-9"}`, string(raw))

	_, err = s.ListUsers(ctx, "k", 10, 0, "vip")
	assert.Equal(t, http.StatusBadRequest, apperrors.AsAppError(err).HTTPStatus)

	page, err := s.ListUsers(ctx, "k", 10, 20, "beta")
	require.NoError(t, err)
	assert.Equal(t, 10, page.Limit)
	assert.Equal(t, 20, page.Offset)

	_, err = s.AddBetaUser(ctx, "k", "", nil)
	assert.Equal(t, http.StatusBadRequest, apperrors.AsAppError(err).HTTPStatus)

	beta, err := s.AddBetaUser(ctx, "k", "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, 100.0, beta.Credits)
}
