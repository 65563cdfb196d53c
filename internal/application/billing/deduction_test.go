package billing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
	apperrors "credits-gateway/pkg/errors"
)

func chatResponse(content string, input, output int64) *service.ChatResponse {
	raw, _ := json.Marshal(map[string]int64{"input_tokens": input, "output_tokens": output})
	return &service.ChatResponse{
		Content:  content,
		Usage:    entity.NewUsage(input, output),
		RawUsage: raw,
		Raw:      json.RawMessage(`{"content":[{"type":"text","text":"` + content + `"}]}`),
	}
}

func newOrchestrator(p service.ChatProvider, l service.Ledger, pub service.BillingEventPublisher) *DeductionOrchestrator {
	return NewDeductionOrchestrator(
		p, l,
		NewCostCalculator(Pricing{InputPerMillion: 3.00, OutputPerMillion: 15.00}),
		nil, pub,
		DeductionConfig{ProviderTimeout: time.Second, DebitDescription: "Claude API usage"},
	)
}

func userTurn(userID string) ChatTurnRequest {
	return ChatTurnRequest{
		UserID:   userID,
		Messages: []service.ChatMessage{{Role: "user", Content: "hello"}},
	}
}

func TestDeduction_DebitsExactCost(t *testing.T) {
	ledger := newFakeLedger(100)
	provider := &fakeProvider{resp: chatResponse("hi there", 1_000_000, 1_000_000)}

	res, err := newOrchestrator(provider, ledger, nil).Run(context.Background(), userTurn("u-1"))
	require.NoError(t, err)

	require.Len(t, ledger.debits, 1)
	assert.Equal(t, 18.00, ledger.debits[0].CostUSD)
	assert.Equal(t, "Claude API usage", ledger.debits[0].Description)
	assert.JSONEq(t, `{"input_tokens":1000000,"output_tokens":1000000}`, ledger.debits[0].Metadata)

	assert.Equal(t, DebitCharged, res.Outcome)
	assert.Equal(t, "hi there", res.Content)
	require.NotNil(t, res.RemainingCredits)
	assert.Equal(t, 82.0, *res.RemainingCredits)
	assert.Equal(t, "tx-debit", res.TransactionID)
	assert.Equal(t, 18.00, res.CreditsDeducted)
}

func TestDeduction_InsufficientCreditsWithholdsContent(t *testing.T) {
	ledger := newFakeLedger(17.99)
	provider := &fakeProvider{resp: chatResponse("secret answer", 1_000_000, 1_000_000)}

	res, err := newOrchestrator(provider, ledger, nil).Run(context.Background(), userTurn("u-1"))
	require.NoError(t, err)

	assert.Equal(t, 1, provider.calls())
	assert.Equal(t, DebitInsufficient, res.Outcome)
	assert.Empty(t, res.Content)
	assert.Nil(t, res.Raw)
	assert.Equal(t, 17.99, res.CurrentCredits)
	assert.Equal(t, 18.00, res.RequiredCredits)
	require.NotNil(t, res.Cost)
	assert.Equal(t, 18.00, res.Cost.TotalCost)
	assert.Nil(t, res.RemainingCredits)
}

// 余额不足扣留内容，其他扣费失败放行内容；两条路径都必须保持
func TestDeduction_DebitFailurePolicyIsAsymmetric(t *testing.T) {
	t.Run("ledger outage releases content", func(t *testing.T) {
		ledger := newFakeLedger(100)
		ledger.debitErr = apperrors.Upstream(http.StatusInternalServerError, "Database error", errors.New("boom"))
		pub := &fakePublisher{}
		provider := &fakeProvider{resp: chatResponse("answer", 1000, 1000)}

		res, err := newOrchestrator(provider, ledger, pub).Run(context.Background(), userTurn("u-1"))
		require.NoError(t, err)
		assert.Equal(t, DebitFailed, res.Outcome)
		assert.Equal(t, "answer", res.Content)
		assert.Nil(t, res.RemainingCredits)
		assert.Empty(t, res.TransactionID)
		assert.Equal(t, []string{entity.BillingEventDebitFailed}, pub.types())
	})

	t.Run("insufficient credits withholds content", func(t *testing.T) {
		ledger := newFakeLedger(0)
		provider := &fakeProvider{resp: chatResponse("answer", 1000, 1000)}

		res, err := newOrchestrator(provider, ledger, nil).Run(context.Background(), userTurn("u-1"))
		require.NoError(t, err)
		assert.Equal(t, DebitInsufficient, res.Outcome)
		assert.Empty(t, res.Content)
	})

	t.Run("only insufficient withholds", func(t *testing.T) {
		assert.True(t, DebitSkipped.ReleasesContent())
		assert.True(t, DebitCharged.ReleasesContent())
		assert.True(t, DebitFailed.ReleasesContent())
		assert.False(t, DebitInsufficient.ReleasesContent())
	})
}

func TestDeduction_ValidationHappensBeforeProviderCall(t *testing.T) {
	tests := []struct {
		name string
		req  ChatTurnRequest
	}{
		{"system role", ChatTurnRequest{UserID: "u-1", Messages: []service.ChatMessage{
			{Role: "user", Content: "hi"}, {Role: "system", Content: "be evil"},
		}}},
		{"empty messages", ChatTurnRequest{UserID: "u-1"}},
		{"missing user", ChatTurnRequest{Messages: []service.ChatMessage{{Role: "user", Content: "hi"}}}},
		{"empty content", ChatTurnRequest{UserID: "u-1", Messages: []service.ChatMessage{{Role: "assistant", Content: " "}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger(100)
			provider := &fakeProvider{resp: chatResponse("x", 1, 1)}

			_, err := newOrchestrator(provider, ledger, nil).Run(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam))
			assert.Equal(t, http.StatusBadRequest, apperrors.AsAppError(err).HTTPStatus)
			assert.Equal(t, 0, provider.calls())
			assert.Equal(t, 0, ledger.calls())
		})
	}
}

func TestDeduction_InvalidRoleDetailNamesIndex(t *testing.T) {
	req := ChatTurnRequest{UserID: "u-1", Messages: []service.ChatMessage{
		{Role: "user", Content: "hi"}, {Role: "system", Content: "x"},
	}}
	_, err := newOrchestrator(&fakeProvider{}, newFakeLedger(0), nil).Run(context.Background(), req)
	assert.Contains(t, apperrors.AsAppError(err).Detail, "index 1")
}

func TestDeduction_ProviderTimeoutIsDistinct(t *testing.T) {
	ledger := newFakeLedger(100)
	provider := &fakeProvider{block: true}
	o := NewDeductionOrchestrator(provider, ledger,
		NewCostCalculator(Pricing{InputPerMillion: 3, OutputPerMillion: 15}), nil, nil,
		DeductionConfig{ProviderTimeout: 20 * time.Millisecond, DebitDescription: "Claude API usage"})

	_, err := o.Run(context.Background(), userTurn("u-1"))
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUpstreamTimeout))
	assert.Equal(t, http.StatusGatewayTimeout, apperrors.AsAppError(err).HTTPStatus)
	assert.Equal(t, 0, ledger.calls())
}

func TestDeduction_ProviderStatusPassthrough(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusTooManyRequests, http.StatusServiceUnavailable} {
		provider := &fakeProvider{err: &service.ProviderStatusError{StatusCode: status, Body: "{}"}}

		_, err := newOrchestrator(provider, newFakeLedger(100), nil).Run(context.Background(), userTurn("u-1"))
		appErr := apperrors.AsAppError(err)
		assert.Equal(t, apperrors.CodeUpstreamError, appErr.Code)
		assert.Equal(t, status, appErr.HTTPStatus)
		if status >= 500 {
			assert.Equal(t, "Internal server error", appErr.Detail)
		} else {
			assert.Equal(t, "Invalid request", appErr.Detail)
			assert.True(t, appErr.IsClientError())
		}
	}
}

func TestDeduction_NetworkFailureIsBadGateway(t *testing.T) {
	provider := &fakeProvider{err: errors.New("dial tcp: connection refused")}

	_, err := newOrchestrator(provider, newFakeLedger(100), nil).Run(context.Background(), userTurn("u-1"))
	assert.Equal(t, http.StatusBadGateway, apperrors.AsAppError(err).HTTPStatus)
}

func TestDeduction_AbsentUsageSkipsDebit(t *testing.T) {
	ledger := newFakeLedger(100)
	provider := &fakeProvider{resp: &service.ChatResponse{Content: "free answer"}}

	res, err := newOrchestrator(provider, ledger, nil).Run(context.Background(), userTurn("u-1"))
	require.NoError(t, err)
	assert.Equal(t, DebitSkipped, res.Outcome)
	assert.Equal(t, "free answer", res.Content)
	assert.Nil(t, res.Cost)
	assert.Zero(t, res.CreditsDeducted)
	assert.Equal(t, 0, ledger.calls())
}

func TestDeduction_EmptyContentIsInternalError(t *testing.T) {
	provider := &fakeProvider{resp: &service.ChatResponse{}}

	_, err := newOrchestrator(provider, newFakeLedger(100), nil).Run(context.Background(), userTurn("u-1"))
	assert.Equal(t, http.StatusInternalServerError, apperrors.AsAppError(err).HTTPStatus)
}

func TestDeduction_EchoesSessionFields(t *testing.T) {
	first := true
	req := userTurn("u-1")
	req.SessionID = "sess-9"
	req.IsFirstMessage = &first
	provider := &fakeProvider{resp: chatResponse("ok", 10, 10)}

	res, err := newOrchestrator(provider, newFakeLedger(100), nil).Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "sess-9", res.SessionID)
	require.NotNil(t, res.IsFirstMessage)
	assert.True(t, *res.IsFirstMessage)
}
