package billing

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "credits-gateway/pkg/errors"
)

func TestRedeem_CreditsWithMaskedLicense(t *testing.T) {
	ledger := newFakeLedger(10)
	r := NewLicenseRedeemer(ledger, nil, nil)

	res, err := r.Redeem(context.Background(), "u-1", "  FIGMA-PRO-ABCD1234 ")
	require.NoError(t, err)
	assert.Equal(t, int64(500), res.CreditsAdded)
	assert.Equal(t, 510.0, res.NewCredits)

	require.Len(t, ledger.credits, 1)
	req := ledger.credits[0]
	assert.Equal(t, 500.0, req.Credits)
	assert.Equal(t, "license", req.Source)
	assert.Equal(t, "**************1234", req.Metadata["license"])
	assert.NotContains(t, req.Description, "ABCD")
}

func TestRedeem_Validation(t *testing.T) {
	ledger := newFakeLedger(0)
	r := NewLicenseRedeemer(ledger, nil, nil)

	_, err := r.Redeem(context.Background(), "", "DEV-5")
	assert.Equal(t, http.StatusBadRequest, apperrors.AsAppError(err).HTTPStatus)

	_, err = r.Redeem(context.Background(), "u-1", "randomkey")
	appErr := apperrors.AsAppError(err)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus)
	assert.Equal(t, "Invalid license key", appErr.Message)
	assert.ErrorIs(t, err, ErrUnparseableLicense)

	assert.Equal(t, 0, ledger.calls())
}

func TestRedeem_LedgerErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		ledgerErr  error
		wantStatus int
		wantMsg    string
	}{
		{"not found", apperrors.Upstream(http.StatusNotFound, "User missing", nil), http.StatusNotFound, "User not found"},
		{"conflict", apperrors.Upstream(http.StatusConflict, "License already used", nil), http.StatusConflict, "License already used"},
		{"passthrough", apperrors.Upstream(http.StatusServiceUnavailable, "Database error", nil), http.StatusServiceUnavailable, "Database error"},
		{"transport", errors.New("eof"), http.StatusInternalServerError, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := newFakeLedger(0)
			ledger.creditErr = tt.ledgerErr

			_, err := NewLicenseRedeemer(ledger, nil, nil).Redeem(context.Background(), "u-1", "DEV-10")
			appErr := apperrors.AsAppError(err)
			assert.Equal(t, tt.wantStatus, appErr.HTTPStatus)
			assert.Equal(t, tt.wantMsg, appErr.Message)
		})
	}
}
