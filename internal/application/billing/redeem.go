package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
	apperrors "credits-gateway/pkg/errors"
	"credits-gateway/pkg/logger"
	"credits-gateway/pkg/metrics"
)

// RedeemResult 兑换结果
type RedeemResult struct {
	UserID        string             `json:"figma_user_id"`
	Kind          entity.LicenseKind `json:"license_type"`
	CreditsAdded  int64              `json:"credits_added"`
	NewCredits    float64            `json:"new_credits"`
	TransactionID string             `json:"transaction_id"`
	Message       string             `json:"message"`
}

// LicenseRedeemer 解析许可证并加积分，流水中只保留脱敏后的许可证
type LicenseRedeemer struct {
	ledger    service.Ledger
	cache     BalanceCache
	publisher service.BillingEventPublisher
}

func NewLicenseRedeemer(ledger service.Ledger, cache BalanceCache, publisher service.BillingEventPublisher) *LicenseRedeemer {
	if cache == nil {
		cache = NopBalanceCache{}
	}
	if publisher == nil {
		publisher = service.NopPublisher{}
	}
	return &LicenseRedeemer{ledger: ledger, cache: cache, publisher: publisher}
}

func (r *LicenseRedeemer) Redeem(ctx context.Context, userID, licenseKey string) (*RedeemResult, error) {
	userID = strings.TrimSpace(userID)
	licenseKey = strings.TrimSpace(licenseKey)
	if userID == "" || licenseKey == "" {
		return nil, apperrors.Validation("figma_user_id and license_key are required")
	}

	grant, err := ParseLicense(licenseKey)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidLicense, "Invalid license key").
			WithDetail("This license key is not valid or has expired. Please check your license key and try again.")
	}

	masked := MaskLicense(licenseKey)
	out, err := r.ledger.Credit(ctx, service.CreditRequest{
		UserID:      userID,
		Credits:     float64(grant.Credits),
		Source:      "license",
		Description: fmt.Sprintf("License redemption (%s)", grant.Kind),
		Metadata: map[string]string{
			"license": masked,
			"kind":    string(grant.Kind),
		},
	})
	if err != nil {
		logger.Error(ctx, "license redemption failed", err, "license", masked)
		return nil, mapRedeemError(err)
	}

	_ = r.cache.Invalidate(ctx, userID)
	metrics.CreditsGrantedTotal.WithLabelValues("license").Add(float64(grant.Credits))
	if pubErr := r.publisher.Publish(ctx, entity.BillingEventCreditGranted, userID, entity.CreditGrantedPayload{
		UserID:        userID,
		Credits:       float64(grant.Credits),
		Source:        "license",
		TransactionID: out.TransactionID,
	}); pubErr != nil {
		logger.Error(ctx, "failed to publish credit event", pubErr)
	}

	return &RedeemResult{
		UserID:        userID,
		Kind:          grant.Kind,
		CreditsAdded:  grant.Credits,
		NewCredits:    out.NewCredits,
		TransactionID: out.TransactionID,
		Message:       fmt.Sprintf("Successfully redeemed %s license: +%d credits", grant.Kind, grant.Credits),
	}, nil
}

// mapRedeemError 账本 404/409 转为业务错误，其余状态透传
func mapRedeemError(err error) error {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		return apperrors.Internal(err)
	}
	switch appErr.HTTPStatus {
	case http.StatusNotFound:
		return apperrors.Wrap(err, apperrors.CodeUserNotFound, "User not found").
			WithDetail("Please ensure you are logged into Figma and try again.")
	case http.StatusConflict:
		msg, detail := appErr.Message, appErr.Detail
		if msg == "" {
			msg = "License conflict"
		}
		if detail == "" {
			detail = "This license key cannot be activated."
		}
		return apperrors.Wrap(err, apperrors.CodeLicenseConflict, msg).WithDetail(detail)
	}
	return appErr
}
