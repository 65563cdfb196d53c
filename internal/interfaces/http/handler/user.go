package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"credits-gateway/internal/application/billing"
	"credits-gateway/internal/interfaces/http/dto"
)

// UserHandler 插件用户的账户接口
type UserHandler struct {
	accounts *billing.AccountService
	redeemer *billing.LicenseRedeemer
}

func NewUserHandler(accounts *billing.AccountService, redeemer *billing.LicenseRedeemer) *UserHandler {
	return &UserHandler{accounts: accounts, redeemer: redeemer}
}

// Credits 查询余额
// @Summary 查询余额
// @Tags Users
// @Produce json
// @Param figma_user_id query string true "插件用户 ID"
// @Success 200 {object} dto.CreditsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Router /api/user-credits [get]
func (h *UserHandler) Credits(c *gin.Context) {
	userID := c.Query("figma_user_id")
	withUser(c, userID)

	acct, err := h.accounts.Credits(c.Request.Context(), userID)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.OK(c, dto.NewCreditsResponse(acct))
}

// Verify 首次使用时创建账户
// @Summary 校验用户
// @Tags Users
// @Accept json
// @Produce json
// @Param body body dto.VerifyRequest true "用户信息"
// @Router /api/user-verify [post]
func (h *UserHandler) Verify(c *gin.Context) {
	var req dto.VerifyRequest
	if !bindJSON(c, &req) {
		return
	}
	withUser(c, req.UserID)

	out, err := h.accounts.Verify(c.Request.Context(), req.UserID, req.Username)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// VerifyLookup GET /api/user-verify 只查询余额
func (h *UserHandler) VerifyLookup(c *gin.Context) {
	userID := c.Query("figma_user_id")
	withUser(c, userID)

	acct, err := h.accounts.Credits(c.Request.Context(), userID)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.OK(c, acct)
}

// Deduct 直接扣费
// @Summary 直接扣费
// @Tags Users
// @Accept json
// @Produce json
// @Param body body dto.DeductRequest true "扣费请求"
// @Success 200 {object} dto.DeductResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 402 {object} dto.InsufficientCreditsResponse
// @Router /api/user-deduct [post]
func (h *UserHandler) Deduct(c *gin.Context) {
	var req dto.DeductRequest
	if !bindJSON(c, &req) {
		return
	}
	withUser(c, req.UserID)

	out, err := h.accounts.Debit(c.Request.Context(), billing.DebitCommand{
		UserID:      req.UserID,
		CostUSD:     req.CostUSD,
		Description: req.Description,
		Usage:       req.Usage,
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.OK(c, dto.NewDeductResponse(out, *req.CostUSD))
}

// Transactions 流水分页
func (h *UserHandler) Transactions(c *gin.Context) {
	userID := c.Query("figma_user_id")
	withUser(c, userID)
	page := dto.BindLimitOffset(c, 50)

	out, err := h.accounts.Transactions(c.Request.Context(), userID, page.Limit, page.Offset)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// MonthlyCredits 触发月度积分发放
func (h *UserHandler) MonthlyCredits(c *gin.Context) {
	var req dto.MonthlyCreditsRequest
	if !bindJSON(c, &req) {
		return
	}
	withUser(c, req.UserID)

	out, err := h.accounts.MonthlyCredits(c.Request.Context(), req.UserID, req.Username)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// Redeem 兑换许可证
// @Summary 兑换许可证
// @Tags Users
// @Accept json
// @Produce json
// @Param body body dto.RedeemRequest true "许可证"
// @Success 200 {object} dto.RedeemResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Failure 409 {object} dto.ErrorResponse
// @Router /api/user-redeem [post]
func (h *UserHandler) Redeem(c *gin.Context) {
	var req dto.RedeemRequest
	if !bindJSON(c, &req) {
		return
	}
	withUser(c, req.UserID)

	out, err := h.redeemer.Redeem(c.Request.Context(), req.UserID, req.LicenseKey)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.OK(c, dto.RedeemResponse{Success: true, RedeemResult: out})
}
