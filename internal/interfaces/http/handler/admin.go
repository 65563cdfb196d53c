package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"credits-gateway/internal/application/billing"
	"credits-gateway/internal/interfaces/http/dto"
)

// AdminHandler 管理接口，admin_key 在 query 或请求体中
type AdminHandler struct {
	admin    *billing.AdminService
	adjuster *billing.CreditAdjuster
}

func NewAdminHandler(admin *billing.AdminService, adjuster *billing.CreditAdjuster) *AdminHandler {
	return &AdminHandler{admin: admin, adjuster: adjuster}
}

// Users 偏移分页
// @Summary 用户列表
// @Tags Admin
// @Produce json
// @Param admin_key query string true "管理员密钥"
// @Param limit query int false "每页数量"
// @Param offset query int false "偏移"
// @Param access_type query string false "访问等级"
// @Success 200 {object} billing.UserPage
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/admin/users [get]
func (h *AdminHandler) Users(c *gin.Context) {
	page := dto.BindLimitOffset(c, 50)
	out, err := h.admin.ListUsers(c.Request.Context(), c.Query("admin_key"), page.Limit, page.Offset, c.Query("access_type"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.OK(c, out)
}

// UsersCursor 游标分页，账本响应原样返回
func (h *AdminHandler) UsersCursor(c *gin.Context) {
	page := dto.BindLimitOffset(c, 50)
	out, err := h.admin.ListUsersCursor(c.Request.Context(), c.Query("admin_key"), page.Limit,
		c.Query("cursor_created_at"), c.Query("cursor_id"))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", out)
}

// UpdateCredits 按增量调整积分
// @Summary 调整积分
// @Tags Admin
// @Accept json
// @Produce json
// @Param body body dto.UpdateCreditsRequest true "调整请求"
// @Success 200 {object} dto.UpdateCreditsResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/admin/update-credits [put]
func (h *AdminHandler) UpdateCredits(c *gin.Context) {
	var req dto.UpdateCreditsRequest
	if !bindAdminJSON(c, &req, &req.AdminKey, h.adjuster.Authorize) {
		return
	}
	withUser(c, req.UserID)

	out, err := h.adjuster.Adjust(c.Request.Context(), billing.AdjustCommand{
		AdminKey:    req.AdminKey,
		UserID:      req.UserID,
		Username:    req.Username,
		Delta:       req.CreditsDelta,
		Description: req.Description,
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.OK(c, dto.UpdateCreditsResponse{Success: true, Message: "Credits updated successfully", AdjustResult: out})
}

func (h *AdminHandler) AddBetaUser(c *gin.Context) {
	var req dto.AddBetaUserRequest
	if !bindAdminJSON(c, &req, &req.AdminKey, h.admin.Authorize) {
		return
	}

	out, err := h.admin.AddBetaUser(c.Request.Context(), req.AdminKey, req.Username, req.Credits)
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.OK(c, dto.AddBetaUserResponse{
		Success:        true,
		Message:        fmt.Sprintf("Beta user %s added with %.0f credits", out.Username, out.Credits),
		BetaUserResult: out,
	})
}

// bindAdminJSON 请求体解析失败时先校验 admin_key，未授权的调用方只会看到 401。
// 类型不匹配的字段会被跳过，其余字段（包括 admin_key）仍会写入 dst。
func bindAdminJSON(c *gin.Context, dst any, adminKey *string, authorize func(string) error) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil {
		return true
	}
	if authErr := authorize(*adminKey); authErr != nil {
		dto.Fail(c, authErr)
		return false
	}
	dto.Error(c, http.StatusBadRequest, "Invalid JSON body", err.Error())
	return false
}
