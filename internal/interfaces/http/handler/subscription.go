package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"credits-gateway/internal/application/billing"
	"credits-gateway/internal/interfaces/http/dto"
)

// CronSecretHeader 定时任务调用时携带的密钥头
const CronSecretHeader = "X-Cron-Secret"

// SubscriptionHandler 订阅过期检查，供外部 cron 调用
type SubscriptionHandler struct {
	guard    *billing.SecretGuard
	accounts *billing.AccountService
}

func NewSubscriptionHandler(guard *billing.SecretGuard, accounts *billing.AccountService) *SubscriptionHandler {
	return &SubscriptionHandler{guard: guard, accounts: accounts}
}

// Check 密钥可以放在请求头或 secret 参数中
func (h *SubscriptionHandler) Check(c *gin.Context) {
	secret := c.GetHeader(CronSecretHeader)
	if secret == "" {
		secret = c.Query("secret")
	}
	if err := h.guard.Check(secret); err != nil {
		dto.Error(c, http.StatusUnauthorized, "Unauthorized", "")
		return
	}

	out, err := h.accounts.SweepSubscriptions(c.Request.Context())
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.OK(c, dto.SubscriptionCheckResponse{
		Success:      true,
		Timestamp:    time.Now().UTC(),
		UsersChecked: out.UsersChecked,
		ExpiredCount: out.ExpiredCount,
		Message:      fmt.Sprintf("Checked %d users, found %d expired subscriptions", out.UsersChecked, out.ExpiredCount),
	})
}
