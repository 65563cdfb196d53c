// Package router 提供 HTTP 路由配置
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterAPIRoutes 注册 /api 路由，chatLimit 只作用于会产生模型调用的接口
func RegisterAPIRoutes(api *gin.RouterGroup, h *Handlers, chatLimit gin.HandlerFunc) {
	api.POST("/chat", chatLimit, h.Chat.Chat)

	// 账户
	api.GET("/user-credits", h.User.Credits)
	api.POST("/user-verify", h.User.Verify)
	api.GET("/user-verify", h.User.VerifyLookup)
	api.POST("/user-deduct", h.User.Deduct)
	api.GET("/user-transactions", h.User.Transactions)
	api.POST("/user-monthly-credits", h.User.MonthlyCredits)
	api.POST("/user-redeem", h.User.Redeem)

	// 支付回调与定时任务
	api.POST("/lemonsqueezy-webhook", h.Webhook.LemonSqueezy)
	api.GET("/subscription-check", h.Subscription.Check)
	api.POST("/subscription-check", h.Subscription.Check)

	admin := api.Group("/admin")
	{
		admin.GET("/users", h.Admin.Users)
		admin.GET("/users-cursor", h.Admin.UsersCursor)
		admin.PUT("/update-credits", h.Admin.UpdateCredits)
		admin.POST("/add-beta-user", h.Admin.AddBetaUser)
	}
}
