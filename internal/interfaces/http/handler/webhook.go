package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"credits-gateway/internal/application/billing"
	"credits-gateway/internal/interfaces/http/dto"
)

// WebhookHandler 支付服务回调
type WebhookHandler struct {
	ingester        *billing.PurchaseIngester
	signatureHeader string
	maxBodyBytes    int64
}

func NewWebhookHandler(ingester *billing.PurchaseIngester, signatureHeader string, maxBodyBytes int64) *WebhookHandler {
	if signatureHeader == "" {
		signatureHeader = "X-Signature"
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &WebhookHandler{ingester: ingester, signatureHeader: signatureHeader, maxBodyBytes: maxBodyBytes}
}

// LemonSqueezy 签名基于原始请求体，必须在任何 JSON 解析之前读取
// @Summary 支付回调
// @Description 除签名错误（401）外一律返回 200，处理结果在响应体中
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} billing.WebhookAck
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/lemonsqueezy-webhook [post]
func (h *WebhookHandler) LemonSqueezy(c *gin.Context) {
	raw, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes))
	if err != nil {
		message := "Unable to read request body"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			message = "Payload too large"
		}
		dto.OK(c, h.ingester.Unreadable(c.Request.Context(), message, err))
		return
	}

	ack, err := h.ingester.Ingest(c.Request.Context(), raw, c.GetHeader(h.signatureHeader))
	if err != nil {
		dto.Fail(c, err)
		return
	}
	dto.OK(c, ack)
}
