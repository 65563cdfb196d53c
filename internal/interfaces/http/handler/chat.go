package handler

import (
	"github.com/gin-gonic/gin"

	"credits-gateway/internal/application/billing"
	"credits-gateway/internal/interfaces/http/dto"
)

// ChatHandler 计费对话
type ChatHandler struct {
	orchestrator *billing.DeductionOrchestrator
}

func NewChatHandler(orchestrator *billing.DeductionOrchestrator) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator}
}

// Chat 调用模型并按用量扣费
// @Summary 计费对话
// @Description 调用一次 LLM，按 token 用量从账本扣除积分；余额不足时返回 402 且不包含生成内容
// @Tags Chat
// @Accept json
// @Produce json
// @Param body body dto.ChatRequest true "对话请求"
// @Success 200 {object} dto.ChatResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 402 {object} dto.InsufficientCreditsResponse
// @Failure 504 {object} dto.ErrorResponse
// @Router /api/chat [post]
func (h *ChatHandler) Chat(c *gin.Context) {
	var req dto.ChatRequest
	if !bindJSON(c, &req) {
		return
	}
	withUser(c, req.UserID)

	res, err := h.orchestrator.Run(c.Request.Context(), billing.ChatTurnRequest{
		UserID:         req.UserID,
		Messages:       req.Messages,
		SessionID:      req.SessionID,
		IsFirstMessage: req.IsFirstMessage,
	})
	if err != nil {
		dto.Fail(c, err)
		return
	}

	if !res.Outcome.ReleasesContent() {
		dto.InsufficientCredits(c, dto.NewChatInsufficientResponse(res))
		return
	}
	dto.OK(c, dto.NewChatResponse(res))
}
