package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
	apperrors "credits-gateway/pkg/errors"
	"credits-gateway/pkg/logger"
	"credits-gateway/pkg/metrics"
	"credits-gateway/pkg/tracer"
)

// Phase 单轮对话扣费的状态
type Phase string

const (
	PhaseValidating      Phase = "validating"
	PhaseCallingProvider Phase = "calling_provider"
	PhaseComputingCost   Phase = "computing_cost"
	PhaseDebiting        Phase = "debiting"
	PhaseResponding      Phase = "responding"
)

// debitScale 写入账本时的金额精度
const debitScale = 6

// DebitOutcome 扣费结果
type DebitOutcome string

const (
	DebitSkipped      DebitOutcome = "skipped"
	DebitCharged      DebitOutcome = "success"
	DebitInsufficient DebitOutcome = "insufficient"
	DebitFailed       DebitOutcome = "failed"
)

// ReleasesContent 是扣费失败策略（DebitFailurePolicy）：
// 只有余额不足会扣留已生成的内容；账本其他错误只记录日志与指标，内容照常返回。
func (o DebitOutcome) ReleasesContent() bool {
	return o != DebitInsufficient
}

var allowedRoles = map[string]struct{}{"user": {}, "assistant": {}}

// ChatTurnRequest 单轮对话请求
type ChatTurnRequest struct {
	UserID         string
	Messages       []service.ChatMessage
	SessionID      string
	IsFirstMessage *bool
}

// ChatTurnResult 单轮对话结果
// Outcome 为 DebitInsufficient 时 Content 为空。
type ChatTurnResult struct {
	Content          string
	Usage            json.RawMessage
	Cost             *Cost
	Outcome          DebitOutcome
	RemainingCredits *float64
	TransactionID    string
	CreditsDeducted  float64
	CurrentCredits   float64
	RequiredCredits  float64
	SessionID        string
	IsFirstMessage   *bool
	Raw              json.RawMessage
}

// DeductionConfig 编排参数
type DeductionConfig struct {
	ProviderTimeout  time.Duration
	DebitDescription string
}

// DeductionOrchestrator 调用提供商、计费、扣费
type DeductionOrchestrator struct {
	provider  service.ChatProvider
	ledger    service.Ledger
	calc      *CostCalculator
	cache     BalanceCache
	publisher service.BillingEventPublisher
	cfg       DeductionConfig
}

func NewDeductionOrchestrator(
	provider service.ChatProvider,
	ledger service.Ledger,
	calc *CostCalculator,
	cache BalanceCache,
	publisher service.BillingEventPublisher,
	cfg DeductionConfig,
) *DeductionOrchestrator {
	if cache == nil {
		cache = NopBalanceCache{}
	}
	if publisher == nil {
		publisher = service.NopPublisher{}
	}
	return &DeductionOrchestrator{
		provider:  provider,
		ledger:    ledger,
		calc:      calc,
		cache:     cache,
		publisher: publisher,
		cfg:       cfg,
	}
}

// Run 执行一轮对话。余额不足不是 error，通过 Outcome 返回。
func (o *DeductionOrchestrator) Run(ctx context.Context, req ChatTurnRequest) (res *ChatTurnResult, err error) {
	ctx, span := tracer.Start(ctx, "billing.DeductionOrchestrator.Run")
	defer span.End()

	phase := PhaseValidating
	defer func() {
		if err != nil {
			span.SetAttributes(attribute.String("billing.failed_phase", string(phase)))
			tracer.RecordError(span, err)
		}
	}()

	if err = validateChatTurn(req); err != nil {
		return nil, err
	}
	ctx = logger.WithContext(ctx, logger.UserIDKey, req.UserID)

	phase = PhaseCallingProvider
	resp, err := o.callProvider(ctx, req.Messages)
	if err != nil {
		return nil, err
	}

	phase = PhaseComputingCost
	res = &ChatTurnResult{
		Content:        resp.Content,
		Usage:          resp.RawUsage,
		SessionID:      req.SessionID,
		IsFirstMessage: req.IsFirstMessage,
		Raw:            resp.Raw,
		Outcome:        DebitSkipped,
	}
	cost, ok := o.calc.Calculate(resp.Usage)
	if ok {
		res.Cost = &cost
		res.CreditsDeducted = cost.TotalCost
	}
	if !ok || !cost.Billable() {
		logger.Info(ctx, "no billable usage, skipping debit", "usage_complete", ok)
		metrics.DebitTotal.WithLabelValues(string(DebitSkipped)).Inc()
		return res, nil
	}
	metrics.CostUSDTotal.Add(cost.TotalCost)

	phase = PhaseDebiting
	o.debit(ctx, req.UserID, cost, resp, res)
	span.SetAttributes(attribute.String("billing.debit_outcome", string(res.Outcome)))

	phase = PhaseResponding
	if !res.Outcome.ReleasesContent() {
		res.Content = ""
		res.Raw = nil
	}
	return res, nil
}

func validateChatTurn(req ChatTurnRequest) error {
	if len(req.Messages) == 0 {
		return apperrors.Validation("Messages array is required")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return apperrors.Validation("figma_user_id is required for credit tracking")
	}
	for i, m := range req.Messages {
		if m.Role == "" || strings.TrimSpace(m.Content) == "" {
			return apperrors.Validation("Invalid message format").
				WithDetail(fmt.Sprintf("Message at index %d is missing required fields (role/content)", i))
		}
		if _, ok := allowedRoles[m.Role]; !ok {
			return apperrors.Validation("Invalid message format").
				WithDetail(fmt.Sprintf("Message at index %d has invalid role '%s'. Must be 'user' or 'assistant'", i, m.Role))
		}
	}
	return nil
}

func (o *DeductionOrchestrator) callProvider(ctx context.Context, messages []service.ChatMessage) (*service.ChatResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.cfg.ProviderTimeout)
	defer cancel()

	resp, err := o.provider.Complete(callCtx, service.ChatRequest{Messages: messages})
	if err != nil {
		return nil, classifyProviderError(callCtx, err)
	}
	if resp == nil || resp.Content == "" {
		return nil, apperrors.New(apperrors.CodeInternalError, "Unexpected response structure from Claude API")
	}
	return resp, nil
}

// classifyProviderError 超时、上游状态码与网络错误分别归类
func classifyProviderError(callCtx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return apperrors.UpstreamTimeout(err).WithDetail("Claude API request took too long to respond")
	}
	var statusErr *service.ProviderStatusError
	if errors.As(err, &statusErr) {
		detail := "Invalid request"
		if statusErr.StatusCode >= 500 {
			detail = "Internal server error"
		}
		return apperrors.Upstream(statusErr.StatusCode, "Claude API error", err).WithDetail(detail)
	}
	if apperrors.IsAppError(err) {
		return err
	}
	return apperrors.Upstream(0, "Service unavailable", err).
		WithDetail("External service is temporarily unavailable")
}

// debit 只有余额不足会改变对调用方的结果，其余失败按策略放行
func (o *DeductionOrchestrator) debit(ctx context.Context, userID string, cost Cost, resp *service.ChatResponse, res *ChatTurnResult) {
	amount := decimal.NewFromFloat(cost.TotalCost).Round(debitScale).InexactFloat64()
	if amount <= 0 {
		// 四舍五入后不足最小精度
		res.Outcome = DebitSkipped
		metrics.DebitTotal.WithLabelValues(string(DebitSkipped)).Inc()
		return
	}

	out, err := o.ledger.Debit(ctx, service.DebitRequest{
		UserID:      userID,
		CostUSD:     amount,
		Description: o.cfg.DebitDescription,
		Metadata:    string(resp.RawUsage),
	})

	var insufficient *service.InsufficientCreditsError
	switch {
	case err == nil:
		res.Outcome = DebitCharged
		res.RemainingCredits = &out.RemainingCredits
		res.TransactionID = out.TransactionID
		_ = o.cache.Invalidate(ctx, userID)
		logger.Info(ctx, "credits deducted", "cost_usd", amount, "transaction_id", out.TransactionID)

	case errors.As(err, &insufficient):
		res.Outcome = DebitInsufficient
		res.CurrentCredits = insufficient.CurrentCredits
		res.RequiredCredits = cost.TotalCost
		logger.Warn(ctx, "insufficient credits, withholding content",
			"current_credits", insufficient.CurrentCredits, "required_credits", cost.TotalCost)

	default:
		res.Outcome = DebitFailed
		logger.Error(ctx, "credit deduction failed, releasing content", err, "cost_usd", amount)
		payload := entity.DebitFailedPayload{
			UserID:  userID,
			CostUSD: amount,
			Usage:   resp.Usage,
			Reason:  err.Error(),
		}
		if pubErr := o.publisher.Publish(ctx, entity.BillingEventDebitFailed, userID, payload); pubErr != nil {
			logger.Error(ctx, "failed to publish debit failure event", pubErr)
		}
	}
	metrics.DebitTotal.WithLabelValues(string(res.Outcome)).Inc()
}
