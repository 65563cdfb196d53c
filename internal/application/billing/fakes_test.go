package billing

import (
	"context"
	"encoding/json"
	"sync"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
)

// fakeLedger 记录调用，按需返回预设结果
type fakeLedger struct {
	mu sync.Mutex

	debits    []service.DebitRequest
	credits   []service.CreditRequest
	purchases []service.PurchaseRequest
	adjusts   []service.AdjustRequest
	logs      []entity.WebhookReceivedPayload
	accounts  int

	balance     float64
	debitErr    error
	creditErr   error
	purchaseErr error
	adjustErr   error
	accountErr  error
	logErr      error
}

func newFakeLedger(balance float64) *fakeLedger {
	return &fakeLedger{balance: balance}
}

func (f *fakeLedger) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.debits) + len(f.credits) + len(f.purchases) + len(f.adjusts)
}

func (f *fakeLedger) Debit(_ context.Context, req service.DebitRequest) (*service.DebitResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.debits = append(f.debits, req)
	if f.debitErr != nil {
		return nil, f.debitErr
	}
	if f.balance < req.CostUSD {
		return nil, &service.InsufficientCreditsError{CurrentCredits: f.balance, RequiredCredits: req.CostUSD}
	}
	f.balance -= req.CostUSD
	return &service.DebitResult{UserID: req.UserID, RemainingCredits: f.balance, TransactionID: "tx-debit"}, nil
}

func (f *fakeLedger) Credit(_ context.Context, req service.CreditRequest) (*service.CreditResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits = append(f.credits, req)
	if f.creditErr != nil {
		return nil, f.creditErr
	}
	f.balance += req.Credits
	return &service.CreditResult{UserID: req.UserID, NewCredits: f.balance, TransactionID: "tx-credit"}, nil
}

func (f *fakeLedger) Purchase(_ context.Context, req service.PurchaseRequest) (*service.PurchaseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purchases = append(f.purchases, req)
	if f.purchaseErr != nil {
		return nil, f.purchaseErr
	}
	f.balance += float64(req.Credits)
	return &service.PurchaseResult{UserID: "user-" + req.Username, TransactionID: "tx-purchase"}, nil
}

func (f *fakeLedger) Account(_ context.Context, userID string) (*entity.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.accounts++
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	return &entity.Account{UserID: userID, Credits: f.balance, AccessType: entity.AccessTierPaid}, nil
}

func (f *fakeLedger) Verify(_ context.Context, userID, username string) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"figma_user_id": userID, "figma_username": username, "credits": f.balance})
}

func (f *fakeLedger) Transactions(_ context.Context, q service.TransactionQuery) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"transactions": []any{}, "limit": q.Limit, "offset": q.Offset})
}

func (f *fakeLedger) MonthlyCredits(_ context.Context, userID, _ string) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"figma_user_id": userID, "granted": false})
}

func (f *fakeLedger) LogWebhook(_ context.Context, payload entity.WebhookReceivedPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, payload)
	return f.logErr
}

func (f *fakeLedger) CheckSubscriptions(context.Context) (*service.SubscriptionCheckResult, error) {
	return &service.SubscriptionCheckResult{UsersChecked: 3, ExpiredCount: 1}, nil
}

func (f *fakeLedger) AdjustCredits(_ context.Context, req service.AdjustRequest) (*service.AdjustResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.adjusts = append(f.adjusts, req)
	if f.adjustErr != nil {
		return nil, f.adjustErr
	}
	prev := f.balance
	f.balance += req.Delta
	return &service.AdjustResult{
		UserID:          "u-1",
		Username:        req.Username,
		PreviousCredits: prev,
		NewCredits:      f.balance,
		Delta:           req.Delta,
		TransactionID:   "tx-adjust",
	}, nil
}

func (f *fakeLedger) AddBetaUser(_ context.Context, username string, credits float64) (*service.BetaUserResult, error) {
	return &service.BetaUserResult{Username: username, Credits: credits, AccessType: entity.AccessTierBeta}, nil
}

func (f *fakeLedger) ListUsers(_ context.Context, q service.UserListQuery) (*service.UserPage, error) {
	return &service.UserPage{Users: json.RawMessage(`[]`), Total: 0, HasMore: false}, nil
}

func (f *fakeLedger) ListUsersCursor(_ context.Context, q service.UserCursorQuery) (json.RawMessage, error) {
	return json.Marshal(map[string]any{"limit": q.Limit, "cursor_created_at": q.CursorCreatedAt, "cursor_id": q.CursorID})
}

// fakeProvider 统计调用次数
type fakeProvider struct {
	mu    sync.Mutex
	count int
	resp  *service.ChatResponse
	err   error
	block bool
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Complete(ctx context.Context, _ service.ChatRequest) (*service.ChatResponse, error) {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
	if p.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return p.resp, p.err
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

// fakeReceipts 内存去重
type fakeReceipts struct {
	mu       sync.Mutex
	keys     map[string]bool
	claimErr error
	released []string
}

func newFakeReceipts() *fakeReceipts {
	return &fakeReceipts{keys: map[string]bool{}}
}

func (r *fakeReceipts) Claim(_ context.Context, receipt entity.WebhookReceipt) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.claimErr != nil {
		return false, r.claimErr
	}
	if r.keys[receipt.Key] {
		return false, nil
	}
	r.keys[receipt.Key] = true
	return true, nil
}

func (r *fakeReceipts) Release(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, key)
	r.released = append(r.released, key)
	return nil
}

// fakePublisher 记录发布的事件类型
type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(_ context.Context, eventType, _ string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
	return nil
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}
