// Package memory 进程内实现，仅用于本地开发和单实例部署
package memory

import (
	"context"
	"sync"
	"time"

	"credits-gateway/internal/domain/entity"
	"credits-gateway/internal/domain/service"
)

type receiptEntry struct {
	receipt   entity.WebhookReceipt
	expiresAt time.Time
}

// ReceiptStore 进程内回调去重，重启后丢失
type ReceiptStore struct {
	mu      sync.Mutex
	entries map[string]receiptEntry
	ttl     time.Duration
	now     func() time.Time
}

var _ service.ReceiptStore = (*ReceiptStore)(nil)

func NewReceiptStore(ttl time.Duration) *ReceiptStore {
	return &ReceiptStore{
		entries: make(map[string]receiptEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *ReceiptStore) Claim(_ context.Context, receipt entity.WebhookReceipt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[receipt.Key]; ok && (e.expiresAt.IsZero() || now.Before(e.expiresAt)) {
		return false, nil
	}

	if receipt.CreatedAt.IsZero() {
		receipt.CreatedAt = now.UTC()
	}
	entry := receiptEntry{receipt: receipt}
	if s.ttl > 0 {
		entry.expiresAt = now.Add(s.ttl)
	}
	s.entries[receipt.Key] = entry
	s.sweepLocked(now)
	return true, nil
}

func (s *ReceiptStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}

// Len 未过期的回执数量
func (s *ReceiptStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweepLocked(s.now())
	return len(s.entries)
}

func (s *ReceiptStore) sweepLocked(now time.Time) {
	for k, e := range s.entries {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(s.entries, k)
		}
	}
}
