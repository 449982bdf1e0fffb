package memory

import (
	"context"
	"fmt"
	"sync"

	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/storage"
)

// TradeLogStore is an in-memory implementation of storage.TradeLogStore.
type TradeLogStore struct {
	mu      sync.RWMutex
	records []*domain.TradeRecord
}

var _ storage.TradeLogStore = (*TradeLogStore)(nil)

// NewTradeLogStore creates an empty in-memory trade log.
func NewTradeLogStore() *TradeLogStore {
	return &TradeLogStore{}
}

func (s *TradeLogStore) Insert(_ context.Context, r *domain.TradeRecord) error {
	if r == nil {
		return fmt.Errorf("%w: nil record", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *r
	s.records = append(s.records, &c)
	return nil
}

func (s *TradeLogStore) GetByChatID(_ context.Context, chatID int64, limit int) ([]*domain.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TradeRecord
	for i := len(s.records) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.records[i].ChatID != chatID {
			continue
		}
		c := *s.records[i]
		out = append(out, &c)
	}
	return out, nil
}
