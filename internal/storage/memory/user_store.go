// Package memory provides in-memory storage implementations for
// development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu    sync.RWMutex
	users map[int64]*domain.User
}

var _ storage.UserStore = (*UserStore)(nil)

// NewUserStore creates an empty in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{users: make(map[int64]*domain.User)}
}

func (s *UserStore) Create(_ context.Context, u *domain.User) error {
	if u == nil {
		return fmt.Errorf("%w: nil user", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ChatID]; exists {
		return fmt.Errorf("%w: chat id %d", storage.ErrDuplicateKey, u.ChatID)
	}
	s.users[u.ChatID] = copyUser(u)
	return nil
}

func (s *UserStore) GetByChatID(_ context.Context, chatID int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, exists := s.users[chatID]
	if !exists {
		return nil, fmt.Errorf("%w: chat id %d", storage.ErrNotFound, chatID)
	}
	return copyUser(u), nil
}

func (s *UserStore) Save(_ context.Context, u *domain.User) error {
	if u == nil {
		return fmt.Errorf("%w: nil user", storage.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ChatID]; !exists {
		return fmt.Errorf("%w: chat id %d", storage.ErrNotFound, u.ChatID)
	}
	s.users[u.ChatID] = copyUser(u)
	return nil
}

func (s *UserStore) ListEligible(_ context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.User
	for _, u := range s.users {
		if u.Eligible() {
			out = append(out, copyUser(u))
		}
	}
	return out, nil
}

func (s *UserStore) ListAlertEnabled(_ context.Context) ([]*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.User
	for _, u := range s.users {
		if u.Alerts {
			out = append(out, copyUser(u))
		}
	}
	return out, nil
}

// copyUser returns a deep copy so callers cannot mutate stored state.
func copyUser(u *domain.User) *domain.User {
	c := *u
	if u.WatchProfiles != nil {
		c.WatchProfiles = make([]domain.WatchProfile, len(u.WatchProfiles))
		copy(c.WatchProfiles, u.WatchProfiles)
	}
	return &c
}
