// Package conversation turns chat messages and button callbacks into
// user actions: token selection, trades, transfers, and settings
// changes. Per-chat state is an in-memory session holding only the
// pending input kind and the active token.
package conversation

import (
	"sync"

	"solana-trade-bot/internal/domain"
)

// SessionStore holds one session per chat, plus a lock serializing
// that chat's updates. Sessions are mutated freely while the chat
// lock is held.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*domain.Session
	locks    map[int64]*sync.Mutex
}

// NewSessionStore creates an empty session store.
func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]*domain.Session),
		locks:    make(map[int64]*sync.Mutex),
	}
}

// Get returns the chat's session, creating an idle one when absent.
// Callers must hold the chat lock from Acquire.
func (s *SessionStore) Get(chatID int64) *domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[chatID]
	if !ok {
		sess = &domain.Session{ChatID: chatID}
		s.sessions[chatID] = sess
	}
	return sess
}

// Acquire blocks until the chat's lock is free and returns the
// release func. Updates for one chat run strictly in arrival order;
// different chats proceed in parallel.
func (s *SessionStore) Acquire(chatID int64) func() {
	s.mu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
