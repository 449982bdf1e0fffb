// Package storage defines the persistence contracts for user records
// and the trade audit log. Backends implement these interfaces; callers
// depend only on the interfaces and the shared sentinel errors.
package storage

import (
	"context"

	"solana-trade-bot/internal/domain"
)

// UserStore provides access to user records.
type UserStore interface {
	// Create adds a new user. Returns ErrDuplicateKey if the chat id exists.
	Create(ctx context.Context, u *domain.User) error

	// GetByChatID retrieves a user. Returns ErrNotFound if not exists.
	GetByChatID(ctx context.Context, chatID int64) (*domain.User, error)

	// Save persists the full user record. Returns ErrNotFound if the
	// user was never created.
	Save(ctx context.Context, u *domain.User) error

	// ListEligible retrieves users eligible for signal-triggered trades:
	// alerts on, auto-trade on, positive snipe amount.
	ListEligible(ctx context.Context) ([]*domain.User, error)

	// ListAlertEnabled retrieves users with alerts on, whether or not
	// they auto-trade.
	ListAlertEnabled(ctx context.Context) ([]*domain.User, error)
}

// TradeLogStore provides access to the append-only trade audit log.
type TradeLogStore interface {
	// Insert appends one trade record.
	Insert(ctx context.Context, r *domain.TradeRecord) error

	// GetByChatID retrieves a user's most recent trades, newest first.
	GetByChatID(ctx context.Context, chatID int64, limit int) ([]*domain.TradeRecord, error)
}
