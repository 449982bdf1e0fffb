package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/observability"
	"solana-trade-bot/internal/storage"
)

// observe feeds a query's duration and outcome into the db metrics.
// Deferred with a pointer so the final error is recorded.
func observe(op string, start time.Time, err *error) {
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), *err)
}

// UserStore is a PostgreSQL implementation of storage.UserStore.
type UserStore struct {
	pool *Pool
}

var _ storage.UserStore = (*UserStore)(nil)

// NewUserStore creates a user store backed by the given pool.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

const userColumns = `chat_id, username, wallet_public_key, wallet_secret_key,
	snipe_amount, priority_fee, slippage_bps, relay_tip,
	mev_protect, auto_trade, alerts, watch_profiles, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, u *domain.User) (err error) {
	defer observe("create", time.Now(), &err)
	if u == nil {
		return fmt.Errorf("%w: nil user", storage.ErrInvalidInput)
	}

	profiles, err := json.Marshal(u.WatchProfiles)
	if err != nil {
		return fmt.Errorf("marshal watch profiles: %w", err)
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err = s.pool.Exec(ctx, query,
		u.ChatID, u.Username, u.Wallet.PublicKey, u.Wallet.SecretKey,
		int64(u.SnipeAmount), int64(u.PriorityFee), int32(u.SlippageBps), int64(u.RelayTip),
		u.MevProtect, u.AutoTrade, u.Alerts, profiles, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: chat id %d", storage.ErrDuplicateKey, u.ChatID)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetByChatID(ctx context.Context, chatID int64) (_ *domain.User, err error) {
	defer observe("get", time.Now(), &err)
	query := `SELECT ` + userColumns + ` FROM users WHERE chat_id = $1`

	u, err := scanUser(s.pool.QueryRow(ctx, query, chatID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("%w: chat id %d", storage.ErrNotFound, chatID)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) Save(ctx context.Context, u *domain.User) (err error) {
	defer observe("save", time.Now(), &err)
	if u == nil {
		return fmt.Errorf("%w: nil user", storage.ErrInvalidInput)
	}

	profiles, err := json.Marshal(u.WatchProfiles)
	if err != nil {
		return fmt.Errorf("marshal watch profiles: %w", err)
	}

	u.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE users SET
			username = $2, wallet_public_key = $3, wallet_secret_key = $4,
			snipe_amount = $5, priority_fee = $6, slippage_bps = $7, relay_tip = $8,
			mev_protect = $9, auto_trade = $10, alerts = $11,
			watch_profiles = $12, updated_at = $13
		WHERE chat_id = $1`

	tag, err := s.pool.Exec(ctx, query,
		u.ChatID, u.Username, u.Wallet.PublicKey, u.Wallet.SecretKey,
		int64(u.SnipeAmount), int64(u.PriorityFee), int32(u.SlippageBps), int64(u.RelayTip),
		u.MevProtect, u.AutoTrade, u.Alerts, profiles, u.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: chat id %d", storage.ErrNotFound, u.ChatID)
	}
	return nil
}

func (s *UserStore) ListEligible(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE alerts AND auto_trade AND snipe_amount > 0
		ORDER BY chat_id`
	return s.list(ctx, "list_eligible", query)
}

func (s *UserStore) ListAlertEnabled(ctx context.Context) ([]*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE alerts ORDER BY chat_id`
	return s.list(ctx, "list_alert_enabled", query)
}

func (s *UserStore) list(ctx context.Context, op, query string) (_ []*domain.User, err error) {
	defer observe(op, time.Now(), &err)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	var (
		u           domain.User
		snipeAmount int64
		priorityFee int64
		slippageBps int32
		relayTip    int64
		profiles    []byte
	)
	err := row.Scan(
		&u.ChatID, &u.Username, &u.Wallet.PublicKey, &u.Wallet.SecretKey,
		&snipeAmount, &priorityFee, &slippageBps, &relayTip,
		&u.MevProtect, &u.AutoTrade, &u.Alerts, &profiles, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.SnipeAmount = uint64(snipeAmount)
	u.PriorityFee = uint64(priorityFee)
	u.SlippageBps = uint16(slippageBps)
	u.RelayTip = uint64(relayTip)

	if len(profiles) > 0 {
		if err := json.Unmarshal(profiles, &u.WatchProfiles); err != nil {
			return nil, fmt.Errorf("unmarshal watch profiles: %w", err)
		}
	}
	return &u, nil
}
