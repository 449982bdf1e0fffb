package domain

import "time"

// Default trading parameters applied to newly created users.
const (
	DefaultRelayTip    uint64 = 1_000_000 // 0.001 SOL in lamports
	DefaultPriorityFee uint64 = 200_000   // 0.0002 SOL in lamports
	DefaultSlippageBps uint16 = 50
)

// Wallet holds a user's custodial keypair, base58 encoded.
// SecretKey is owned exclusively by the user record and must never be logged.
type Wallet struct {
	PublicKey string
	SecretKey string
}

// WatchProfile is an external profile on the user's watch list.
type WatchProfile struct {
	ID       string `json:"id"`
	Handle   string `json:"handle"`
	Priority bool   `json:"priority"`
}

// User is a bot user keyed by the opaque chat-account id.
type User struct {
	ChatID   int64
	Username string
	Wallet   Wallet

	// Trading parameters. Amounts are lamports (base units).
	SnipeAmount uint64
	PriorityFee uint64
	SlippageBps uint16
	RelayTip    uint64
	MevProtect  bool
	AutoTrade   bool
	Alerts      bool

	WatchProfiles []WatchProfile

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewUser creates a user with default trading parameters.
func NewUser(chatID int64, username string, wallet Wallet) *User {
	return &User{
		ChatID:      chatID,
		Username:    username,
		Wallet:      wallet,
		PriorityFee: DefaultPriorityFee,
		SlippageBps: DefaultSlippageBps,
		RelayTip:    DefaultRelayTip,
	}
}

// Eligible reports whether the user participates in signal-triggered trades.
func (u *User) Eligible() bool {
	return u.Alerts && u.AutoTrade && u.SnipeAmount > 0
}
