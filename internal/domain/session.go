package domain

// PendingState identifies what free-text input a conversation expects next.
// The zero value (PendingNone) means the conversation is idle.
type PendingState int

const (
	PendingNone PendingState = iota

	// Trade construction.
	PendingBuyAmount
	PendingSellRatio
	PendingTransferAddress // SPL transfer of the active token
	PendingWithdrawAddress // native SOL transfer

	// Settings.
	PendingSnipeAmount
	PendingPriorityFee
	PendingSlippage
	PendingRelayTip

	// Watch-list management.
	PendingWatchAdd
	PendingWatchRemove
)

// String returns a stable label for logging.
func (p PendingState) String() string {
	switch p {
	case PendingNone:
		return "none"
	case PendingBuyAmount:
		return "buy amount"
	case PendingSellRatio:
		return "sell ratio"
	case PendingTransferAddress:
		return "transfer address"
	case PendingWithdrawAddress:
		return "withdraw address"
	case PendingSnipeAmount:
		return "snipe amount"
	case PendingPriorityFee:
		return "priority fee"
	case PendingSlippage:
		return "slippage"
	case PendingRelayTip:
		return "relay tip"
	case PendingWatchAdd:
		return "watch add"
	case PendingWatchRemove:
		return "watch remove"
	}
	return "unknown"
}

// Session is the ephemeral per-conversation state. It is not persisted:
// losing it only requires the user to reselect a token.
type Session struct {
	ChatID      int64
	Pending     PendingState
	ActiveToken *TokenDescriptor
}

// Reset returns the session to idle without touching the active token.
func (s *Session) Reset() {
	s.Pending = PendingNone
}
