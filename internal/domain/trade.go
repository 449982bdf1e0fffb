package domain

import "time"

// Direction of a trade relative to the native asset.
type Direction int

const (
	Buy Direction = iota
	Sell
)

// String returns the lowercase direction label.
func (d Direction) String() string {
	if d == Buy {
		return "buy"
	}
	return "sell"
}

// TradeIntent is the input to one pipeline run. It exists only for the
// duration of that run and is never persisted.
type TradeIntent struct {
	Direction  Direction
	InputMint  string
	OutputMint string
	Amount     uint64 // base units of the input asset

	// Fee parameters snapshotted from the user at construction time.
	PriorityFee uint64
	SlippageBps uint16
	RelayTip    uint64
	MevProtect  bool
}

// TradeResult is the terminal output of one pipeline run.
// Exactly one result is produced per intent.
type TradeResult struct {
	OK         bool
	Signature  string
	FailReason string

	// Executed amounts in ui units; the quoted amount is advisory only.
	AmountIn  float64
	AmountOut float64
}

// TradeRecord is the append-only audit row written after every terminal run.
type TradeRecord struct {
	ChatID     int64
	Direction  string
	Mint       string
	Amount     uint64
	Signature  string
	OK         bool
	FailReason string
	AmountIn   float64
	AmountOut  float64
	ExecutedAt time.Time
}
