package domain

// Well-known mints and scale factors.
const (
	// NativeMint is the wrapped-SOL mint, used as the native side of routes.
	NativeMint = "So11111111111111111111111111111111111111112"

	// NativeDecimals is the decimal precision of SOL.
	NativeDecimals = 9

	// LamportsPerSOL is the base-unit scale of the native asset.
	LamportsPerSOL = 1_000_000_000
)

// Risk score levels derived from mint/freeze authority presence.
const (
	RiskNone            = 0
	RiskMintAuthority   = 50
	RiskFreezeAuthority = 100
)

// TokenDescriptor describes a selected token. Immutable once fetched
// within a session; refetched on each new token selection.
type TokenDescriptor struct {
	Mint     string
	Name     string
	Symbol   string
	Decimals uint8
	Risk     int
	Price    float64 // advisory, may be zero when the price feed has no data
}

// DisplayName prefers the symbol and falls back to the name.
func (t *TokenDescriptor) DisplayName() string {
	if t.Symbol != "" {
		return t.Symbol
	}
	return t.Name
}
