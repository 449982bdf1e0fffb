package conversation

import (
	"errors"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"solana-trade-bot/internal/domain"
)

// ErrValidation indicates user input that cannot be accepted. The
// conversation re-prompts without advancing state.
var ErrValidation = errors.New("invalid input")

// tokenAddressPattern matches a base58 string of mint-address length
// anywhere in a message.
var tokenAddressPattern = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{43,44}`)

// extractTokenAddress returns the first mint-shaped substring, if any.
func extractTokenAddress(text string) (string, bool) {
	m := tokenAddressPattern.FindString(text)
	return m, m != ""
}

// parseNativeAmount converts a SOL amount like "2.5" to lamports,
// flooring sub-lamport precision.
func parseNativeAmount(text string) (uint64, error) {
	return parseScaledAmount(text, domain.NativeDecimals)
}

// parseScaledAmount converts a decimal amount to base units at the
// given decimal scale.
func parseScaledAmount(text string, decimals uint8) (uint64, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(text))
	if err != nil {
		return 0, errors.Join(ErrValidation, err)
	}
	if d.IsNegative() || d.IsZero() {
		return 0, ErrValidation
	}
	scaled := d.Shift(int32(decimals)).Floor()
	if !scaled.IsPositive() {
		return 0, ErrValidation
	}
	base := scaled.BigInt()
	if !base.IsUint64() {
		return 0, ErrValidation
	}
	return base.Uint64(), nil
}

// parseRatio accepts a percentage in (0, 100] and returns it as a
// fraction. The preset values 25, 50, 75 and 100 arrive through
// buttons but typing any percentage works too.
func parseRatio(text string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "%")))
	if err != nil {
		return decimal.Zero, errors.Join(ErrValidation, err)
	}
	hundred := decimal.NewFromInt(100)
	if !d.IsPositive() || d.GreaterThan(hundred) {
		return decimal.Zero, ErrValidation
	}
	return d.Div(hundred), nil
}

// ratioOf applies a fraction to a base-unit balance, flooring.
func ratioOf(balance uint64, ratio decimal.Decimal) uint64 {
	amount := decimal.NewFromUint64(balance).Mul(ratio).Floor()
	base := amount.BigInt()
	if !base.IsUint64() {
		return 0
	}
	return base.Uint64()
}

// parseSlippagePercent converts a percentage like "0.5" to basis
// points. Anything above 100% is rejected.
func parseSlippagePercent(text string) (uint16, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(text), "%")))
	if err != nil {
		return 0, errors.Join(ErrValidation, err)
	}
	if !d.IsPositive() || d.GreaterThan(decimal.NewFromInt(100)) {
		return 0, ErrValidation
	}
	bps := d.Shift(2).Floor()
	if !bps.IsPositive() {
		return 0, ErrValidation
	}
	v := bps.BigInt()
	if !v.IsUint64() || v.Uint64() > 10_000 {
		return 0, ErrValidation
	}
	return uint16(v.Uint64()), nil
}
