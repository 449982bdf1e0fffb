package txbuild

import (
	"context"
	"fmt"

	"solana-trade-bot/internal/solana"
)

// Compute budget applied to native transfers: a tiny unit limit with a
// high per-unit price keeps the absolute fee small while still
// prioritizing the transaction.
const (
	nativeTransferUnits     = 500
	nativeTransferUnitPrice = 300_000_000
)

// AccountChecker is the account-existence lookup the builder needs to
// decide whether a recipient token account must be created.
type AccountChecker interface {
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
}

// Builder assembles unsigned transfer transactions.
type Builder struct {
	rpc AccountChecker
}

// NewBuilder creates a Builder.
func NewBuilder(rpc AccountChecker) *Builder {
	return &Builder{rpc: rpc}
}

// TokenTransferParams describes one SPL token transfer.
type TokenTransferParams struct {
	Mint        string
	From        string // owner wallet, also fee payer
	To          string // recipient wallet
	Amount      uint64 // base units
	PriorityFee uint64 // lamports
	Blockhash   string
}

// BuildTokenTransfer builds an unsigned token transfer. When the recipient
// holds no token account for the mint, its creation instruction is
// prepended before the transfer. The compute-unit-price instruction is
// prepended last, sized from the final instruction count.
func (b *Builder) BuildTokenTransfer(ctx context.Context, p TokenTransferParams) (*Transaction, error) {
	if p.Amount == 0 {
		return nil, fmt.Errorf("%w: zero transfer amount", ErrBuild)
	}

	mint, err := PublicKeyFromBase58(p.Mint)
	if err != nil {
		return nil, err
	}
	from, err := PublicKeyFromBase58(p.From)
	if err != nil {
		return nil, err
	}
	to, err := PublicKeyFromBase58(p.To)
	if err != nil {
		return nil, err
	}

	sourceATA, err := FindAssociatedTokenAddress(from, mint)
	if err != nil {
		return nil, err
	}
	destATA, err := FindAssociatedTokenAddress(to, mint)
	if err != nil {
		return nil, err
	}

	var instructions []Instruction

	info, err := b.rpc.GetAccountInfo(ctx, destATA.String())
	if err != nil {
		return nil, fmt.Errorf("check recipient token account: %w", err)
	}
	if info == nil {
		instructions = append(instructions, CreateAssociatedTokenAccount(from, destATA, to, mint))
	}

	instructions = append(instructions, TokenTransfer(sourceATA, destATA, from, p.Amount))

	micro := PriorityFeeMicroLamports(p.PriorityFee, len(instructions))
	instructions = append([]Instruction{SetComputeUnitPrice(micro)}, instructions...)

	message, err := CompileMessage(from, instructions, p.Blockhash)
	if err != nil {
		return nil, err
	}
	return NewTransaction(message), nil
}

// NativeTransferParams describes one lamport transfer.
type NativeTransferParams struct {
	From      string
	To        string
	Lamports  uint64
	Blockhash string
}

// BuildNativeTransfer builds an unsigned SOL transfer with a fixed
// compute budget.
func BuildNativeTransfer(p NativeTransferParams) (*Transaction, error) {
	if p.Lamports == 0 {
		return nil, fmt.Errorf("%w: zero transfer amount", ErrBuild)
	}

	from, err := PublicKeyFromBase58(p.From)
	if err != nil {
		return nil, err
	}
	to, err := PublicKeyFromBase58(p.To)
	if err != nil {
		return nil, err
	}

	instructions := []Instruction{
		SetComputeUnitLimit(nativeTransferUnits),
		SetComputeUnitPrice(nativeTransferUnitPrice),
		SystemTransfer(from, to, p.Lamports),
	}

	message, err := CompileMessage(from, instructions, p.Blockhash)
	if err != nil {
		return nil, err
	}
	return NewTransaction(message), nil
}

// BuildTipTransfer builds an unsigned plain lamport transfer used as a
// relay tip alongside a bundle.
func BuildTipTransfer(from, to string, lamports uint64, blockhash string) (*Transaction, error) {
	if lamports == 0 {
		return nil, fmt.Errorf("%w: zero tip amount", ErrBuild)
	}

	fromPK, err := PublicKeyFromBase58(from)
	if err != nil {
		return nil, err
	}
	toPK, err := PublicKeyFromBase58(to)
	if err != nil {
		return nil, err
	}

	message, err := CompileMessage(fromPK, []Instruction{SystemTransfer(fromPK, toPK, lamports)}, blockhash)
	if err != nil {
		return nil, err
	}
	return NewTransaction(message), nil
}
