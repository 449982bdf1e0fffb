// Package delta derives the actual amounts exchanged by a confirmed
// swap from its on-chain transaction record. Quoted and executed
// amounts differ under slippage, so the executed trade is read back
// from the transfer legs the aggregator performed.
package delta

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/mr-tron/base58"

	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/jupiter"
	"solana-trade-bot/internal/solana"
)

// ErrAmbiguousTransfer indicates the transaction record did not contain
// enough transfer legs to attribute an input and an output amount.
var ErrAmbiguousTransfer = errors.New("cannot attribute transfer amounts")

const (
	defaultFetchAttempts = 3
	defaultFetchDelay    = 500 * time.Millisecond
)

// Reader is the RPC surface needed to reconstruct a swap.
type Reader interface {
	GetParsedTransaction(ctx context.Context, signature string) (*solana.ParsedTransaction, error)
	GetAccountInfo(ctx context.Context, pubkey string) (*solana.AccountInfo, error)
}

// Delta is the executed result of a swap in base units of each side.
type Delta struct {
	InputMint  string
	OutputMint string
	AmountIn   uint64
	AmountOut  uint64

	// UI amounts are scaled by each mint's decimals when the record
	// carried them; zero otherwise.
	UIAmountIn  float64
	UIAmountOut float64
}

// Calculator reads executed swap amounts from confirmed transactions.
type Calculator struct {
	rpc        Reader
	log        *log.Logger
	attempts   int
	fetchDelay time.Duration
}

// NewCalculator creates a Calculator backed by the given RPC reader.
func NewCalculator(rpc Reader, logger *log.Logger) *Calculator {
	if logger == nil {
		logger = log.Default()
	}
	return &Calculator{
		rpc:        rpc,
		log:        logger,
		attempts:   defaultFetchAttempts,
		fetchDelay: defaultFetchDelay,
	}
}

// leg is one transfer observed inside the swap.
type leg struct {
	mint     string
	amount   uint64
	uiAmount float64
}

// Compute fetches the confirmed transaction and attributes its first
// and last transfer legs as the swap's input and output. A confirmed
// transaction may not be queryable immediately, so the fetch is
// retried a bounded number of times.
func (c *Calculator) Compute(ctx context.Context, signature string) (*Delta, error) {
	tx, err := c.fetchTransaction(ctx, signature)
	if err != nil {
		return nil, err
	}
	return c.computeFromTransaction(ctx, tx)
}

func (c *Calculator) fetchTransaction(ctx context.Context, signature string) (*solana.ParsedTransaction, error) {
	var lastErr error
	for attempt := 0; attempt < c.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.fetchDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		tx, err := c.rpc.GetParsedTransaction(ctx, signature)
		if err == nil && tx != nil {
			return tx, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("transaction %s not yet available", signature)
		}
		c.log.Printf("fetch %s attempt %d/%d failed: %v", signature, attempt+1, c.attempts, lastErr)
	}
	return nil, fmt.Errorf("fetch transaction: %w", lastErr)
}

func (c *Calculator) computeFromTransaction(ctx context.Context, tx *solana.ParsedTransaction) (*Delta, error) {
	if tx.Meta == nil || tx.Message == nil {
		return nil, fmt.Errorf("%w: transaction record incomplete", ErrAmbiguousTransfer)
	}

	// The swap's transfers are inner instructions of the first
	// aggregator invocation. Instructions past its outer index belong
	// to unrelated trailing instructions and are excluded.
	aggIndex := -1
	for i, ix := range tx.Message.Instructions {
		if ix.ProgramID == jupiter.AggregatorProgramID {
			aggIndex = i
			break
		}
	}
	if aggIndex < 0 {
		return nil, fmt.Errorf("%w: no aggregator instruction in transaction", ErrAmbiguousTransfer)
	}

	var legs []leg
	for _, set := range tx.Meta.InnerInstructions {
		if set.Index > aggIndex {
			continue
		}
		for _, ix := range set.Instructions {
			l, ok := c.extractLeg(ctx, ix)
			if !ok {
				continue
			}
			legs = append(legs, l)
		}
	}
	if len(legs) < 2 {
		return nil, fmt.Errorf("%w: %d transfer legs found", ErrAmbiguousTransfer, len(legs))
	}

	first, last := legs[0], legs[len(legs)-1]
	return &Delta{
		InputMint:   first.mint,
		OutputMint:  last.mint,
		AmountIn:    first.amount,
		AmountOut:   last.amount,
		UIAmountIn:  first.uiAmount,
		UIAmountOut: last.uiAmount,
	}, nil
}

// extractLeg converts a parsed instruction into a transfer leg. Token
// transfers without an explicit mint are resolved through the source
// token account's data.
func (c *Calculator) extractLeg(ctx context.Context, ix solana.ParsedInstruction) (leg, bool) {
	if ix.Parsed == nil {
		return leg{}, false
	}

	switch ix.Program {
	case "system":
		if ix.Parsed.Type != "transfer" || ix.Parsed.Info.Lamports == 0 {
			return leg{}, false
		}
		return leg{
			mint:     domain.NativeMint,
			amount:   ix.Parsed.Info.Lamports,
			uiAmount: float64(ix.Parsed.Info.Lamports) / float64(domain.LamportsPerSOL),
		}, true

	case "spl-token", "spl-token-2022":
		info := ix.Parsed.Info
		switch ix.Parsed.Type {
		case "transferChecked":
			if info.TokenAmount == nil {
				return leg{}, false
			}
			amount, err := strconv.ParseUint(info.TokenAmount.Amount, 10, 64)
			if err != nil {
				return leg{}, false
			}
			return leg{
				mint:     info.Mint,
				amount:   amount,
				uiAmount: info.TokenAmount.UIAmount,
			}, true
		case "transfer":
			amount, err := strconv.ParseUint(info.Amount, 10, 64)
			if err != nil {
				return leg{}, false
			}
			return leg{
				mint:   c.resolveMint(ctx, info.Source),
				amount: amount,
			}, true
		}
	}
	return leg{}, false
}

// A token account's mint occupies the first 32 bytes of its data.
const tokenAccountMintSize = 32

// resolveMint reads a token account and returns the mint it holds.
// Resolution failures degrade to an empty mint rather than failing the
// whole attribution; the amounts are still usable.
func (c *Calculator) resolveMint(ctx context.Context, tokenAccount string) string {
	if tokenAccount == "" {
		return ""
	}
	info, err := c.rpc.GetAccountInfo(ctx, tokenAccount)
	if err != nil || info == nil || len(info.Data) < tokenAccountMintSize {
		c.log.Printf("resolve mint for %s failed: %v", tokenAccount, err)
		return ""
	}
	return base58.Encode(info.Data[:tokenAccountMintSize])
}
