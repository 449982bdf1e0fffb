// Package engine orchestrates the trade pipeline: quote, build, sign,
// submit, confirm, then read back the executed amounts. Every run
// terminates with exactly one TradeResult, one audit record, and one
// user notification, whatever happens along the way.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-trade-bot/internal/delta"
	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/jupiter"
	"solana-trade-bot/internal/notify"
	"solana-trade-bot/internal/observability"
	"solana-trade-bot/internal/solana"
	"solana-trade-bot/internal/storage"
	"solana-trade-bot/internal/submit"
	"solana-trade-bot/internal/txbuild"
)

// ErrInsufficientBalance indicates the wallet cannot cover the trade or
// transfer.
var ErrInsufficientBalance = errors.New("insufficient balance")

// minBuyBalance is the minimum native balance required before a buy is
// attempted, covering the trade plus fees and rent.
const minBuyBalance uint64 = 20_000_000

// stage labels the pipeline step a failure is attributed to.
type stage int

const (
	stageQuote stage = iota
	stageBuild
	stageSign
	stageSubmit
	stageConfirm
	stageDelta
)

func (s stage) String() string {
	switch s {
	case stageQuote:
		return "quote"
	case stageBuild:
		return "build"
	case stageSign:
		return "sign"
	case stageSubmit:
		return "submit"
	case stageConfirm:
		return "confirm"
	case stageDelta:
		return "delta"
	}
	return "unknown"
}

// QuoteProvider resolves routes and serialized swap transactions.
type QuoteProvider interface {
	GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps uint16) (*jupiter.Route, error)
	GetSwapTransaction(ctx context.Context, route *jupiter.Route, userPublicKey string, priorityFeeLamports uint64) (string, error)
}

// BalanceReader is the RPC surface the engine reads balances and
// blockhashes from.
type BalanceReader interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint string) (solana.TokenBalance, error)
	GetLatestBlockhash(ctx context.Context) (*solana.Blockhash, error)
}

// TransactionSubmitter lands signed transactions.
type TransactionSubmitter interface {
	Submit(ctx context.Context, req submit.Request) (string, error)
	Confirm(ctx context.Context, signature string) error
}

// DeltaReader reads executed amounts off a confirmed swap.
type DeltaReader interface {
	Compute(ctx context.Context, signature string) (*delta.Delta, error)
}

// TransferBuilder assembles unsigned token transfers.
type TransferBuilder interface {
	BuildTokenTransfer(ctx context.Context, p txbuild.TokenTransferParams) (*txbuild.Transaction, error)
}

// Orchestrator drives trade pipelines and transfers.
type Orchestrator struct {
	users     storage.UserStore
	quotes    QuoteProvider
	rpc       BalanceReader
	submitter TransactionSubmitter
	deltas    DeltaReader
	builder   TransferBuilder
	tradeLog  storage.TradeLogStore
	notifier  notify.Notifier
	log       *log.Logger
	workers   int
}

// Options configures an Orchestrator. Users, Quotes, RPC, Submitter,
// Deltas and Notifier are required.
type Options struct {
	Users     storage.UserStore
	Quotes    QuoteProvider
	RPC       BalanceReader
	Submitter TransactionSubmitter
	Deltas    DeltaReader
	Builder   TransferBuilder
	TradeLog  storage.TradeLogStore
	Notifier  notify.Notifier
	Log       *log.Logger

	// Workers bounds concurrent pipelines during fan-out. Defaults to
	// DefaultWorkers when not positive.
	Workers int
}

// New creates an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Users == nil || opts.Quotes == nil || opts.RPC == nil ||
		opts.Submitter == nil || opts.Deltas == nil || opts.Notifier == nil {
		return nil, errors.New("engine: missing required dependency")
	}
	logger := opts.Log
	if logger == nil {
		logger = log.Default()
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Orchestrator{
		users:     opts.Users,
		quotes:    opts.Quotes,
		rpc:       opts.RPC,
		submitter: opts.Submitter,
		deltas:    opts.Deltas,
		builder:   opts.Builder,
		tradeLog:  opts.TradeLog,
		notifier:  opts.Notifier,
		log:       logger,
		workers:   workers,
	}, nil
}

// BuyIntent builds a buy intent from the user's settings.
func BuyIntent(u *domain.User, mint string, amount uint64) domain.TradeIntent {
	return domain.TradeIntent{
		Direction:   domain.Buy,
		InputMint:   domain.NativeMint,
		OutputMint:  mint,
		Amount:      amount,
		PriorityFee: u.PriorityFee,
		SlippageBps: u.SlippageBps,
		RelayTip:    u.RelayTip,
		MevProtect:  u.MevProtect,
	}
}

// SellIntent builds a sell intent from the user's settings.
func SellIntent(u *domain.User, mint string, amount uint64) domain.TradeIntent {
	return domain.TradeIntent{
		Direction:   domain.Sell,
		InputMint:   mint,
		OutputMint:  domain.NativeMint,
		Amount:      amount,
		PriorityFee: u.PriorityFee,
		SlippageBps: u.SlippageBps,
		RelayTip:    u.RelayTip,
		MevProtect:  u.MevProtect,
	}
}

// ExecuteTrade runs one trade pipeline to completion. It always returns
// a result, writes one audit record, and sends one notification.
func (o *Orchestrator) ExecuteTrade(ctx context.Context, user *domain.User, intent domain.TradeIntent) domain.TradeResult {
	start := time.Now()
	result := o.run(ctx, user, intent)

	outcome := "failed"
	if result.OK {
		outcome = "ok"
	}
	observability.RecordTrade(intent.Direction.String(), outcome, time.Since(start).Seconds())

	o.audit(ctx, user, intent, result)
	o.notifyResult(ctx, user, intent, result)
	return result
}

// run executes the pipeline stages. A panic anywhere inside is
// converted into a generic failure so a single user's trade can never
// take down a fan-out batch.
func (o *Orchestrator) run(ctx context.Context, user *domain.User, intent domain.TradeIntent) (result domain.TradeResult) {
	st := stageQuote
	defer func() {
		if r := recover(); r != nil {
			o.log.Printf("pipeline panic for chat %d at %s: %v", user.ChatID, st, r)
			observability.RecordStageFailure(st.String())
			result = domain.TradeResult{FailReason: "internal error"}
		}
	}()

	if err := o.checkBalance(ctx, user, intent); err != nil {
		o.log.Printf("chat %d %s rejected: %v", user.ChatID, intent.Direction, err)
		return domain.TradeResult{FailReason: err.Error()}
	}

	route, err := o.quotes.GetQuote(ctx, intent.InputMint, intent.OutputMint, intent.Amount, intent.SlippageBps)
	if err != nil {
		return o.fail(st, user, "no route for this trade", err)
	}

	st = stageBuild
	swapB64, err := o.quotes.GetSwapTransaction(ctx, route, user.Wallet.PublicKey, intent.PriorityFee)
	if err != nil {
		return o.fail(st, user, "could not build transaction", err)
	}
	tx, err := txbuild.DecodeBase64(swapB64)
	if err != nil {
		return o.fail(st, user, "could not build transaction", err)
	}

	st = stageSign
	kp, err := solana.KeypairFromSecretKey(user.Wallet.SecretKey)
	if err != nil {
		return o.fail(st, user, "wallet key unavailable", err)
	}
	tx.Sign(kp)

	st = stageSubmit
	sig, err := o.submitter.Submit(ctx, submit.Request{
		Tx:          tx,
		Signer:      kp,
		MevProtect:  intent.MevProtect,
		TipLamports: intent.RelayTip,
	})
	if err != nil {
		return o.fail(st, user, "submission failed", err)
	}

	st = stageConfirm
	confirmStart := time.Now()
	if err := o.submitter.Confirm(ctx, sig); err != nil {
		res := o.fail(st, user, confirmFailReason(err), err)
		res.Signature = sig
		return res
	}
	observability.RecordConfirmation(time.Since(confirmStart).Seconds())

	st = stageDelta
	result = domain.TradeResult{OK: true, Signature: sig}
	d, err := o.deltas.Compute(ctx, sig)
	if err != nil {
		// The trade landed; only the executed amounts are unknown.
		o.log.Printf("delta for %s unavailable: %v", sig, err)
		observability.RecordStageFailure(st.String())
		return result
	}
	result.AmountIn = d.UIAmountIn
	result.AmountOut = d.UIAmountOut
	return result
}

func (o *Orchestrator) fail(st stage, user *domain.User, reason string, err error) domain.TradeResult {
	o.log.Printf("chat %d pipeline failed at %s: %v", user.ChatID, st, err)
	observability.RecordStageFailure(st.String())
	return domain.TradeResult{FailReason: reason}
}

func confirmFailReason(err error) string {
	if errors.Is(err, submit.ErrOnChain) {
		return "transaction failed on chain"
	}
	return "confirmation timed out"
}

// checkBalance gates the pipeline before any quote is requested. Buys
// require the native balance to cover both the trade and a fee floor;
// sells require the token balance to cover the amount.
func (o *Orchestrator) checkBalance(ctx context.Context, user *domain.User, intent domain.TradeIntent) error {
	switch intent.Direction {
	case domain.Buy:
		balance, err := o.rpc.GetBalance(ctx, user.Wallet.PublicKey)
		if err != nil {
			return fmt.Errorf("read balance: %w", err)
		}
		need := intent.Amount
		if need < minBuyBalance {
			need = minBuyBalance
		}
		if balance < need {
			return fmt.Errorf("%w: have %d lamports, need %d", ErrInsufficientBalance, balance, need)
		}
	case domain.Sell:
		balance, err := o.rpc.GetTokenBalance(ctx, user.Wallet.PublicKey, intent.InputMint)
		if err != nil {
			return fmt.Errorf("read token balance: %w", err)
		}
		if balance.Amount < intent.Amount {
			return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, balance.Amount, intent.Amount)
		}
	}
	return nil
}

// audit appends the terminal record. Audit failures are logged and
// swallowed; the trade outcome already happened.
func (o *Orchestrator) audit(ctx context.Context, user *domain.User, intent domain.TradeIntent, result domain.TradeResult) {
	if o.tradeLog == nil {
		return
	}
	mint := intent.OutputMint
	if intent.Direction == domain.Sell {
		mint = intent.InputMint
	}
	rec := &domain.TradeRecord{
		ChatID:     user.ChatID,
		Direction:  intent.Direction.String(),
		Mint:       mint,
		Amount:     intent.Amount,
		Signature:  result.Signature,
		OK:         result.OK,
		FailReason: result.FailReason,
		AmountIn:   result.AmountIn,
		AmountOut:  result.AmountOut,
		ExecutedAt: time.Now().UTC(),
	}
	if err := o.tradeLog.Insert(ctx, rec); err != nil {
		o.log.Printf("trade log insert for chat %d: %v", user.ChatID, err)
	}
}

func (o *Orchestrator) notifyResult(ctx context.Context, user *domain.User, intent domain.TradeIntent, result domain.TradeResult) {
	var text string
	switch {
	case result.OK && result.AmountOut > 0:
		text = fmt.Sprintf("%s confirmed: %s\nIn: %.6f Out: %.6f", intent.Direction, result.Signature, result.AmountIn, result.AmountOut)
	case result.OK:
		text = fmt.Sprintf("%s confirmed: %s", intent.Direction, result.Signature)
	case result.Signature != "":
		text = fmt.Sprintf("%s not confirmed (%s): %s", intent.Direction, result.FailReason, result.Signature)
	default:
		text = fmt.Sprintf("%s failed: %s", intent.Direction, result.FailReason)
	}
	if _, err := o.notifier.Send(ctx, user.ChatID, text, nil); err != nil {
		o.log.Printf("notify chat %d: %v", user.ChatID, err)
	}
}
