// Package submit lands signed transactions on chain and waits for
// confirmation. It supports two paths: direct RPC submission and
// relay bundles for MEV-protected execution.
package submit

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"solana-trade-bot/internal/solana"
	"solana-trade-bot/internal/txbuild"
)

var (
	// ErrConfirmationTimeout indicates the network did not confirm the
	// transaction within the confirmation window. The transaction may
	// still land later; callers should treat the outcome as unknown.
	ErrConfirmationTimeout = errors.New("confirmation timed out")

	// ErrOnChain indicates the transaction was confirmed but failed
	// during execution.
	ErrOnChain = errors.New("transaction failed on chain")
)

// DefaultConfirmTimeout bounds how long a submission waits for the
// network to confirm before the outcome is reported as unknown.
const DefaultConfirmTimeout = 30 * time.Second

// directMaxRetries is how many times the RPC node resubmits a
// directly-sent transaction before dropping it.
const directMaxRetries = 5

// Sender is the RPC surface the submitter needs.
type Sender interface {
	SendTransaction(ctx context.Context, txBase64 string, opts *solana.SendOptions) (string, error)
	GetLatestBlockhash(ctx context.Context) (*solana.Blockhash, error)
}

// Relay is the block-engine surface used for protected submissions.
type Relay interface {
	PickTipAccount(ctx context.Context) (string, error)
	SendBundle(ctx context.Context, txsBase64 []string) (string, error)
}

// Confirmer waits for signature confirmation notifications.
type Confirmer interface {
	SubscribeSignature(ctx context.Context, signature string) (<-chan solana.SignatureResult, error)
}

// Submitter routes signed transactions to the network.
type Submitter struct {
	rpc            Sender
	relay          Relay
	ws             Confirmer
	log            *log.Logger
	confirmTimeout time.Duration
}

// Options configures a Submitter.
type Options struct {
	RPC   Sender
	Relay Relay
	WS    Confirmer
	Log   *log.Logger

	// ConfirmTimeout overrides DefaultConfirmTimeout when positive.
	ConfirmTimeout time.Duration
}

// New creates a Submitter.
func New(opts Options) *Submitter {
	logger := opts.Log
	if logger == nil {
		logger = log.Default()
	}
	timeout := opts.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	return &Submitter{
		rpc:            opts.RPC,
		relay:          opts.Relay,
		ws:             opts.WS,
		log:            logger,
		confirmTimeout: timeout,
	}
}

// Request describes a signed transaction ready for submission.
type Request struct {
	// Tx must already be signed.
	Tx *txbuild.Transaction

	// Signer pays the relay tip on protected submissions.
	Signer *solana.Keypair

	// MevProtect routes through the relay as a bundle with a tip
	// transfer instead of the public RPC path.
	MevProtect bool

	// TipLamports is the relay tip for protected submissions.
	TipLamports uint64
}

// Submit sends the transaction and returns its signature without
// waiting for confirmation.
func (s *Submitter) Submit(ctx context.Context, req Request) (string, error) {
	if req.MevProtect {
		return s.submitBundle(ctx, req)
	}
	return s.submitDirect(ctx, req)
}

func (s *Submitter) submitDirect(ctx context.Context, req Request) (string, error) {
	sig, err := s.rpc.SendTransaction(ctx, req.Tx.Base64(), &solana.SendOptions{
		SkipPreflight: true,
		MaxRetries:    directMaxRetries,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	s.log.Printf("submitted %s via rpc", sig)
	return sig, nil
}

// submitBundle pairs the swap with a tip transfer and submits both as
// an atomic bundle. The reported signature is the swap's own signature
// so confirmation tracking works identically on both paths.
func (s *Submitter) submitBundle(ctx context.Context, req Request) (string, error) {
	if req.Signer == nil {
		return "", errors.New("protected submission requires a signer for the tip")
	}

	tipAccount, err := s.relay.PickTipAccount(ctx)
	if err != nil {
		return "", fmt.Errorf("pick tip account: %w", err)
	}

	blockhash, err := s.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get blockhash for tip: %w", err)
	}

	tipTx, err := txbuild.BuildTipTransfer(req.Signer.PublicKeyString(), tipAccount, req.TipLamports, blockhash.Blockhash)
	if err != nil {
		return "", fmt.Errorf("build tip transfer: %w", err)
	}
	tipTx.Sign(req.Signer)

	bundleID, err := s.relay.SendBundle(ctx, []string{req.Tx.Base64(), tipTx.Base64()})
	if err != nil {
		return "", fmt.Errorf("send bundle: %w", err)
	}

	sig := req.Tx.Signature()
	s.log.Printf("submitted %s via relay bundle %s (tip %d to %s)", sig, bundleID, req.TipLamports, tipAccount)
	return sig, nil
}

// Confirm blocks until the signature is confirmed, fails on chain, or
// the confirmation window elapses.
func (s *Submitter) Confirm(ctx context.Context, signature string) error {
	ctx, cancel := context.WithTimeout(ctx, s.confirmTimeout)
	defer cancel()

	ch, err := s.ws.SubscribeSignature(ctx, signature)
	if err != nil {
		return fmt.Errorf("subscribe signature: %w", err)
	}

	select {
	case res, ok := <-ch:
		if !ok {
			return fmt.Errorf("%w: subscription closed for %s", ErrConfirmationTimeout, signature)
		}
		if res.Err != nil {
			return fmt.Errorf("%w: %s: %v", ErrOnChain, signature, res.Err)
		}
		s.log.Printf("confirmed %s at slot %d", signature, res.Slot)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %s", ErrConfirmationTimeout, signature)
	}
}

// SubmitAndConfirm submits the transaction and waits for confirmation,
// returning the signature either way so callers can report partial
// outcomes.
func (s *Submitter) SubmitAndConfirm(ctx context.Context, req Request) (string, error) {
	sig, err := s.Submit(ctx, req)
	if err != nil {
		return "", err
	}
	if err := s.Confirm(ctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}
