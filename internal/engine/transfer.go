package engine

import (
	"context"
	"fmt"

	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/solana"
	"solana-trade-bot/internal/submit"
	"solana-trade-bot/internal/txbuild"
)

// nativeWithdrawReserve is kept back on native withdrawals to cover the
// transaction fee and keep the account rent-exempt.
const nativeWithdrawReserve uint64 = 155_000

// TransferToken sends the user's entire balance of a mint to the
// destination wallet and returns the confirmed signature.
func (o *Orchestrator) TransferToken(ctx context.Context, user *domain.User, mint, destination string) (string, error) {
	if o.builder == nil {
		return "", fmt.Errorf("transfers not configured")
	}

	balance, err := o.rpc.GetTokenBalance(ctx, user.Wallet.PublicKey, mint)
	if err != nil {
		return "", fmt.Errorf("read token balance: %w", err)
	}
	if balance.Amount == 0 {
		return "", fmt.Errorf("%w: no %s to transfer", ErrInsufficientBalance, mint)
	}

	blockhash, err := o.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get blockhash: %w", err)
	}

	tx, err := o.builder.BuildTokenTransfer(ctx, txbuild.TokenTransferParams{
		Mint:        mint,
		From:        user.Wallet.PublicKey,
		To:          destination,
		Amount:      balance.Amount,
		PriorityFee: user.PriorityFee,
		Blockhash:   blockhash.Blockhash,
	})
	if err != nil {
		return "", fmt.Errorf("build token transfer: %w", err)
	}

	return o.signAndSend(ctx, user, tx)
}

// TransferNative sends the user's native balance minus the fee reserve
// to the destination wallet and returns the confirmed signature.
func (o *Orchestrator) TransferNative(ctx context.Context, user *domain.User, destination string) (string, error) {
	balance, err := o.rpc.GetBalance(ctx, user.Wallet.PublicKey)
	if err != nil {
		return "", fmt.Errorf("read balance: %w", err)
	}
	if balance <= nativeWithdrawReserve {
		return "", fmt.Errorf("%w: %d lamports, reserve is %d", ErrInsufficientBalance, balance, nativeWithdrawReserve)
	}

	blockhash, err := o.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get blockhash: %w", err)
	}

	tx, err := txbuild.BuildNativeTransfer(txbuild.NativeTransferParams{
		From:      user.Wallet.PublicKey,
		To:        destination,
		Lamports:  balance - nativeWithdrawReserve,
		Blockhash: blockhash.Blockhash,
	})
	if err != nil {
		return "", fmt.Errorf("build native transfer: %w", err)
	}

	return o.signAndSend(ctx, user, tx)
}

// signAndSend signs with the user's wallet, submits directly, and waits
// for confirmation. Transfers never route through the relay.
func (o *Orchestrator) signAndSend(ctx context.Context, user *domain.User, tx *txbuild.Transaction) (string, error) {
	kp, err := solana.KeypairFromSecretKey(user.Wallet.SecretKey)
	if err != nil {
		return "", fmt.Errorf("wallet key: %w", err)
	}
	tx.Sign(kp)

	sig, err := o.submitter.Submit(ctx, submit.Request{Tx: tx})
	if err != nil {
		return "", fmt.Errorf("submit transfer: %w", err)
	}
	if err := o.submitter.Confirm(ctx, sig); err != nil {
		return sig, fmt.Errorf("confirm transfer: %w", err)
	}
	return sig, nil
}
