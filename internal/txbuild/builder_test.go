package txbuild

import (
	"context"
	"errors"
	"testing"

	"solana-trade-bot/internal/solana"
)

// fakeAccountChecker reports a fixed set of existing accounts.
type fakeAccountChecker struct {
	existing map[string]bool
	calls    int
}

func (f *fakeAccountChecker) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	f.calls++
	if f.existing[pubkey] {
		return &solana.AccountInfo{Lamports: 2_039_280, Owner: TokenProgramID}, nil
	}
	return nil, nil
}

const (
	testOwner     = "4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T"
	testRecipient = "7S3P4HxJpyyigGzodYwHtCxZyUQe9JiBMHyRWXArAaKv"
	testMint      = "So11111111111111111111111111111111111111112"
)

func tokenParams() TokenTransferParams {
	return TokenTransferParams{
		Mint:        testMint,
		From:        testOwner,
		To:          testRecipient,
		Amount:      1_000_000,
		PriorityFee: 200_000,
		Blockhash:   testBlockhash(),
	}
}

// instructionCount reads the number of compiled instructions out of a
// legacy message.
func instructionCount(t *testing.T, msg []byte) int {
	t.Helper()

	offset := 3
	nKeys, consumed, err := readCompactU16(msg[offset:])
	if err != nil {
		t.Fatalf("read key count: %v", err)
	}
	offset += consumed + nKeys*32 + 32
	n, _, err := readCompactU16(msg[offset:])
	if err != nil {
		t.Fatalf("read instruction count: %v", err)
	}
	return n
}

func TestBuildTokenTransfer_ExistingRecipientAccount(t *testing.T) {
	to := mustPublicKey(testRecipient)
	mint := mustPublicKey(testMint)
	destATA, err := FindAssociatedTokenAddress(to, mint)
	if err != nil {
		t.Fatalf("derive ata: %v", err)
	}

	rpc := &fakeAccountChecker{existing: map[string]bool{destATA.String(): true}}
	tx, err := NewBuilder(rpc).BuildTokenTransfer(context.Background(), tokenParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Compute price + token transfer only.
	if n := instructionCount(t, tx.Message); n != 2 {
		t.Errorf("expected 2 instructions, got %d", n)
	}
}

func TestBuildTokenTransfer_CreatesMissingRecipientAccount(t *testing.T) {
	rpc := &fakeAccountChecker{}
	tx, err := NewBuilder(rpc).BuildTokenTransfer(context.Background(), tokenParams())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Compute price + account creation + token transfer.
	if n := instructionCount(t, tx.Message); n != 3 {
		t.Errorf("expected 3 instructions, got %d", n)
	}
	if rpc.calls != 1 {
		t.Errorf("expected 1 account lookup, got %d", rpc.calls)
	}
}

func TestBuildTokenTransfer_ZeroAmount(t *testing.T) {
	p := tokenParams()
	p.Amount = 0
	if _, err := NewBuilder(&fakeAccountChecker{}).BuildTokenTransfer(context.Background(), p); !errors.Is(err, ErrBuild) {
		t.Errorf("expected ErrBuild, got %v", err)
	}
}

func TestBuildNativeTransfer(t *testing.T) {
	tx, err := BuildNativeTransfer(NativeTransferParams{
		From:      testOwner,
		To:        testRecipient,
		Lamports:  1_000_000,
		Blockhash: testBlockhash(),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Unit limit + unit price + transfer.
	if n := instructionCount(t, tx.Message); n != 3 {
		t.Errorf("expected 3 instructions, got %d", n)
	}
}

func TestBuildTipTransfer(t *testing.T) {
	tx, err := BuildTipTransfer(testOwner, testRecipient, 1_000_000, testBlockhash())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n := instructionCount(t, tx.Message); n != 1 {
		t.Errorf("expected 1 instruction, got %d", n)
	}

	if _, err := BuildTipTransfer(testOwner, testRecipient, 0, testBlockhash()); !errors.Is(err, ErrBuild) {
		t.Errorf("zero tip: expected ErrBuild, got %v", err)
	}
}
