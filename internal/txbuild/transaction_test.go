package txbuild

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"

	"solana-trade-bot/internal/solana"
)

func TestTransaction_SignAndSerialize(t *testing.T) {
	kp, err := solana.GenerateKeypair()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}

	payer, err := PublicKeyFromBase58(kp.PublicKeyString())
	if err != nil {
		t.Fatalf("payer key: %v", err)
	}
	recipient := mustPublicKey("7S3P4HxJpyyigGzodYwHtCxZyUQe9JiBMHyRWXArAaKv")

	msg, err := CompileMessage(payer, []Instruction{SystemTransfer(payer, recipient, 500)}, testBlockhash())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	tx := NewTransaction(msg)
	tx.Sign(kp)

	if !ed25519.Verify(kp.PublicKey, tx.Message, tx.Signatures[0]) {
		t.Error("fee payer signature does not verify")
	}
	if tx.Signature() == "" {
		t.Error("expected non-empty signature id")
	}
}

func TestDecodeBase64_Roundtrip(t *testing.T) {
	payer := mustPublicKey("4Nd1mBQtrMJVYVfKf2PJy9NZUZdTAsp7D4xWLs4gDB4T")
	recipient := mustPublicKey("7S3P4HxJpyyigGzodYwHtCxZyUQe9JiBMHyRWXArAaKv")

	msg, err := CompileMessage(payer, []Instruction{SystemTransfer(payer, recipient, 500)}, testBlockhash())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	original := NewTransaction(msg)

	decoded, err := DecodeBase64(original.Base64())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if len(decoded.Signatures) != 1 {
		t.Fatalf("expected 1 signature slot, got %d", len(decoded.Signatures))
	}
	if !bytes.Equal(decoded.Message, original.Message) {
		t.Error("message bytes changed across the roundtrip")
	}
}

func TestDecodeBase64_Invalid(t *testing.T) {
	if _, err := DecodeBase64("not base64!!!"); !errors.Is(err, ErrBuild) {
		t.Errorf("expected ErrBuild, got %v", err)
	}
	// Valid base64, truncated signature section.
	if _, err := DecodeBase64("AQID"); !errors.Is(err, ErrBuild) {
		t.Errorf("expected ErrBuild, got %v", err)
	}
}
