package txbuild

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-trade-bot/internal/solana"
)

const signatureSize = 64

// Transaction is a wire transaction: signature slots followed by message
// bytes. The message is opaque here; it may be a legacy message compiled
// by this package or a versioned message serialized by the aggregator.
type Transaction struct {
	Signatures [][]byte
	Message    []byte
}

// NewTransaction wraps compiled message bytes with one empty signature slot.
func NewTransaction(message []byte) *Transaction {
	return &Transaction{
		Signatures: [][]byte{make([]byte, signatureSize)},
		Message:    message,
	}
}

// DecodeBase64 parses a base64 wire transaction without interpreting the
// message body.
func DecodeBase64(encoded string) (*Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: decode transaction: %v", ErrBuild, err)
	}

	count, offset, err := readCompactU16(raw)
	if err != nil {
		return nil, err
	}
	if count == 0 || len(raw) < offset+count*signatureSize {
		return nil, fmt.Errorf("%w: truncated signatures", ErrBuild)
	}

	tx := &Transaction{}
	for i := 0; i < count; i++ {
		sig := make([]byte, signatureSize)
		copy(sig, raw[offset:offset+signatureSize])
		tx.Signatures = append(tx.Signatures, sig)
		offset += signatureSize
	}
	tx.Message = raw[offset:]

	return tx, nil
}

// Sign signs the message as the fee payer, filling signature slot zero.
// Pure and synchronous; the key is used for the one Sign call only.
func (t *Transaction) Sign(kp *solana.Keypair) {
	t.Signatures[0] = ed25519.Sign(kp.PrivateKey, t.Message)
}

// Serialize returns the wire bytes.
func (t *Transaction) Serialize() []byte {
	buf := appendCompactU16(nil, len(t.Signatures))
	for _, sig := range t.Signatures {
		buf = append(buf, sig...)
	}
	return append(buf, t.Message...)
}

// Base64 returns the wire bytes base64 encoded for RPC submission.
func (t *Transaction) Base64() string {
	return base64.StdEncoding.EncodeToString(t.Serialize())
}

// Signature returns the base58 fee-payer signature, which identifies the
// transaction on chain.
func (t *Transaction) Signature() string {
	return base58.Encode(t.Signatures[0])
}
