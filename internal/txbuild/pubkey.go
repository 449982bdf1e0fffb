// Package txbuild assembles and signs Solana transactions: swap
// transactions arriving serialized from the aggregator, and transfer
// transactions built instruction by instruction.
package txbuild

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// ErrBuild is returned on malformed addresses or invalid amounts.
var ErrBuild = errors.New("transaction build failed")

// Well-known program addresses.
const (
	SystemProgramID        = "11111111111111111111111111111111"
	TokenProgramID         = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	Token2022ProgramID     = "TokenzQdBNbLqP5VEhdkAS6EPFLC1pHnBqCXEpPxuEb"
	AssociatedTokenProgram = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
	ComputeBudgetProgramID = "ComputeBudget111111111111111111111111111111"
)

// PublicKey is a 32-byte Solana account address.
type PublicKey [32]byte

// PublicKeyFromBase58 decodes and validates a base58 address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: decode address %q: %v", ErrBuild, s, err)
	}
	if len(raw) != 32 {
		return pk, fmt.Errorf("%w: address %q has %d bytes, want 32", ErrBuild, s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// mustPublicKey decodes a well-known program address.
func mustPublicKey(s string) PublicKey {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 form.
func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

// onCurve reports whether the key is a valid edwards25519 point.
// Program-derived addresses must be off-curve.
func (p PublicKey) onCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(p[:])
	return err == nil
}

// pdaMarker terminates the seed list when hashing program-derived addresses.
var pdaMarker = []byte("ProgramDerivedAddress")

// FindProgramAddress derives the first off-curve address for the seeds,
// searching bump seeds from 255 downward.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, seed := range seeds {
			h.Write(seed)
		}
		h.Write([]byte{uint8(bump)})
		h.Write(program[:])
		h.Write(pdaMarker)

		var candidate PublicKey
		copy(candidate[:], h.Sum(nil))
		if !candidate.onCurve() {
			return candidate, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, fmt.Errorf("%w: no off-curve program address for seeds", ErrBuild)
}

// FindAssociatedTokenAddress derives the canonical token account of a
// wallet for a mint.
func FindAssociatedTokenAddress(wallet, mint PublicKey) (PublicKey, error) {
	tokenProgram := mustPublicKey(TokenProgramID)
	ataProgram := mustPublicKey(AssociatedTokenProgram)

	addr, _, err := FindProgramAddress(
		[][]byte{wallet[:], tokenProgram[:], mint[:]},
		ataProgram,
	)
	return addr, err
}
