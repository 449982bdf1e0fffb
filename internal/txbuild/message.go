package txbuild

import (
	"bytes"
	"fmt"

	"github.com/mr-tron/base58"
)

// appendCompactU16 encodes n in the shortvec format used by the wire layout.
func appendCompactU16(buf []byte, n int) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

// readCompactU16 decodes a shortvec length prefix, returning the value and
// the number of bytes consumed.
func readCompactU16(data []byte) (int, int, error) {
	var n, shift, consumed int
	for {
		if consumed >= len(data) || consumed > 2 {
			return 0, 0, fmt.Errorf("%w: truncated compact-u16", ErrBuild)
		}
		b := data[consumed]
		consumed++
		n |= int(b&0x7f) << shift
		if b&0x80 == 0 {
			return n, consumed, nil
		}
		shift += 7
	}
}

// accountEntry tracks merged flags for one account during message compilation.
type accountEntry struct {
	pubkey   PublicKey
	signer   bool
	writable bool
}

// CompileMessage produces legacy message bytes for the instructions, with
// payer as the fee-paying first signer.
func CompileMessage(payer PublicKey, instructions []Instruction, recentBlockhash string) ([]byte, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("%w: no instructions", ErrBuild)
	}

	blockhash, err := base58.Decode(recentBlockhash)
	if err != nil || len(blockhash) != 32 {
		return nil, fmt.Errorf("%w: invalid blockhash %q", ErrBuild, recentBlockhash)
	}

	// Merge account flags across instructions. Payer is always the first
	// writable signer.
	entries := []*accountEntry{{pubkey: payer, signer: true, writable: true}}
	index := map[PublicKey]*accountEntry{payer: entries[0]}

	add := func(pk PublicKey, signer, writable bool) {
		if e, ok := index[pk]; ok {
			e.signer = e.signer || signer
			e.writable = e.writable || writable
			return
		}
		e := &accountEntry{pubkey: pk, signer: signer, writable: writable}
		entries = append(entries, e)
		index[pk] = e
	}

	for _, ix := range instructions {
		for _, meta := range ix.Accounts {
			add(meta.Pubkey, meta.Signer, meta.Writable)
		}
		add(ix.ProgramID, false, false)
	}

	// Order: payer, writable signers, readonly signers, writable
	// non-signers, readonly non-signers.
	ordered := make([]*accountEntry, 0, len(entries))
	ordered = append(ordered, entries[0])
	appendClass := func(signer, writable bool) {
		for _, e := range entries[1:] {
			if e.signer == signer && e.writable == writable {
				ordered = append(ordered, e)
			}
		}
	}
	appendClass(true, true)
	appendClass(true, false)
	appendClass(false, true)
	appendClass(false, false)

	keyIndex := make(map[PublicKey]int, len(ordered))
	var numSigners, numReadonlySigned, numReadonlyUnsigned int
	for i, e := range ordered {
		keyIndex[e.pubkey] = i
		if e.signer {
			numSigners++
			if !e.writable {
				numReadonlySigned++
			}
		} else if !e.writable {
			numReadonlyUnsigned++
		}
	}

	var buf bytes.Buffer
	buf.WriteByte(byte(numSigners))
	buf.WriteByte(byte(numReadonlySigned))
	buf.WriteByte(byte(numReadonlyUnsigned))

	buf.Write(appendCompactU16(nil, len(ordered)))
	for _, e := range ordered {
		buf.Write(e.pubkey[:])
	}

	buf.Write(blockhash)

	buf.Write(appendCompactU16(nil, len(instructions)))
	for _, ix := range instructions {
		buf.WriteByte(byte(keyIndex[ix.ProgramID]))
		buf.Write(appendCompactU16(nil, len(ix.Accounts)))
		for _, meta := range ix.Accounts {
			buf.WriteByte(byte(keyIndex[meta.Pubkey]))
		}
		buf.Write(appendCompactU16(nil, len(ix.Data)))
		buf.Write(ix.Data)
	}

	return buf.Bytes(), nil
}
