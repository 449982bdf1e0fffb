package txbuild

import "encoding/binary"

// AccountMeta describes how an instruction touches one account.
type AccountMeta struct {
	Pubkey   PublicKey
	Signer   bool
	Writable bool
}

// Instruction is one program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// System program instruction indexes.
const sysTransferIndex = 2

// SPL token program instruction indexes.
const tokenTransferIndex = 3

// Compute budget instruction indexes.
const (
	computeUnitLimitIndex = 2
	computeUnitPriceIndex = 3
)

// SystemTransfer moves lamports between system accounts.
func SystemTransfer(from, to PublicKey, lamports uint64) Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], sysTransferIndex)
	binary.LittleEndian.PutUint64(data[4:12], lamports)

	return Instruction{
		ProgramID: mustPublicKey(SystemProgramID),
		Accounts: []AccountMeta{
			{Pubkey: from, Signer: true, Writable: true},
			{Pubkey: to, Writable: true},
		},
		Data: data,
	}
}

// TokenTransfer moves token base units between token accounts,
// authorized by the owner.
func TokenTransfer(source, destination, owner PublicKey, amount uint64) Instruction {
	data := make([]byte, 9)
	data[0] = tokenTransferIndex
	binary.LittleEndian.PutUint64(data[1:9], amount)

	return Instruction{
		ProgramID: mustPublicKey(TokenProgramID),
		Accounts: []AccountMeta{
			{Pubkey: source, Writable: true},
			{Pubkey: destination, Writable: true},
			{Pubkey: owner, Signer: true},
		},
		Data: data,
	}
}

// CreateAssociatedTokenAccount creates the canonical token account of
// owner for mint, funded by payer.
func CreateAssociatedTokenAccount(payer, ata, owner, mint PublicKey) Instruction {
	return Instruction{
		ProgramID: mustPublicKey(AssociatedTokenProgram),
		Accounts: []AccountMeta{
			{Pubkey: payer, Signer: true, Writable: true},
			{Pubkey: ata, Writable: true},
			{Pubkey: owner},
			{Pubkey: mint},
			{Pubkey: mustPublicKey(SystemProgramID)},
			{Pubkey: mustPublicKey(TokenProgramID)},
		},
		Data: nil,
	}
}

// SetComputeUnitLimit caps the compute units a transaction may consume.
func SetComputeUnitLimit(units uint32) Instruction {
	data := make([]byte, 5)
	data[0] = computeUnitLimitIndex
	binary.LittleEndian.PutUint32(data[1:5], units)

	return Instruction{
		ProgramID: mustPublicKey(ComputeBudgetProgramID),
		Data:      data,
	}
}

// SetComputeUnitPrice sets the priority fee in micro-lamports per compute unit.
func SetComputeUnitPrice(microLamports uint64) Instruction {
	data := make([]byte, 9)
	data[0] = computeUnitPriceIndex
	binary.LittleEndian.PutUint64(data[1:9], microLamports)

	return Instruction{
		ProgramID: mustPublicKey(ComputeBudgetProgramID),
		Data:      data,
	}
}

// PriorityFeeMicroLamports sizes the per-unit fee from the flat priority
// fee so the total stays bounded as instruction count grows.
func PriorityFeeMicroLamports(priorityFeeLamports uint64, instructionCount int) uint64 {
	if instructionCount <= 0 {
		return 0
	}
	// Assumes the default 200k compute units per instruction, halved
	// as headroom; lamports scale to micro-lamports by 1e6.
	return priorityFeeLamports * 1_000_000 / (uint64(instructionCount) * 200_000 * 2)
}
