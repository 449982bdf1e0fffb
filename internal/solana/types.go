package solana

// Blockhash from getLatestBlockhash. Valid only briefly; transactions built
// against an expired blockhash are rejected by the cluster.
type Blockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// TokenBalance is the balance of one token account.
type TokenBalance struct {
	Amount   uint64 // base units
	UIAmount float64
	Decimals uint8
}

// SendOptions configures sendTransaction broadcast behavior.
type SendOptions struct {
	SkipPreflight bool
	MaxRetries    int // rebroadcast attempts performed by the RPC node
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       []byte // decoded account data
	Executable bool
}

// ParsedTransaction is a confirmed transaction with parsed instructions.
type ParsedTransaction struct {
	Slot      uint64
	BlockTime *int64
	Meta      *ParsedMeta
	Message   *ParsedMessage
}

// ParsedMeta contains transaction metadata.
type ParsedMeta struct {
	Err               interface{}
	InnerInstructions []InnerInstructions
}

// InnerInstructions groups inner instructions by outer instruction index.
type InnerInstructions struct {
	Index        int
	Instructions []ParsedInstruction
}

// ParsedInstruction is a single instruction, parsed when the RPC node
// recognizes the owning program.
type ParsedInstruction struct {
	Program   string
	ProgramID string
	Parsed    *InstructionDetail
}

// InstructionDetail holds the parsed form of a recognized instruction.
type InstructionDetail struct {
	Type string
	Info InstructionInfo
}

// InstructionInfo carries the union of fields the bot inspects:
// SPL transfers use Amount/TokenAmount, system transfers use Lamports.
type InstructionInfo struct {
	Amount      string
	Lamports    uint64
	Source      string
	Destination string
	Mint        string
	TokenAmount *ParsedTokenAmount
}

// ParsedTokenAmount is a token amount with its decimal scale.
type ParsedTokenAmount struct {
	Amount   string
	Decimals uint8
	UIAmount float64
}

// ParsedMessage contains the outer instructions of a transaction.
type ParsedMessage struct {
	Instructions []ParsedInstruction
}
