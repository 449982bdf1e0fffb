package solana

import "context"

// RPCClient defines the Solana RPC HTTP surface the bot consumes.
type RPCClient interface {
	// GetBalance retrieves the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string) (uint64, error)

	// GetTokenBalance retrieves the balance of the owner's token account
	// for the given mint. Returns a zero balance if no account exists.
	GetTokenBalance(ctx context.Context, owner, mint string) (TokenBalance, error)

	// GetLatestBlockhash retrieves a recent blockhash for transaction assembly.
	GetLatestBlockhash(ctx context.Context) (*Blockhash, error)

	// SendTransaction broadcasts a base64-serialized signed transaction
	// and returns its signature.
	SendTransaction(ctx context.Context, txBase64 string, opts *SendOptions) (string, error)

	// GetParsedTransaction retrieves a confirmed transaction with parsed
	// instruction detail. Returns nil if the transaction is not yet visible.
	GetParsedTransaction(ctx context.Context, signature string) (*ParsedTransaction, error)

	// GetAccountInfo retrieves account info by public key.
	// Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}
