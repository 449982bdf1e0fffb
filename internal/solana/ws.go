package solana

import "context"

// WSClient defines the Solana WebSocket subscription surface the bot consumes.
type WSClient interface {
	// SubscribeSignature subscribes to the status of one transaction
	// signature. The returned channel delivers at most one result; the
	// cluster removes the subscription after the first notification.
	SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureResult, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureResult is a signature status notification.
// A non-nil Err means the transaction landed but reverted.
type SignatureResult struct {
	Slot uint64
	Err  interface{}
}
