// Package jito submits transaction bundles to a block-engine relay.
//
// The relay accepts atomically-executed bundles over JSON-RPC. A bundle
// must carry a tip transfer to one of the relay's rotating tip accounts
// or it will never land; callers obtain a tip account via GetTipAccounts
// and append the tip transaction themselves.
package jito

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"
)

// ErrSubmissionRejected indicates the relay refused the bundle.
var ErrSubmissionRejected = errors.New("bundle submission rejected")

// DefaultBaseURL is the mainnet block-engine endpoint.
const DefaultBaseURL = "https://mainnet.block-engine.jito.wtf/api/v1/bundles"

const defaultTimeout = 15 * time.Second

// Client talks to a block-engine relay over JSON-RPC.
type Client struct {
	baseURL    string
	httpClient *http.Client
	requestID  uint64
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a relay client for the given endpoint. An empty
// endpoint selects the mainnet block engine.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("relay rpc error %d: %s", e.Code, e.Message)
}

func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      atomic.AddUint64(&c.requestID, 1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrSubmissionRejected, resp.StatusCode, respBody)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%w: %s", ErrSubmissionRejected, rpcResp.Error.Message)
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal result: %w", err)
		}
	}
	return nil
}

// GetTipAccounts returns the relay's current tip accounts.
func (c *Client) GetTipAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := c.call(ctx, "getTipAccounts", []interface{}{}, &accounts); err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: relay returned no tip accounts", ErrSubmissionRejected)
	}
	return accounts, nil
}

// PickTipAccount returns a randomly selected tip account. Spreading tips
// across the rotation keeps the relay from deprioritizing a hot account.
func (c *Client) PickTipAccount(ctx context.Context) (string, error) {
	accounts, err := c.GetTipAccounts(ctx)
	if err != nil {
		return "", err
	}
	return accounts[rand.Intn(len(accounts))], nil
}

// SendBundle submits a bundle of base64-encoded signed transactions and
// returns the bundle id. Transactions execute atomically in order; the
// tip transfer should be the final entry.
func (c *Client) SendBundle(ctx context.Context, txsBase64 []string) (string, error) {
	if len(txsBase64) == 0 {
		return "", fmt.Errorf("%w: empty bundle", ErrSubmissionRejected)
	}
	params := []interface{}{
		txsBase64,
		map[string]string{"encoding": "base64"},
	}
	var bundleID string
	if err := c.call(ctx, "sendBundle", params, &bundleID); err != nil {
		return "", err
	}
	return bundleID, nil
}
