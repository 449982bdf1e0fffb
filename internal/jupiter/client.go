// Package jupiter resolves swap quotes and serialized swap transactions
// from the Jupiter aggregator.
package jupiter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"solana-trade-bot/internal/observability"
)

// ErrQuoteUnavailable is returned when the aggregator reports no route
// or rejects the slippage bounds.
var ErrQuoteUnavailable = errors.New("no route available")

// AggregatorProgramID is the aggregator's on-chain program; routed swaps
// appear in transactions as an invocation of this program.
const AggregatorProgramID = "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"

// Default API endpoints.
const (
	DefaultQuoteBaseURL = "https://quote-api.jup.ag/v6"
	DefaultPriceBaseURL = "https://api.jup.ag/price/v2"
	DefaultTimeout      = 15 * time.Second
)

// Client calls the aggregator's quote, swap and price APIs.
type Client struct {
	http     *http.Client
	quoteURL string
	priceURL string
}

// Option configures Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithQuoteBaseURL overrides the quote API base URL.
func WithQuoteBaseURL(u string) Option {
	return func(c *Client) { c.quoteURL = u }
}

// WithPriceBaseURL overrides the price API base URL.
func WithPriceBaseURL(u string) Option {
	return func(c *Client) { c.priceURL = u }
}

// NewClient creates a Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http:     &http.Client{Timeout: DefaultTimeout},
		quoteURL: DefaultQuoteBaseURL,
		priceURL: DefaultPriceBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Route is a priced path between two assets. Valid only briefly; the Raw
// body is handed back verbatim when requesting the swap transaction.
type Route struct {
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	Raw        json.RawMessage
}

// quoteEnvelope is the subset of the quote response the bot inspects.
type quoteEnvelope struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	Error      string `json:"error"`
	ErrorCode  string `json:"errorCode"`
}

// GetQuote requests a route for swapping amount base units of inputMint
// into outputMint. One outbound call, no retry: retry policy belongs to
// the orchestrator.
func (c *Client) GetQuote(ctx context.Context, inputMint, outputMint string, amount uint64, slippageBps uint16) (*Route, error) {
	start := time.Now()
	defer func() {
		observability.RecordQuoteLatency(time.Since(start).Seconds())
	}()

	vals := url.Values{}
	vals.Set("inputMint", inputMint)
	vals.Set("outputMint", outputMint)
	vals.Set("amount", strconv.FormatUint(amount, 10))
	vals.Set("slippageBps", strconv.FormatUint(uint64(slippageBps), 10))

	endpoint := fmt.Sprintf("%s/quote?%s", c.quoteURL, vals.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build quote request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var env quoteEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode quote: %w", err)
	}
	if env.Error != "" || env.ErrorCode != "" {
		return nil, fmt.Errorf("%w: %s%s", ErrQuoteUnavailable, env.Error, env.ErrorCode)
	}
	if env.OutAmount == "" {
		return nil, fmt.Errorf("%w: quote missing output amount", ErrQuoteUnavailable)
	}

	inAmount, _ := strconv.ParseUint(env.InAmount, 10, 64)
	outAmount, err := strconv.ParseUint(env.OutAmount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse out amount %q: %w", env.OutAmount, err)
	}

	return &Route{
		InputMint:  env.InputMint,
		OutputMint: env.OutputMint,
		InAmount:   inAmount,
		OutAmount:  outAmount,
		Raw:        json.RawMessage(body),
	}, nil
}

// swapRequest is the body for the swap endpoint.
type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports"`
}

// GetSwapTransaction turns a route into a base64 serialized unsigned
// transaction for the payer.
func (c *Client) GetSwapTransaction(ctx context.Context, route *Route, userPublicKey string, priorityFeeLamports uint64) (string, error) {
	reqBody, err := json.Marshal(swapRequest{
		QuoteResponse:             route.Raw,
		UserPublicKey:             userPublicKey,
		WrapAndUnwrapSol:          true,
		PrioritizationFeeLamports: priorityFeeLamports,
	})
	if err != nil {
		return "", fmt.Errorf("marshal swap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.quoteURL+"/swap", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("build swap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req)
	if err != nil {
		return "", err
	}

	var resp struct {
		SwapTransaction string `json:"swapTransaction"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode swap response: %w", err)
	}
	if resp.SwapTransaction == "" {
		return "", fmt.Errorf("swap response missing transaction")
	}
	return resp.SwapTransaction, nil
}

// GetPrice returns the current price of a mint, or zero when the price
// feed has no data for it.
func (c *Client) GetPrice(ctx context.Context, mint string) (float64, error) {
	endpoint := fmt.Sprintf("%s?ids=%s", c.priceURL, url.QueryEscape(mint))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("build price request: %w", err)
	}

	body, err := c.do(req)
	if err != nil {
		return 0, err
	}

	var resp struct {
		Data map[string]*struct {
			Price string `json:"price"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}

	entry := resp.Data[mint]
	if entry == nil {
		return 0, nil
	}
	price, err := strconv.ParseFloat(entry.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", entry.Price, err)
	}
	return price, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("aggregator request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read aggregator response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: status %d: %s", ErrQuoteUnavailable, resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("aggregator status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}
