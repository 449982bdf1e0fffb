// Package signalfeed consumes a WebSocket stream of chat-style signal
// messages and surfaces the token addresses they mention.
package signalfeed

import (
	"context"
	"encoding/json"
	"log"
	"regexp"
	"time"

	"github.com/gorilla/websocket"

	"solana-trade-bot/internal/observability"
)

const (
	handshakeTimeout = 10 * time.Second
	pongWriteTimeout = 5 * time.Second
	initialBackoff   = time.Second
	maxBackoff       = 30 * time.Second
)

// Handler receives the token address extracted from one signal message.
type Handler func(ctx context.Context, mint string)

// tokenPattern matches a base58 string of mint-address length.
var tokenPattern = regexp.MustCompile(`[1-9A-HJ-NP-Za-km-z]{43,44}`)

// message is the feed's envelope. Type "ping" is the feed's app-level
// keepalive; anything else is treated as signal content.
type message struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Consumer reads the signal feed and invokes a handler per token
// mention. It reconnects with exponential backoff until its context is
// cancelled.
type Consumer struct {
	endpoint string
	handler  Handler
	log      *log.Logger
	dialer   *websocket.Dialer
}

// NewConsumer creates a Consumer for the given feed endpoint.
func NewConsumer(endpoint string, handler Handler, logger *log.Logger) *Consumer {
	if logger == nil {
		logger = log.Default()
	}
	return &Consumer{
		endpoint: endpoint,
		handler:  handler,
		log:      logger,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
	}
}

// Run consumes the feed until ctx is cancelled. Connection failures
// trigger reconnection with exponential backoff.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := initialBackoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := c.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Printf("feed connection lost: %v, reconnecting in %s", err, backoff)

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// consume runs one connection to exhaustion.
func (c *Consumer) consume(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	c.log.Printf("connected to feed %s", c.endpoint)

	// Answer protocol pings; the feed drops quiet clients.
	conn.SetPingHandler(func(appData string) error {
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(pongWriteTimeout))
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(ctx, conn, raw)
	}
}

func (c *Consumer) handleMessage(ctx context.Context, conn *websocket.Conn, raw []byte) {
	var msg message
	if err := json.Unmarshal(raw, &msg); err != nil {
		// Not an envelope; scan the raw payload.
		msg.Text = string(raw)
	}

	if msg.Type == "ping" {
		if err := conn.WriteJSON(map[string]string{"type": "pong"}); err != nil {
			c.log.Printf("feed pong: %v", err)
		}
		return
	}

	text := msg.Text
	if text == "" {
		text = string(raw)
	}
	mint := tokenPattern.FindString(text)
	observability.RecordSignal(mint != "")
	if mint == "" {
		return
	}

	c.log.Printf("signal token %s", mint)
	c.handler(ctx, mint)
}
