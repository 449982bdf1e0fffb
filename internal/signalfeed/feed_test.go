package signalfeed

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

// feedServer pushes the given payloads to each connecting client and
// records anything the client writes back.
type feedServer struct {
	srv      *httptest.Server
	payloads []string
	received chan []byte
}

func newFeedServer(t *testing.T, payloads ...string) *feedServer {
	t.Helper()
	fs := &feedServer{payloads: payloads, received: make(chan []byte, 16)}
	upgrader := websocket.Upgrader{}
	fs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		go func() {
			for {
				_, raw, err := conn.ReadMessage()
				if err != nil {
					return
				}
				fs.received <- raw
			}
		}()

		for _, p := range fs.payloads {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(p)); err != nil {
				return
			}
		}
		// Hold the connection open until the client drops it.
		time.Sleep(5 * time.Second)
	}))
	t.Cleanup(fs.srv.Close)
	return fs
}

func (fs *feedServer) url() string {
	return "ws" + strings.TrimPrefix(fs.srv.URL, "http")
}

func runConsumer(t *testing.T, endpoint string, handler Handler) (cancel context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c := NewConsumer(endpoint, handler, log.New(io.Discard, "", 0))
	go c.Run(ctx)
	t.Cleanup(cancel)
	return cancel
}

func TestConsumerExtractsToken(t *testing.T) {
	fs := newFeedServer(t, `{"type":"signal","text":"new launch `+testMint+` looks strong"}`)

	mints := make(chan string, 1)
	runConsumer(t, fs.url(), func(_ context.Context, mint string) {
		mints <- mint
	})

	select {
	case mint := <-mints:
		if mint != testMint {
			t.Errorf("mint = %q, want %q", mint, testMint)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestConsumerRawTextMessage(t *testing.T) {
	fs := newFeedServer(t, "ape into "+testMint+" now")

	mints := make(chan string, 1)
	runConsumer(t, fs.url(), func(_ context.Context, mint string) {
		mints <- mint
	})

	select {
	case mint := <-mints:
		if mint != testMint {
			t.Errorf("mint = %q", mint)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler never invoked")
	}
}

func TestConsumerIgnoresMessagesWithoutToken(t *testing.T) {
	fs := newFeedServer(t,
		`{"type":"signal","text":"nothing to see"}`,
		`{"type":"signal","text":"`+testMint+`"}`,
	)

	mints := make(chan string, 2)
	runConsumer(t, fs.url(), func(_ context.Context, mint string) {
		mints <- mint
	})

	select {
	case mint := <-mints:
		if mint != testMint {
			t.Errorf("mint = %q", mint)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("handler never invoked")
	}
	select {
	case mint := <-mints:
		t.Errorf("unexpected extra invocation with %q", mint)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConsumerAnswersAppLevelPing(t *testing.T) {
	fs := newFeedServer(t, `{"type":"ping"}`)

	runConsumer(t, fs.url(), func(_ context.Context, _ string) {
		t.Error("ping must not reach the handler")
	})

	select {
	case raw := <-fs.received:
		var msg map[string]string
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("client reply not JSON: %s", raw)
		}
		if msg["type"] != "pong" {
			t.Errorf("reply = %v, want pong", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no pong received")
	}
}

func TestConsumerStopsOnCancel(t *testing.T) {
	fs := newFeedServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	c := NewConsumer(fs.url(), func(_ context.Context, _ string) {}, log.New(io.Discard, "", 0))

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	time.Sleep(200 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
