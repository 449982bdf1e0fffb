// Package main runs the trading bot: a chat webhook driving the
// conversation layer, a signal feed consumer fanning trades out to
// subscribed users, and a Prometheus metrics endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"solana-trade-bot/internal/conversation"
	"solana-trade-bot/internal/delta"
	"solana-trade-bot/internal/engine"
	"solana-trade-bot/internal/jito"
	"solana-trade-bot/internal/jupiter"
	"solana-trade-bot/internal/notify"
	"solana-trade-bot/internal/observability"
	"solana-trade-bot/internal/signalfeed"
	"solana-trade-bot/internal/solana"
	"solana-trade-bot/internal/storage"
	chstore "solana-trade-bot/internal/storage/clickhouse"
	"solana-trade-bot/internal/storage/memory"
	"solana-trade-bot/internal/storage/migrations"
	pgstore "solana-trade-bot/internal/storage/postgres"
	"solana-trade-bot/internal/submit"
	"solana-trade-bot/internal/tokeninfo"
	"solana-trade-bot/internal/txbuild"
)

func main() {
	// Load .env if present; system env wins.
	_ = godotenv.Load()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint")
	feedEndpoint := flag.String("feed-endpoint", os.Getenv("SIGNAL_FEED_ENDPOINT"), "Signal feed WebSocket endpoint")
	relayEndpoint := flag.String("relay-endpoint", os.Getenv("RELAY_ENDPOINT"), "Block-engine relay endpoint (default mainnet)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	listenAddr := flag.String("listen-addr", ":8080", "Chat webhook HTTP address")
	metricsAddr := flag.String("metrics-addr", ":9090", "Prometheus metrics HTTP address")
	workers := flag.Int("workers", engine.DefaultWorkers, "Concurrent pipelines during signal fan-out")

	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags)

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if *wsEndpoint == "" {
		logger.Fatal("--ws-endpoint is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	userStore, tradeLog, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("create stores: %v", err)
	}
	defer cleanup()

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	ws, err := solana.NewWSClient(ctx, *wsEndpoint, nil)
	if err != nil {
		logger.Fatalf("connect websocket: %v", err)
	}
	defer ws.Close()

	jup := jupiter.NewClient()
	relay := jito.NewClient(*relayEndpoint)

	submitter := submit.New(submit.Options{
		RPC:   rpc,
		Relay: relay,
		WS:    ws,
		Log:   log.New(os.Stdout, "[submit] ", log.LstdFlags),
	})

	notifier := notify.NewLogNotifier(log.New(os.Stdout, "[notify] ", log.LstdFlags))

	orch, err := engine.New(engine.Options{
		Users:     userStore,
		Quotes:    jup,
		RPC:       rpc,
		Submitter: submitter,
		Deltas:    delta.NewCalculator(rpc, log.New(os.Stdout, "[delta] ", log.LstdFlags)),
		Builder:   txbuild.NewBuilder(rpc),
		TradeLog:  tradeLog,
		Notifier:  notifier,
		Log:       log.New(os.Stdout, "[engine] ", log.LstdFlags),
		Workers:   *workers,
	})
	if err != nil {
		logger.Fatalf("create engine: %v", err)
	}

	tokens := tokeninfo.NewService(rpc, jup, log.New(os.Stdout, "[tokens] ", log.LstdFlags))

	machine := conversation.NewMachine(conversation.Options{
		Users:    userStore,
		Tokens:   tokens,
		Trades:   orch,
		RPC:      rpc,
		Notifier: notifier,
		Log:      log.New(os.Stdout, "[chat] ", log.LstdFlags),
	})

	// Signal feed: describe the token, then alert and fan out.
	if *feedEndpoint != "" {
		feed := signalfeed.NewConsumer(*feedEndpoint, func(ctx context.Context, mint string) {
			token, err := tokens.Describe(ctx, mint)
			if err != nil {
				logger.Printf("signal token %s rejected: %v", mint, err)
				return
			}
			orch.HandleSignal(ctx, token)
		}, log.New(os.Stdout, "[feed] ", log.LstdFlags))
		go func() {
			if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Printf("feed stopped: %v", err)
			}
		}()
	} else {
		logger.Printf("no --feed-endpoint, signal fan-out disabled")
	}

	webhookSrv := &http.Server{
		Addr:              *listenAddr,
		Handler:           webhookHandler(machine, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("chat webhook listening on %s", *listenAddr)
		if err := webhookSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("webhook server: %v", err)
		}
	}()

	metricsSrv := &http.Server{
		Addr:              *metricsAddr,
		Handler:           observability.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("metrics listening on %s", *metricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("metrics server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Printf("received %s, shutting down", sig)

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = webhookSrv.Shutdown(shutdownCtx)
	_ = metricsSrv.Shutdown(shutdownCtx)
}

// update is the webhook payload delivered by the chat transport.
// Exactly one of Text or CallbackData is expected per update.
type update struct {
	ChatID       int64  `json:"chat_id"`
	Username     string `json:"username"`
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

func webhookHandler(machine *conversation.Machine, logger *log.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var u update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			http.Error(w, fmt.Sprintf("decode update: %v", err), http.StatusBadRequest)
			return
		}
		if u.ChatID == 0 {
			http.Error(w, "chat_id is required", http.StatusBadRequest)
			return
		}

		// Handle asynchronously so slow pipelines never block the
		// transport's delivery loop. The machine serializes updates
		// per chat.
		go func() {
			if u.CallbackData != "" {
				machine.HandleCallback(context.Background(), u.ChatID, u.CallbackData)
			} else {
				machine.HandleText(context.Background(), u.ChatID, u.Username, u.Text)
			}
		}()
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// createStores builds the user store and trade log, either in-memory
// or on PostgreSQL and ClickHouse with migrations applied.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (storage.UserStore, storage.TradeLogStore, func(), error) {
	if useMemory {
		return memory.NewUserStore(), memory.NewTradeLogStore(), func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	cleanup := func() {
		pool.Close()
		conn.Close()
	}
	return pgstore.NewUserStore(pool), chstore.NewTradeLogStore(conn), cleanup, nil
}
