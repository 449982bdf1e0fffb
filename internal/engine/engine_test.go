package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/mr-tron/base58"

	"solana-trade-bot/internal/delta"
	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/jupiter"
	"solana-trade-bot/internal/notify"
	"solana-trade-bot/internal/solana"
	"solana-trade-bot/internal/storage/memory"
	"solana-trade-bot/internal/submit"
	"solana-trade-bot/internal/txbuild"
)

const testMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

type fakeQuotes struct {
	quoteCalls int32
	quoteErr   error
	swapB64    string
}

func (f *fakeQuotes) GetQuote(_ context.Context, inputMint, outputMint string, amount uint64, _ uint16) (*jupiter.Route, error) {
	atomic.AddInt32(&f.quoteCalls, 1)
	if f.quoteErr != nil {
		return nil, f.quoteErr
	}
	return &jupiter.Route{InputMint: inputMint, OutputMint: outputMint, InAmount: amount, OutAmount: 1}, nil
}

func (f *fakeQuotes) GetSwapTransaction(_ context.Context, _ *jupiter.Route, _ string, _ uint64) (string, error) {
	return f.swapB64, nil
}

type fakeBalances struct {
	native uint64
	tokens map[string]uint64
}

func (f *fakeBalances) GetBalance(_ context.Context, _ string) (uint64, error) {
	return f.native, nil
}

func (f *fakeBalances) GetTokenBalance(_ context.Context, _, mint string) (solana.TokenBalance, error) {
	return solana.TokenBalance{Amount: f.tokens[mint], Decimals: 6}, nil
}

func (f *fakeBalances) GetLatestBlockhash(_ context.Context) (*solana.Blockhash, error) {
	return &solana.Blockhash{Blockhash: testBlockhash(), LastValidBlockHeight: 1000}, nil
}

type fakeSubmitter struct {
	mu         sync.Mutex
	submits    int32
	lastReq    submit.Request
	submitErr  error
	confirmErr error
	panicOn    bool
}

// Submit runs on fan-out workers, so shared state stays behind the mutex.
func (f *fakeSubmitter) Submit(_ context.Context, req submit.Request) (string, error) {
	if f.panicOn {
		panic("wire chewed through")
	}
	f.mu.Lock()
	f.submits++
	f.lastReq = req
	n := f.submits
	f.mu.Unlock()
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "sig-" + fmt.Sprint(n), nil
}

func (f *fakeSubmitter) last() submit.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func (f *fakeSubmitter) Confirm(_ context.Context, _ string) error {
	return f.confirmErr
}

type fakeDeltas struct {
	d   *delta.Delta
	err error
}

func (f *fakeDeltas) Compute(_ context.Context, _ string) (*delta.Delta, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.d, nil
}

func testBlockhash() string {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = 0x07
	}
	return base58.Encode(raw)
}

type testEnv struct {
	orch      *Orchestrator
	users     *memory.UserStore
	tradeLog  *memory.TradeLogStore
	notifier  *notify.Recorder
	quotes    *fakeQuotes
	balances  *fakeBalances
	submitter *fakeSubmitter
	deltas    *fakeDeltas
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	kp, err := solana.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	swapTx, err := txbuild.BuildTipTransfer(kp.PublicKeyString(), "96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5", 1, testBlockhash())
	if err != nil {
		t.Fatal(err)
	}

	env := &testEnv{
		users:    memory.NewUserStore(),
		tradeLog: memory.NewTradeLogStore(),
		notifier: &notify.Recorder{},
		quotes:   &fakeQuotes{swapB64: swapTx.Base64()},
		balances: &fakeBalances{
			native: 5 * domain.LamportsPerSOL,
			tokens: map[string]uint64{testMint: 10_000_000},
		},
		submitter: &fakeSubmitter{},
		deltas: &fakeDeltas{d: &delta.Delta{
			InputMint:   domain.NativeMint,
			OutputMint:  testMint,
			AmountIn:    1_000_000_000,
			AmountOut:   184_500_000,
			UIAmountIn:  1.0,
			UIAmountOut: 184.5,
		}},
	}
	env.orch, err = New(Options{
		Users:     env.users,
		Quotes:    env.quotes,
		RPC:       env.balances,
		Submitter: env.submitter,
		Deltas:    env.deltas,
		TradeLog:  env.tradeLog,
		Notifier:  env.notifier,
		Log:       log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func testUser(t *testing.T, env *testEnv, chatID int64) *domain.User {
	t.Helper()
	kp, err := solana.GenerateKeypair()
	if err != nil {
		t.Fatal(err)
	}
	u := domain.NewUser(chatID, fmt.Sprintf("user%d", chatID), domain.Wallet{
		PublicKey: kp.PublicKeyString(),
		SecretKey: kp.SecretKeyString(),
	})
	if err := env.users.Create(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestExecuteTrade(t *testing.T) {
	env := newTestEnv(t)
	u := testUser(t, env, 1)

	res := env.orch.ExecuteTrade(context.Background(), u, BuyIntent(u, testMint, domain.LamportsPerSOL))
	if !res.OK {
		t.Fatalf("trade failed: %s", res.FailReason)
	}
	if res.Signature == "" {
		t.Error("missing signature")
	}
	if res.AmountIn != 1.0 || res.AmountOut != 184.5 {
		t.Errorf("amounts = %v/%v", res.AmountIn, res.AmountOut)
	}

	msgs := env.notifier.Messages()
	if len(msgs) != 1 {
		t.Fatalf("got %d notifications, want exactly 1", len(msgs))
	}
	if !strings.Contains(msgs[0].Text, "confirmed") {
		t.Errorf("notification = %q", msgs[0].Text)
	}

	records, err := env.tradeLog.GetByChatID(context.Background(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d audit records, want exactly 1", len(records))
	}
	if !records[0].OK || records[0].Mint != testMint || records[0].Direction != "buy" {
		t.Errorf("record = %+v", records[0])
	}
}

func TestExecuteTradeInsufficientBuyBalance(t *testing.T) {
	env := newTestEnv(t)
	env.balances.native = minBuyBalance - 1
	u := testUser(t, env, 1)

	res := env.orch.ExecuteTrade(context.Background(), u, BuyIntent(u, testMint, 10_000))
	if res.OK {
		t.Fatal("expected rejection")
	}
	if atomic.LoadInt32(&env.quotes.quoteCalls) != 0 {
		t.Error("quote requested despite failed balance gate")
	}
	if len(env.notifier.Messages()) != 1 {
		t.Error("rejection must still produce one notification")
	}
	records, _ := env.tradeLog.GetByChatID(context.Background(), 1, 0)
	if len(records) != 1 || records[0].OK {
		t.Error("rejection must still produce one failed audit record")
	}
}

func TestExecuteTradeInsufficientSellBalance(t *testing.T) {
	env := newTestEnv(t)
	u := testUser(t, env, 1)

	res := env.orch.ExecuteTrade(context.Background(), u, SellIntent(u, testMint, 10_000_001))
	if res.OK {
		t.Fatal("expected rejection")
	}
	if atomic.LoadInt32(&env.quotes.quoteCalls) != 0 {
		t.Error("quote requested despite failed balance gate")
	}
}

func TestExecuteTradeConfirmFailureKeepsSignature(t *testing.T) {
	env := newTestEnv(t)
	env.submitter.confirmErr = submit.ErrConfirmationTimeout
	u := testUser(t, env, 1)

	res := env.orch.ExecuteTrade(context.Background(), u, BuyIntent(u, testMint, domain.LamportsPerSOL))
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.Signature == "" {
		t.Error("unconfirmed submission must retain its signature")
	}
	msgs := env.notifier.Messages()
	if len(msgs) != 1 || !strings.Contains(msgs[0].Text, "not confirmed") {
		t.Errorf("notifications = %+v", msgs)
	}
}

func TestExecuteTradeDeltaFailureStillSucceeds(t *testing.T) {
	env := newTestEnv(t)
	env.deltas.err = delta.ErrAmbiguousTransfer
	u := testUser(t, env, 1)

	res := env.orch.ExecuteTrade(context.Background(), u, BuyIntent(u, testMint, domain.LamportsPerSOL))
	if !res.OK {
		t.Fatalf("trade failed: %s", res.FailReason)
	}
	if res.AmountIn != 0 || res.AmountOut != 0 {
		t.Errorf("amounts = %v/%v, want zero when delta is unavailable", res.AmountIn, res.AmountOut)
	}
}

func TestExecuteTradePanicBecomesFailure(t *testing.T) {
	env := newTestEnv(t)
	env.submitter.panicOn = true
	u := testUser(t, env, 1)

	res := env.orch.ExecuteTrade(context.Background(), u, BuyIntent(u, testMint, domain.LamportsPerSOL))
	if res.OK {
		t.Fatal("expected failure")
	}
	if res.FailReason != "internal error" {
		t.Errorf("FailReason = %q", res.FailReason)
	}
	if len(env.notifier.Messages()) != 1 {
		t.Error("panic must still produce one notification")
	}
}

func TestExecuteTradeRelayParameters(t *testing.T) {
	env := newTestEnv(t)
	u := testUser(t, env, 1)
	u.MevProtect = true
	u.RelayTip = 2_000_000

	res := env.orch.ExecuteTrade(context.Background(), u, BuyIntent(u, testMint, domain.LamportsPerSOL))
	if !res.OK {
		t.Fatalf("trade failed: %s", res.FailReason)
	}
	req := env.submitter.last()
	if !req.MevProtect {
		t.Error("MevProtect not propagated to submission")
	}
	if req.TipLamports != 2_000_000 {
		t.Errorf("TipLamports = %d", req.TipLamports)
	}
	if req.Signer == nil {
		t.Error("signer missing from submission")
	}
}

func TestHandleSignalFanOut(t *testing.T) {
	env := newTestEnv(t)
	for i := int64(1); i <= 5; i++ {
		u := testUser(t, env, i)
		u.Alerts = true
		u.AutoTrade = true
		u.SnipeAmount = domain.LamportsPerSOL
		if err := env.users.Save(context.Background(), u); err != nil {
			t.Fatal(err)
		}
	}
	// Chat 6 gets alerts but does not auto-trade.
	u := testUser(t, env, 6)
	u.Alerts = true
	if err := env.users.Save(context.Background(), u); err != nil {
		t.Fatal(err)
	}

	token := &domain.TokenDescriptor{Mint: testMint, Symbol: "USDC"}
	results := env.orch.HandleSignal(context.Background(), token)

	if len(results) != 5 {
		t.Fatalf("got %d results, want 5 eligible users", len(results))
	}
	for i, res := range results {
		if !res.OK {
			t.Errorf("result %d failed: %s", i, res.FailReason)
		}
	}
	// 6 alerts plus 5 trade notifications.
	if got := len(env.notifier.Messages()); got != 11 {
		t.Errorf("got %d notifications, want 11", got)
	}
}

func TestHandleSignalSingleUserFailure(t *testing.T) {
	env := newTestEnv(t)
	for i := int64(1); i <= 5; i++ {
		u := testUser(t, env, i)
		u.Alerts = true
		u.AutoTrade = true
		u.SnipeAmount = domain.LamportsPerSOL
		if i == 3 {
			u.Wallet.SecretKey = "garbage"
		}
		if err := env.users.Save(context.Background(), u); err != nil {
			t.Fatal(err)
		}
	}

	results := env.orch.HandleSignal(context.Background(), &domain.TokenDescriptor{Mint: testMint, Symbol: "USDC"})
	if len(results) != 5 {
		t.Fatalf("got %d results, want 5", len(results))
	}
	ok, failed := 0, 0
	for _, res := range results {
		if res.OK {
			ok++
		} else {
			failed++
		}
	}
	if ok != 4 || failed != 1 {
		t.Errorf("ok=%d failed=%d, want one broken wallet isolated from the rest", ok, failed)
	}
}

func TestHandleSignalFailureIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.quotes.quoteErr = errors.New("no route")
	for i := int64(1); i <= 3; i++ {
		u := testUser(t, env, i)
		u.Alerts = true
		u.AutoTrade = true
		u.SnipeAmount = domain.LamportsPerSOL
		if err := env.users.Save(context.Background(), u); err != nil {
			t.Fatal(err)
		}
	}

	results := env.orch.HandleSignal(context.Background(), &domain.TokenDescriptor{Mint: testMint})
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i, res := range results {
		if res.OK {
			t.Errorf("result %d unexpectedly OK", i)
		}
	}
}
