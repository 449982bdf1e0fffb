package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/notify"
	"solana-trade-bot/internal/observability"
	"solana-trade-bot/internal/solana"
	"solana-trade-bot/internal/storage"
)

// TradeRunner executes trades and transfers on behalf of a user.
type TradeRunner interface {
	ExecuteTrade(ctx context.Context, user *domain.User, intent domain.TradeIntent) domain.TradeResult
	TransferToken(ctx context.Context, user *domain.User, mint, destination string) (string, error)
	TransferNative(ctx context.Context, user *domain.User, destination string) (string, error)
}

// TokenDescriber inspects candidate token addresses.
type TokenDescriber interface {
	Describe(ctx context.Context, mint string) (*domain.TokenDescriptor, error)
}

// BalanceReader reads wallet balances for prompts and sell sizing.
type BalanceReader interface {
	GetBalance(ctx context.Context, pubkey string) (uint64, error)
	GetTokenBalance(ctx context.Context, owner, mint string) (solana.TokenBalance, error)
}

// Machine routes chat input to actions.
type Machine struct {
	users    storage.UserStore
	sessions *SessionStore
	tokens   TokenDescriber
	trades   TradeRunner
	rpc      BalanceReader
	notifier notify.Notifier
	log      *log.Logger
}

// Options configures a Machine. All fields except Log are required.
type Options struct {
	Users    storage.UserStore
	Tokens   TokenDescriber
	Trades   TradeRunner
	RPC      BalanceReader
	Notifier notify.Notifier
	Log      *log.Logger
}

// NewMachine creates a Machine with a fresh session store.
func NewMachine(opts Options) *Machine {
	logger := opts.Log
	if logger == nil {
		logger = log.Default()
	}
	return &Machine{
		users:    opts.Users,
		sessions: NewSessionStore(),
		tokens:   opts.Tokens,
		trades:   opts.Trades,
		rpc:      opts.RPC,
		notifier: opts.Notifier,
		log:      logger,
	}
}

// HandleText processes one free-text message from a chat. Updates for
// the same chat are serialized; the transport may call from any
// goroutine.
func (m *Machine) HandleText(ctx context.Context, chatID int64, username, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	defer m.sessions.Acquire(chatID)()

	if strings.HasPrefix(text, "/") {
		observability.RecordMessage("command")
		m.handleCommand(ctx, chatID, username, text)
		return
	}

	user, ok := m.requireUser(ctx, chatID)
	if !ok {
		return
	}

	sess := m.sessions.Get(chatID)
	if sess.Pending != domain.PendingNone {
		observability.RecordMessage("pending input")
		m.handlePending(ctx, user, sess, text)
		return
	}

	if mint, found := extractTokenAddress(text); found {
		observability.RecordMessage("token address")
		m.selectToken(ctx, user, sess, mint)
		return
	}

	observability.RecordMessage("unrecognized")
	m.reply(ctx, chatID, "Send a token address to trade, or /help for commands.")
}

func (m *Machine) handleCommand(ctx context.Context, chatID int64, username, text string) {
	cmd := strings.ToLower(strings.Fields(text)[0])
	switch cmd {
	case "/start":
		m.handleStart(ctx, chatID, username)
	case "/settings":
		if user, ok := m.requireUser(ctx, chatID); ok {
			m.showSettings(ctx, user)
		}
	case "/wallet":
		if user, ok := m.requireUser(ctx, chatID); ok {
			m.showWallet(ctx, user)
		}
	case "/withdraw":
		if _, ok := m.requireUser(ctx, chatID); ok {
			sess := m.sessions.Get(chatID)
			sess.Pending = domain.PendingWithdrawAddress
			m.reply(ctx, chatID, "Enter the destination address for your SOL.")
		}
	case "/help":
		m.reply(ctx, chatID, helpText)
	default:
		m.reply(ctx, chatID, fmt.Sprintf("Unknown command %s. Try /help.", cmd))
	}
}

const helpText = `Send a token address to see it and trade.
/start - create your wallet
/wallet - show address and balance
/settings - trading settings
/withdraw - send SOL out
/help - this message`

// handleStart creates the user and their custodial wallet on first
// contact.
func (m *Machine) handleStart(ctx context.Context, chatID int64, username string) {
	if user, err := m.users.GetByChatID(ctx, chatID); err == nil {
		m.reply(ctx, chatID, fmt.Sprintf("Welcome back. Your wallet: %s", user.Wallet.PublicKey))
		return
	}

	kp, err := solana.GenerateKeypair()
	if err != nil {
		m.log.Printf("generate keypair for chat %d: %v", chatID, err)
		m.reply(ctx, chatID, "Could not create a wallet, try again.")
		return
	}

	user := domain.NewUser(chatID, username, domain.Wallet{
		PublicKey: kp.PublicKeyString(),
		SecretKey: kp.SecretKeyString(),
	})
	if err := m.users.Create(ctx, user); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			m.reply(ctx, chatID, "You already have a wallet. /wallet shows it.")
			return
		}
		m.log.Printf("create user %d: %v", chatID, err)
		m.reply(ctx, chatID, "Could not create your account, try again.")
		return
	}

	m.reply(ctx, chatID, fmt.Sprintf(
		"Wallet created: %s\nFund it with SOL, then send any token address to trade.",
		user.Wallet.PublicKey))
}

// requireUser loads the user or prompts for /start.
func (m *Machine) requireUser(ctx context.Context, chatID int64) (*domain.User, bool) {
	user, err := m.users.GetByChatID(ctx, chatID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.reply(ctx, chatID, "Send /start to create your wallet first.")
		} else {
			m.log.Printf("load user %d: %v", chatID, err)
			m.reply(ctx, chatID, "Something went wrong, try again.")
		}
		return nil, false
	}
	return user, true
}

// selectToken inspects the address and makes it the session's active
// token.
func (m *Machine) selectToken(ctx context.Context, user *domain.User, sess *domain.Session, mint string) {
	token, err := m.tokens.Describe(ctx, mint)
	if err != nil {
		m.log.Printf("describe %s: %v", mint, err)
		m.reply(ctx, user.ChatID, "That address is not a tradable token.")
		return
	}

	sess.ActiveToken = token
	sess.Reset()

	text := fmt.Sprintf("%s\n%s", token.DisplayName(), token.Mint)
	if token.Price > 0 {
		text += fmt.Sprintf("\nPrice: $%.8f", token.Price)
	}
	switch token.Risk {
	case domain.RiskFreezeAuthority:
		text += "\nWarning: freeze authority is enabled, holdings can be locked."
	case domain.RiskMintAuthority:
		text += "\nWarning: mint authority is enabled, supply can be inflated."
	}

	m.send(ctx, user.ChatID, text, tokenMarkup(user))
}

func tokenMarkup(user *domain.User) *notify.Markup {
	snipe := decimal.NewFromUint64(user.SnipeAmount).Shift(-domain.NativeDecimals).String()
	return &notify.Markup{Rows: [][]notify.Button{
		{
			{Text: fmt.Sprintf("Buy %s SOL (you set)", snipe), Data: "buy:default"},
			{Text: "Buy X SOL", Data: "buy"},
		},
		{
			{Text: "Buy 2 SOL", Data: "buy:2"},
			{Text: "Buy 1 SOL", Data: "buy:1"},
			{Text: "Buy 0.5 SOL", Data: "buy:0.5"},
			{Text: "Buy 0.1 SOL", Data: "buy:0.1"},
		},
		{
			{Text: "Sell", Data: "sell"},
			{Text: "Transfer", Data: "transfer"},
		},
	}}
}

// handlePending consumes free text the session was waiting for. Input
// that fails validation re-prompts and leaves the pending state alone.
func (m *Machine) handlePending(ctx context.Context, user *domain.User, sess *domain.Session, text string) {
	switch sess.Pending {
	case domain.PendingBuyAmount:
		amount, err := parseNativeAmount(text)
		if err != nil {
			m.reply(ctx, user.ChatID, "Enter a positive SOL amount, like 0.5")
			return
		}
		sess.Reset()
		m.runBuy(ctx, user, sess, amount)

	case domain.PendingSellRatio:
		ratio, err := parseRatio(text)
		if err != nil {
			m.reply(ctx, user.ChatID, "Enter a percentage between 0 and 100.")
			return
		}
		sess.Reset()
		m.runSell(ctx, user, sess, ratio)

	case domain.PendingTransferAddress:
		if !solana.ValidatePublicKey(text) {
			m.reply(ctx, user.ChatID, "That is not a valid address, try again.")
			return
		}
		sess.Reset()
		m.runTokenTransfer(ctx, user, sess, text)

	case domain.PendingWithdrawAddress:
		if !solana.ValidatePublicKey(text) {
			m.reply(ctx, user.ChatID, "That is not a valid address, try again.")
			return
		}
		sess.Reset()
		m.runWithdraw(ctx, user, text)

	case domain.PendingSnipeAmount:
		amount, err := parseNativeAmount(text)
		if err != nil {
			m.reply(ctx, user.ChatID, "Enter a positive SOL amount, like 0.1")
			return
		}
		user.SnipeAmount = amount
		m.saveSettings(ctx, user, sess)

	case domain.PendingPriorityFee:
		fee, err := parseNativeAmount(text)
		if err != nil {
			m.reply(ctx, user.ChatID, "Enter the priority fee in SOL, like 0.0002")
			return
		}
		user.PriorityFee = fee
		m.saveSettings(ctx, user, sess)

	case domain.PendingSlippage:
		bps, err := parseSlippagePercent(text)
		if err != nil {
			m.reply(ctx, user.ChatID, "Enter slippage as a percentage, like 0.5")
			return
		}
		user.SlippageBps = bps
		m.saveSettings(ctx, user, sess)

	case domain.PendingRelayTip:
		tip, err := parseNativeAmount(text)
		if err != nil {
			m.reply(ctx, user.ChatID, "Enter the relay tip in SOL, like 0.001")
			return
		}
		user.RelayTip = tip
		m.saveSettings(ctx, user, sess)

	case domain.PendingWatchAdd:
		handle := strings.TrimPrefix(strings.TrimSpace(text), "@")
		if handle == "" {
			m.reply(ctx, user.ChatID, "Enter the handle to watch.")
			return
		}
		for _, p := range user.WatchProfiles {
			if strings.EqualFold(p.Handle, handle) {
				m.reply(ctx, user.ChatID, "Already on your watch list.")
				return
			}
		}
		user.WatchProfiles = append(user.WatchProfiles, domain.WatchProfile{ID: handle, Handle: handle})
		m.saveSettings(ctx, user, sess)

	case domain.PendingWatchRemove:
		handle := strings.TrimPrefix(strings.TrimSpace(text), "@")
		idx := -1
		for i, p := range user.WatchProfiles {
			if strings.EqualFold(p.Handle, handle) {
				idx = i
				break
			}
		}
		if idx < 0 {
			m.reply(ctx, user.ChatID, "That handle is not on your watch list, try again.")
			return
		}
		user.WatchProfiles = append(user.WatchProfiles[:idx], user.WatchProfiles[idx+1:]...)
		m.saveSettings(ctx, user, sess)

	default:
		sess.Reset()
		m.reply(ctx, user.ChatID, "Send a token address to trade, or /help for commands.")
	}
}

// saveSettings persists the user, resets the pending state, and
// re-shows the settings view.
func (m *Machine) saveSettings(ctx context.Context, user *domain.User, sess *domain.Session) {
	if err := m.users.Save(ctx, user); err != nil {
		m.log.Printf("save user %d: %v", user.ChatID, err)
		m.reply(ctx, user.ChatID, "Could not save settings, try again.")
		return
	}
	sess.Reset()
	m.showSettings(ctx, user)
}
