package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/notify"
	"solana-trade-bot/internal/observability"
)

// HandleCallback processes one inline button press. Like HandleText,
// per-chat updates run one at a time.
func (m *Machine) HandleCallback(ctx context.Context, chatID int64, data string) {
	observability.RecordCallback()
	defer m.sessions.Acquire(chatID)()

	user, ok := m.requireUser(ctx, chatID)
	if !ok {
		return
	}
	sess := m.sessions.Get(chatID)

	// Preset buy buttons carry the SOL amount in the payload, or
	// "default" for the user's configured snipe amount.
	if amountText, found := strings.CutPrefix(data, "buy:"); found {
		if sess.ActiveToken == nil {
			m.reply(ctx, chatID, "Select a token first by sending its address.")
			return
		}
		if amountText == "default" {
			if user.SnipeAmount == 0 {
				m.reply(ctx, chatID, "You have not set a snipe amount. Set it in /settings or pick another buy option.")
				return
			}
			sess.Reset()
			m.runBuy(ctx, user, sess, user.SnipeAmount)
			return
		}
		lamports, err := parseNativeAmount(amountText)
		if err != nil {
			m.log.Printf("bad buy callback %q from chat %d", data, chatID)
			return
		}
		sess.Reset()
		m.runBuy(ctx, user, sess, lamports)
		return
	}

	// Preset sell buttons carry the ratio in the payload.
	if ratioText, found := strings.CutPrefix(data, "sell:"); found {
		if sess.ActiveToken == nil {
			m.reply(ctx, chatID, "Select a token first by sending its address.")
			return
		}
		ratio, err := parseRatio(ratioText)
		if err != nil {
			m.log.Printf("bad sell callback %q from chat %d", data, chatID)
			return
		}
		sess.Reset()
		m.runSell(ctx, user, sess, ratio)
		return
	}

	switch data {
	case "buy":
		if sess.ActiveToken == nil {
			m.reply(ctx, chatID, "Select a token first by sending its address.")
			return
		}
		sess.Pending = domain.PendingBuyAmount
		m.reply(ctx, chatID, "How much SOL do you want to spend?")

	case "sell":
		if sess.ActiveToken == nil {
			m.reply(ctx, chatID, "Select a token first by sending its address.")
			return
		}
		sess.Pending = domain.PendingSellRatio
		m.send(ctx, chatID, "How much do you want to sell?", sellMarkup())

	case "transfer":
		if sess.ActiveToken == nil {
			m.reply(ctx, chatID, "Select a token first by sending its address.")
			return
		}
		sess.Pending = domain.PendingTransferAddress
		m.reply(ctx, chatID, fmt.Sprintf("Enter the destination address for your %s.", sess.ActiveToken.DisplayName()))

	case "withdraw":
		sess.Pending = domain.PendingWithdrawAddress
		m.reply(ctx, chatID, "Enter the destination address for your SOL.")

	case "toggle_mev":
		user.MevProtect = !user.MevProtect
		m.saveSettings(ctx, user, sess)
	case "toggle_auto":
		user.AutoTrade = !user.AutoTrade
		m.saveSettings(ctx, user, sess)
	case "toggle_alerts":
		user.Alerts = !user.Alerts
		m.saveSettings(ctx, user, sess)

	case "set_snipe":
		sess.Pending = domain.PendingSnipeAmount
		m.reply(ctx, chatID, "Enter the SOL amount to buy on each signal.")
	case "set_fee":
		sess.Pending = domain.PendingPriorityFee
		m.reply(ctx, chatID, "Enter the priority fee in SOL.")
	case "set_slippage":
		sess.Pending = domain.PendingSlippage
		m.reply(ctx, chatID, "Enter the slippage tolerance as a percentage.")
	case "set_tip":
		sess.Pending = domain.PendingRelayTip
		m.reply(ctx, chatID, "Enter the relay tip in SOL.")

	case "watch_add":
		sess.Pending = domain.PendingWatchAdd
		m.reply(ctx, chatID, "Enter the handle to watch.")
	case "watch_remove":
		if len(user.WatchProfiles) == 0 {
			m.reply(ctx, chatID, "Your watch list is empty.")
			return
		}
		sess.Pending = domain.PendingWatchRemove
		m.reply(ctx, chatID, "Enter the handle to remove.")

	default:
		m.log.Printf("unknown callback %q from chat %d", data, chatID)
	}
}

func sellMarkup() *notify.Markup {
	return &notify.Markup{Rows: [][]notify.Button{
		{
			{Text: "25%", Data: "sell:25"},
			{Text: "50%", Data: "sell:50"},
			{Text: "75%", Data: "sell:75"},
			{Text: "100%", Data: "sell:100"},
		},
	}}
}

func (m *Machine) runBuy(ctx context.Context, user *domain.User, sess *domain.Session, lamports uint64) {
	token := sess.ActiveToken
	if token == nil {
		m.reply(ctx, user.ChatID, "Select a token first by sending its address.")
		return
	}

	m.reply(ctx, user.ChatID, fmt.Sprintf("Buying %s...", token.DisplayName()))
	m.trades.ExecuteTrade(ctx, user, domain.TradeIntent{
		Direction:   domain.Buy,
		InputMint:   domain.NativeMint,
		OutputMint:  token.Mint,
		Amount:      lamports,
		PriorityFee: user.PriorityFee,
		SlippageBps: user.SlippageBps,
		RelayTip:    user.RelayTip,
		MevProtect:  user.MevProtect,
	})
}

func (m *Machine) runSell(ctx context.Context, user *domain.User, sess *domain.Session, ratio decimal.Decimal) {
	token := sess.ActiveToken
	if token == nil {
		m.reply(ctx, user.ChatID, "Select a token first by sending its address.")
		return
	}

	balance, err := m.rpc.GetTokenBalance(ctx, user.Wallet.PublicKey, token.Mint)
	if err != nil {
		m.log.Printf("token balance for chat %d: %v", user.ChatID, err)
		m.reply(ctx, user.ChatID, "Could not read your balance, try again.")
		return
	}
	amount := ratioOf(balance.Amount, ratio)
	if amount == 0 {
		m.reply(ctx, user.ChatID, fmt.Sprintf("You have no %s to sell.", token.DisplayName()))
		return
	}

	m.reply(ctx, user.ChatID, fmt.Sprintf("Selling %s...", token.DisplayName()))
	m.trades.ExecuteTrade(ctx, user, domain.TradeIntent{
		Direction:   domain.Sell,
		InputMint:   token.Mint,
		OutputMint:  domain.NativeMint,
		Amount:      amount,
		PriorityFee: user.PriorityFee,
		SlippageBps: user.SlippageBps,
		RelayTip:    user.RelayTip,
		MevProtect:  user.MevProtect,
	})
}

func (m *Machine) runTokenTransfer(ctx context.Context, user *domain.User, sess *domain.Session, destination string) {
	token := sess.ActiveToken
	if token == nil {
		m.reply(ctx, user.ChatID, "Select a token first by sending its address.")
		return
	}

	sig, err := m.trades.TransferToken(ctx, user, token.Mint, destination)
	if err != nil {
		m.log.Printf("token transfer for chat %d: %v", user.ChatID, err)
		m.reply(ctx, user.ChatID, transferFailText(sig, err))
		return
	}
	m.reply(ctx, user.ChatID, fmt.Sprintf("Transfer confirmed: %s", sig))
}

func (m *Machine) runWithdraw(ctx context.Context, user *domain.User, destination string) {
	sig, err := m.trades.TransferNative(ctx, user, destination)
	if err != nil {
		m.log.Printf("withdraw for chat %d: %v", user.ChatID, err)
		m.reply(ctx, user.ChatID, transferFailText(sig, err))
		return
	}
	m.reply(ctx, user.ChatID, fmt.Sprintf("Withdrawal confirmed: %s", sig))
}

func transferFailText(sig string, err error) string {
	if sig != "" {
		return fmt.Sprintf("Transfer sent but not confirmed: %s", sig)
	}
	return fmt.Sprintf("Transfer failed: %v", err)
}

func (m *Machine) showWallet(ctx context.Context, user *domain.User) {
	balance, err := m.rpc.GetBalance(ctx, user.Wallet.PublicKey)
	if err != nil {
		m.log.Printf("balance for chat %d: %v", user.ChatID, err)
		m.reply(ctx, user.ChatID, fmt.Sprintf("Your wallet: %s", user.Wallet.PublicKey))
		return
	}
	sol := float64(balance) / float64(domain.LamportsPerSOL)
	m.reply(ctx, user.ChatID, fmt.Sprintf("Your wallet: %s\nBalance: %.4f SOL", user.Wallet.PublicKey, sol))
}

func (m *Machine) showSettings(ctx context.Context, user *domain.User) {
	onOff := func(b bool) string {
		if b {
			return "on"
		}
		return "off"
	}
	sol := func(lamports uint64) string {
		return decimal.NewFromUint64(lamports).Shift(-domain.NativeDecimals).String()
	}

	text := fmt.Sprintf(
		"Settings\nSnipe amount: %s SOL\nPriority fee: %s SOL\nSlippage: %s%%\nRelay tip: %s SOL\nMEV protection: %s\nAuto-trade: %s\nAlerts: %s",
		sol(user.SnipeAmount), sol(user.PriorityFee),
		decimal.NewFromInt(int64(user.SlippageBps)).Shift(-2).String(),
		sol(user.RelayTip),
		onOff(user.MevProtect), onOff(user.AutoTrade), onOff(user.Alerts),
	)
	if len(user.WatchProfiles) > 0 {
		handles := make([]string, len(user.WatchProfiles))
		for i, p := range user.WatchProfiles {
			handles[i] = "@" + p.Handle
		}
		text += "\nWatching: " + strings.Join(handles, ", ")
	}

	m.send(ctx, user.ChatID, text, settingsMarkup())
}

func settingsMarkup() *notify.Markup {
	return &notify.Markup{Rows: [][]notify.Button{
		{
			{Text: "Snipe amount", Data: "set_snipe"},
			{Text: "Priority fee", Data: "set_fee"},
		},
		{
			{Text: "Slippage", Data: "set_slippage"},
			{Text: "Relay tip", Data: "set_tip"},
		},
		{
			{Text: "MEV protection", Data: "toggle_mev"},
			{Text: "Auto-trade", Data: "toggle_auto"},
			{Text: "Alerts", Data: "toggle_alerts"},
		},
		{
			{Text: "Watch handle", Data: "watch_add"},
			{Text: "Unwatch handle", Data: "watch_remove"},
		},
	}}
}

// reply sends plain text; send attaches markup. Delivery failures are
// logged, never propagated into the conversation flow.
func (m *Machine) reply(ctx context.Context, chatID int64, text string) {
	m.send(ctx, chatID, text, nil)
}

func (m *Machine) send(ctx context.Context, chatID int64, text string, markup *notify.Markup) {
	if _, err := m.notifier.Send(ctx, chatID, text, markup); err != nil {
		m.log.Printf("send to chat %d: %v", chatID, err)
	}
}
