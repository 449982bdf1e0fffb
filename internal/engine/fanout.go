package engine

import (
	"context"
	"fmt"
	"sync"

	"solana-trade-bot/internal/domain"
	"solana-trade-bot/internal/observability"
)

// DefaultWorkers bounds concurrent pipelines during signal fan-out.
const DefaultWorkers = 8

// HandleSignal reacts to a token signal: every alert-enabled user gets
// the alert, and every eligible user gets a buy for their configured
// snipe amount. Pipelines run concurrently, bounded by the worker
// count, and one user's failure never reaches another.
func (o *Orchestrator) HandleSignal(ctx context.Context, token *domain.TokenDescriptor) []domain.TradeResult {
	o.alertAll(ctx, token)
	return o.ExecuteForAllEligible(ctx, token)
}

func (o *Orchestrator) alertAll(ctx context.Context, token *domain.TokenDescriptor) {
	users, err := o.users.ListAlertEnabled(ctx)
	if err != nil {
		o.log.Printf("list alert users: %v", err)
		return
	}
	text := fmt.Sprintf("Signal: %s\n%s", token.DisplayName(), token.Mint)
	if token.Risk > domain.RiskNone {
		text += fmt.Sprintf("\nRisk score: %d", token.Risk)
	}
	for _, u := range users {
		if _, err := o.notifier.Send(ctx, u.ChatID, text, nil); err != nil {
			o.log.Printf("alert chat %d: %v", u.ChatID, err)
		}
	}
}

// ExecuteForAllEligible runs one buy pipeline per eligible user.
func (o *Orchestrator) ExecuteForAllEligible(ctx context.Context, token *domain.TokenDescriptor) []domain.TradeResult {
	users, err := o.users.ListEligible(ctx)
	if err != nil {
		o.log.Printf("list eligible users: %v", err)
		return nil
	}
	observability.RecordFanOut(len(users))
	if len(users) == 0 {
		return nil
	}

	workers := o.workers
	if workers > len(users) {
		workers = len(users)
	}

	jobs := make(chan int)
	results := make([]domain.TradeResult, len(users))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				u := users[i]
				results[i] = o.ExecuteTrade(ctx, u, BuyIntent(u, token.Mint, u.SnipeAmount))
			}
		}()
	}
	for i := range users {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
