// Package usage tracks per-guild token consumption against daily budgets.
package usage

import (
	"context"
	"log/slog"
	"math"

	"github.com/sadeshmukh/discord-ai/internal/guilds"
	"github.com/sadeshmukh/discord-ai/internal/providers"
	"github.com/sadeshmukh/discord-ai/internal/store"
)

// LimitNotice is posted once when a guild exhausts its daily budget.
const LimitNotice = "You have reached the token limit for today."

// Weights scale prompt and completion tokens before they are counted.
// Zero values count as 1.
type Weights struct {
	Prompt     float64
	Completion float64
}

// Ledger reads and updates guild usage counters through the guild manager,
// so every change happens under that guild's lock.
type Ledger struct {
	guilds  *guilds.Manager
	weights Weights
}

func NewLedger(g *guilds.Manager, w Weights) *Ledger {
	if w.Prompt == 0 {
		w.Prompt = 1
	}
	if w.Completion == 0 {
		w.Completion = 1
	}
	return &Ledger{guilds: g, weights: w}
}

// Allowed reports whether cfg may make another generation call. The check
// happens before the call, so the call that crosses the limit is counted.
func Allowed(cfg store.GuildConfig) bool {
	return cfg.BypassLimits || cfg.Usage.Today < cfg.TokenLimit
}

// CheckBudget loads the guild and applies Allowed.
func (l *Ledger) CheckBudget(ctx context.Context, guildID string) (bool, error) {
	cfg, _, err := l.guilds.Get(ctx, guildID)
	if err != nil {
		return false, err
	}
	return Allowed(cfg), nil
}

// Weigh converts provider usage into counted tokens.
func (l *Ledger) Weigh(u providers.Usage) int64 {
	return int64(math.Round(l.weights.Prompt*float64(u.PromptTokens) + l.weights.Completion*float64(u.CompletionTokens)))
}

// Record adds u to the guild's today and total counters and persists them.
func (l *Ledger) Record(ctx context.Context, guildID string, u providers.Usage) (store.UsageCounters, error) {
	n := l.Weigh(u)
	cfg, err := l.guilds.Update(ctx, guildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.Usage.Today += n
		cfg.Usage.Total += n
		return nil
	})
	if err != nil {
		return store.UsageCounters{}, err
	}
	return cfg.Usage, nil
}

// ResetDaily zeroes today's counter for every guild and returns how many
// guilds were reset. Guilds that fail are logged and skipped.
func (l *Ledger) ResetDaily(ctx context.Context) (int, error) {
	ids, err := l.guilds.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		_, err := l.guilds.Update(ctx, id, func(cfg *store.GuildConfig, _ bool) error {
			cfg.Usage.Today = 0
			return nil
		})
		if err != nil {
			slog.Error("usage reset failed", "guild_id", id, "error", err)
			continue
		}
		n++
	}
	return n, nil
}

// Totals sums usage across every guild.
func (l *Ledger) Totals(ctx context.Context) (store.UsageCounters, error) {
	ids, err := l.guilds.List(ctx)
	if err != nil {
		return store.UsageCounters{}, err
	}
	var sum store.UsageCounters
	for _, id := range ids {
		cfg, _, err := l.guilds.Get(ctx, id)
		if err != nil {
			return store.UsageCounters{}, err
		}
		sum.Today += cfg.Usage.Today
		sum.Total += cfg.Usage.Total
	}
	return sum, nil
}
