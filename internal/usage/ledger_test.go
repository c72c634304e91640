package usage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadeshmukh/discord-ai/internal/guilds"
	"github.com/sadeshmukh/discord-ai/internal/providers"
	"github.com/sadeshmukh/discord-ai/internal/store"
	"github.com/sadeshmukh/discord-ai/internal/store/file"
)

func newLedger(t *testing.T, w Weights) (*Ledger, *guilds.Manager) {
	t.Helper()
	s, err := file.NewFileGuildStore(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, err)
	g := guilds.NewManager(s, guilds.Defaults{ContextLength: 5, TokenLimit: 1000})
	return NewLedger(g, w), g
}

func setToday(t *testing.T, g *guilds.Manager, guildID string, today int64) {
	t.Helper()
	_, err := g.Update(context.Background(), guildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.Usage.Today = today
		return nil
	})
	require.NoError(t, err)
}

func TestLedger_CrossingCallIsCountedThenBlocked(t *testing.T) {
	ctx := context.Background()
	l, g := newLedger(t, Weights{})
	setToday(t, g, "g", 999)

	ok, err := l.CheckBudget(ctx, "g")
	require.NoError(t, err)
	require.True(t, ok, "999 < 1000 must be allowed")

	counters, err := l.Record(ctx, "g", providers.Usage{PromptTokens: 5, CompletionTokens: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1014), counters.Today)
	assert.Equal(t, int64(15), counters.Total)

	ok, err = l.CheckBudget(ctx, "g")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAllowed(t *testing.T) {
	tests := []struct {
		name string
		cfg  store.GuildConfig
		want bool
	}{
		{"under", store.GuildConfig{TokenLimit: 10, Usage: store.UsageCounters{Today: 9}}, true},
		{"at limit", store.GuildConfig{TokenLimit: 10, Usage: store.UsageCounters{Today: 10}}, false},
		{"over", store.GuildConfig{TokenLimit: 10, Usage: store.UsageCounters{Today: 5000}}, false},
		{"bypass", store.GuildConfig{TokenLimit: 10, BypassLimits: true, Usage: store.UsageCounters{Today: 5000}}, true},
	}
	for _, tt := range tests {
		if got := Allowed(tt.cfg); got != tt.want {
			t.Errorf("%s: Allowed = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestLedger_Weights(t *testing.T) {
	l, _ := newLedger(t, Weights{Prompt: 0.5, Completion: 2})
	if got := l.Weigh(providers.Usage{PromptTokens: 10, CompletionTokens: 3}); got != 11 {
		t.Errorf("Weigh = %d, want 11", got)
	}
	l, _ = newLedger(t, Weights{})
	if got := l.Weigh(providers.Usage{PromptTokens: 10, CompletionTokens: 3}); got != 13 {
		t.Errorf("default Weigh = %d, want 13", got)
	}
}

// TestLedger_ResetDaily checks today is zeroed and totals keep growing.
func TestLedger_ResetDaily(t *testing.T) {
	ctx := context.Background()
	l, g := newLedger(t, Weights{})

	var lastToday int64
	for day := 0; day < 3; day++ {
		for i := 0; i < 4; i++ {
			c, err := l.Record(ctx, "a", providers.Usage{PromptTokens: 2, CompletionTokens: 1})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, c.Today, lastToday, "today must not decrease between resets")
			lastToday = c.Today
		}
		_, err := l.Record(ctx, "b", providers.Usage{PromptTokens: 1})
		require.NoError(t, err)

		n, err := l.ResetDaily(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		lastToday = 0

		for _, id := range []string{"a", "b"} {
			cfg, _, err := g.Get(ctx, id)
			require.NoError(t, err)
			assert.Zero(t, cfg.Usage.Today)
		}
	}

	totals, err := l.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), totals.Today)
	assert.Equal(t, int64(3*12+3), totals.Total)
}
