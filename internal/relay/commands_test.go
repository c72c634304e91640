package relay

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadeshmukh/discord-ai/internal/render"
	"github.com/sadeshmukh/discord-ai/internal/store"
	"github.com/sadeshmukh/discord-ai/internal/transcript"
	"github.com/sadeshmukh/discord-ai/internal/usage"
	"github.com/sadeshmukh/discord-ai/internal/venue"
)

const adminID = "1"

func newCommands(h *harness) *Commands {
	return NewCommands(h.relay, CommandOptions{
		Admins: []string{adminID},
		Invite: "https://discord.gg/example",
		Now:    func() time.Time { return time.Date(2024, 9, 5, 10, 0, 0, 0, time.UTC) },
	})
}

func modInvocation(args map[string]any) *Invocation {
	return &Invocation{GuildID: testGuild, ChannelID: testChannel, User: alice, CanManageGuild: true, Args: args}
}

func adminInvocation(args map[string]any) *Invocation {
	return &Invocation{GuildID: testGuild, ChannelID: testChannel, User: venue.User{ID: adminID, Name: "owner"}, Args: args}
}

func TestCommands_Permissions(t *testing.T) {
	ctx := context.Background()
	c := newCommands(newHarness(t, nil))

	plain := &Invocation{GuildID: testGuild, ChannelID: testChannel, User: bob}
	resp := c.Dispatch(ctx, "disable", "", plain)
	assert.Equal(t, Response{Text: msgNoPermission, Ephemeral: true}, resp)

	resp = c.Dispatch(ctx, "admin", "bypass", modInvocation(nil))
	assert.Equal(t, msgNoPermission, resp.Text)

	resp = c.Dispatch(ctx, "system", "get", adminInvocation(nil))
	assert.Equal(t, "System: `You are an assistant.`", resp.Text)

	resp = c.Dispatch(ctx, "ignoreme", "", &Invocation{User: bob})
	assert.Equal(t, msgGuildOnly, resp.Text)

	resp = c.Dispatch(ctx, "nope", "", plain)
	assert.True(t, resp.Ephemeral)
}

func TestCommands_ListPaths(t *testing.T) {
	c := newCommands(newHarness(t, nil))
	seen := map[string]bool{}
	for _, cmd := range c.List() {
		assert.False(t, seen[cmd.Path()], "duplicate command %s", cmd.Path())
		seen[cmd.Path()] = true
	}
	for _, p := range []string{"setchannel", "system set", "contextlength get", "admin setmodel", "peace", "help"} {
		assert.True(t, seen[p], "missing %s", p)
	}
}

func TestCommands_SetChannel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := newCommands(h)

	inv := &Invocation{GuildID: "501", ChannelID: "700", User: alice, CanManageGuild: true}
	resp := c.Dispatch(ctx, "setchannel", "", inv)
	assert.True(t, resp.Ephemeral)

	msgs, err := h.venue.FetchRecent(ctx, "700", 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Channel set! Defaulting to Gemini. To edit the system message, use `/system set [message]`.", msgs[0].Content)
	assert.Equal(t, "Setting channel...", h.venue.Sent()[0].Text)

	cfg, ok, err := h.guilds.Get(ctx, "501")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, store.ID("700"), cfg.ChannelID)
	assert.Equal(t, SetupModel, cfg.Model)
	assert.Equal(t, SetupSystem, cfg.System)

	inv.ChannelID = "701"
	c.Dispatch(ctx, "setchannel", "", inv)
	msgs, err = h.venue.FetchRecent(ctx, "701", 1)
	require.NoError(t, err)
	assert.Equal(t, "Channel set!", msgs[0].Content)
}

func TestCommands_SetChannelWithoutSendPermission(t *testing.T) {
	h := newHarness(t, nil)
	h.venue.SendErr = assert.AnError
	c := newCommands(h)

	resp := c.Dispatch(context.Background(), "setchannel", "", modInvocation(nil))
	assert.Equal(t, Response{Text: "Channel set!"}, resp)
}

func TestCommands_Disable(t *testing.T) {
	h := newHarness(t, nil)
	c := newCommands(h)
	resp := c.Dispatch(context.Background(), "disable", "", modInvocation(nil))
	assert.Contains(t, resp.Text, "Disabled bot")
	assert.Equal(t, store.ID(""), h.guild(t).ChannelID)
}

func TestCommands_System(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := newCommands(h)

	resp := c.Dispatch(ctx, "system", "set", modInvocation(map[string]any{"system": strings.Repeat("x", 101)}))
	assert.Equal(t, Response{Text: "System message too long.", Ephemeral: true}, resp)
	assert.Empty(t, h.guild(t).System)

	resp = c.Dispatch(ctx, "system", "set", modInvocation(map[string]any{"system": "Talk like a pirate."}))
	assert.Equal(t, "System set: `Talk like a pirate.`", resp.Text)

	resp = c.Dispatch(ctx, "system", "get", modInvocation(nil))
	assert.Equal(t, "System: `Talk like a pirate.`", resp.Text)
}

func TestCommands_ContextLength(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := newCommands(h)

	for _, n := range []int64{0, 13} {
		resp := c.Dispatch(ctx, "contextlength", "set", modInvocation(map[string]any{"length": n}))
		assert.Equal(t, "Context length must be between 1 and 12.", resp.Text)
	}
	assert.Equal(t, 5, h.guild(t).ContextLength)

	resp := c.Dispatch(ctx, "contextlength", "set", modInvocation(map[string]any{"length": int64(12)}))
	assert.Equal(t, "Set context length to 12", resp.Text)
	resp = c.Dispatch(ctx, "contextlength", "get", modInvocation(nil))
	assert.Equal(t, "Context length: 12", resp.Text)
}

func TestCommands_Toggles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := newCommands(h)

	assert.Equal(t, "TTS is now enabled", c.Dispatch(ctx, "toggletts", "", modInvocation(nil)).Text)
	assert.Equal(t, "TTS is now disabled", c.Dispatch(ctx, "toggletts", "", modInvocation(nil)).Text)
	assert.Equal(t, "See bots is now enabled", c.Dispatch(ctx, "seebots", "", modInvocation(nil)).Text)
	assert.True(t, h.guild(t).SeeBots)
	assert.False(t, h.guild(t).TTS)
}

func TestCommands_Break(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := newCommands(h)

	resp := c.Dispatch(ctx, "break", "", &Invocation{GuildID: testGuild, ChannelID: "601", User: alice, CanManageGuild: true})
	assert.Equal(t, "Created BREAKPOINT.", resp.Text)
	sent := h.venue.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, testChannel, sent[0].ChannelID)
	assert.Equal(t, transcript.Breakpoint, sent[0].Text)

	c.Dispatch(ctx, "disable", "", modInvocation(nil))
	resp = c.Dispatch(ctx, "break", "", modInvocation(nil))
	assert.Equal(t, "Channel not set.", resp.Text)
}

func TestCommands_IgnoreAndPeace(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := newCommands(h)
	inv := &Invocation{GuildID: testGuild, ChannelID: testChannel, User: bob}

	c.Dispatch(ctx, "ignoreme", "", inv)
	c.Dispatch(ctx, "ignoreme", "", inv)
	assert.Equal(t, store.IDList{"102"}, h.guild(t).IgnoredUsers)
	c.Dispatch(ctx, "unignoreme", "", inv)
	assert.Empty(t, h.guild(t).IgnoredUsers)

	resp := c.Dispatch(ctx, "peace", "", inv)
	assert.Equal(t, "You are now free from pings (from the bot).", resp.Text)
	assert.Equal(t, []store.NoPingUser{{ID: "102", Name: "Bob"}}, h.guild(t).NoPingUsers)
	c.Dispatch(ctx, "unpeace", "", inv)
	assert.Empty(t, h.guild(t).NoPingUsers)
}

func TestCommands_AdminSetModel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := newCommands(h)

	resp := c.Dispatch(ctx, "admin", "setmodel", adminInvocation(map[string]any{"model": "gpt-3.5-turbo"}))
	assert.Equal(t, "Set model to openai|gpt-3.5-turbo", resp.Text)
	assert.Equal(t, "openai|gpt-3.5-turbo", h.guild(t).Model)

	resp = c.Dispatch(ctx, "admin", "setmodel", adminInvocation(map[string]any{"model": "bogus-model"}))
	assert.Equal(t, "Model bogus-model not available.", resp.Text)
	assert.Equal(t, "openai|gpt-3.5-turbo", h.guild(t).Model)
}

func TestCommands_AdminUsageAndReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, func(cfg *store.GuildConfig) {
		cfg.Usage = store.UsageCounters{Today: 40, Total: 400}
	})
	_, err := h.guilds.Update(ctx, "501", func(cfg *store.GuildConfig, _ bool) error {
		cfg.Usage = store.UsageCounters{Today: 2, Total: 20}
		return nil
	})
	require.NoError(t, err)
	c := newCommands(h)

	resp := c.Dispatch(ctx, "admin", "usage", adminInvocation(nil))
	assert.Equal(t, "Global daily usage: 42 | Global total usage: 420", resp.Text)
	resp = c.Dispatch(ctx, "admin", "usage", adminInvocation(map[string]any{"guild_id": "501"}))
	assert.Equal(t, "Today's usage: 2 | Total usage: 20", resp.Text)

	resp = c.Dispatch(ctx, "admin", "resetusage", adminInvocation(nil))
	assert.Equal(t, "Reset all daily usage.", resp.Text)
	assert.Equal(t, store.UsageCounters{Today: 0, Total: 400}, h.guild(t).Usage)
}

func TestCommands_AdminLimits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := newCommands(h)

	resp := c.Dispatch(ctx, "admin", "setlimit", adminInvocation(map[string]any{"limit": int64(5000)}))
	assert.Equal(t, "Set token limit to 5000", resp.Text)
	assert.Equal(t, int64(5000), h.guild(t).TokenLimit)

	resp = c.Dispatch(ctx, "admin", "setlimit", adminInvocation(map[string]any{"limit": int64(0)}))
	assert.True(t, resp.Ephemeral)
	assert.Equal(t, int64(5000), h.guild(t).TokenLimit)

	assert.Equal(t, "Limits are now bypassed.", c.Dispatch(ctx, "admin", "bypass", adminInvocation(nil)).Text)
	assert.True(t, h.guild(t).BypassLimits)
	assert.Equal(t, "Limits are no longer bypassed.", c.Dispatch(ctx, "admin", "bypass", adminInvocation(nil)).Text)
}

func TestCommands_AdminListModels(t *testing.T) {
	c := newCommands(newHarness(t, nil))
	resp := c.Dispatch(context.Background(), "admin", "listmodels", adminInvocation(nil))
	assert.Equal(t, "Available models: google|gemini-1.5-flash, openai|gpt-3.5-turbo, openai|gpt-4o", resp.Text)
}

func TestModelList_CutsAtLimit(t *testing.T) {
	models := []string{"a|one", "a|two", "b|three", "b|four"}
	assert.Equal(t, "Available models: a|one, a|two, b|three, b|four", modelList(models, 2000))

	got := modelList(models, 45)
	assert.Equal(t, "Available models: a|one, a|two (and 2 more)", got)
	assert.LessOrEqual(t, len(got), 45)

	var many []string
	for i := 0; i < 300; i++ {
		many = append(many, fmt.Sprintf("openai|model-%03d", i))
	}
	got = modelList(many, render.HardLimit)
	assert.LessOrEqual(t, len([]rune(got)), render.HardLimit)
	assert.Regexp(t, `\(and \d+ more\)$`, got)
}

func TestCommands_HelpShowsNextReset(t *testing.T) {
	c := newCommands(newHarness(t, nil))
	resp := c.Dispatch(context.Background(), "help", "", &Invocation{User: bob})
	assert.True(t, resp.Ephemeral)
	assert.Contains(t, resp.Text, "<t:1725580800:t>")
	assert.Contains(t, resp.Text, "`/peace` - The bot will not ping you")
}

func TestCommands_HelpUsesSchedule(t *testing.T) {
	h := newHarness(t, nil)
	sched, err := usage.NewResetScheduler("0 12 * * *", h.ledger)
	require.NoError(t, err)
	c := NewCommands(h.relay, CommandOptions{
		Schedule: sched,
		Now:      func() time.Time { return time.Date(2024, 9, 5, 10, 0, 0, 0, time.UTC) },
	})
	next, err := c.NextReset()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 9, 5, 12, 0, 0, 0, time.UTC), next.UTC())
}

func TestCommands_AboutAndDiscord(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := newCommands(h)

	resp := c.Dispatch(ctx, "about", "", &Invocation{User: bob})
	assert.True(t, strings.HasPrefix(resp.Text, "I am <@900>."))
	assert.Contains(t, resp.Text, "https://discord.gg/example")

	resp = c.Dispatch(ctx, "about", "", &Invocation{User: bob, Args: map[string]any{"nodiscord": true}})
	assert.NotContains(t, resp.Text, "discord.gg")

	assert.Equal(t, "https://discord.gg/example", c.Dispatch(ctx, "discord", "", &Invocation{User: bob}).Text)
	assert.Equal(t, "No Discord invite set.", NewCommands(h.relay, CommandOptions{}).Dispatch(ctx, "discord", "", &Invocation{User: bob}).Text)
	assert.Equal(t, "Hello, world!", c.Dispatch(ctx, "hello", "", &Invocation{User: bob}).Text)
}

func TestCommands_Join(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	c := newCommands(h)

	require.NoError(t, c.Join(ctx, "502", "800"))
	sent := h.venue.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "800", sent[0].ChannelID)
	assert.Contains(t, sent[0].Text, "Hello, I am relay.")

	cfg, ok, err := h.guilds.Get(ctx, "502")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, store.ID(""), cfg.ChannelID)
	assert.Equal(t, SetupModel, cfg.Model)

	require.NoError(t, c.Join(ctx, "502", "800"))
	assert.Len(t, h.venue.Sent(), 1)

	require.NoError(t, c.Join(ctx, "503", ""))
	assert.Len(t, h.venue.Sent(), 1)
}
