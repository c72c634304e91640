package discord

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadeshmukh/discord-ai/internal/config"
	"github.com/sadeshmukh/discord-ai/internal/relay"
	"github.com/sadeshmukh/discord-ai/internal/venue"
)

func newTestChannel(t *testing.T) *Channel {
	t.Helper()
	c, err := New(config.DiscordConfig{Token: "test-token", MessageCache: 10})
	require.NoError(t, err)
	c.setSelf(&discordgo.User{ID: "900", Username: "relaybot"})
	t.Cleanup(c.cancel)
	return c
}

func TestNewRequiresToken(t *testing.T) {
	_, err := New(config.DiscordConfig{})
	require.Error(t, err)
}

func TestNewMessageCache(t *testing.T) {
	c := newTestChannel(t)
	assert.Equal(t, 10, c.session.State.MaxMessageCount)

	d, err := New(config.DiscordConfig{Token: "x"})
	require.NoError(t, err)
	defer d.cancel()
	assert.Equal(t, defaultMessageCache, d.session.State.MaxMessageCount)
}

func TestResolveDisplayName(t *testing.T) {
	u := &discordgo.User{ID: "1", Username: "alice", GlobalName: "Alice A"}
	assert.Equal(t, "Ally", resolveDisplayName(u, &discordgo.Member{Nick: "Ally"}))
	assert.Equal(t, "Alice A", resolveDisplayName(u, &discordgo.Member{}))
	assert.Equal(t, "bob", resolveDisplayName(&discordgo.User{Username: "bob"}, nil))
}

func TestToMessage(t *testing.T) {
	ts := time.Date(2024, 9, 5, 10, 0, 0, 0, time.UTC)
	m := &discordgo.Message{
		ID:        "1",
		ChannelID: "600",
		Content:   "hi <@900> and <@102>",
		Timestamp: ts,
		Author:    &discordgo.User{ID: "101", Username: "alice", GlobalName: "Alice"},
		Member:    &discordgo.Member{Nick: "Al"},
		Mentions: []*discordgo.User{
			{ID: "900", Username: "relaybot", Bot: true},
			{ID: "102", Username: "bob"},
			nil,
		},
	}

	got := toMessage(m, "900", "500", nil)
	want := venue.Message{
		ID:        "1",
		ChannelID: "600",
		GuildID:   "500",
		Author:    venue.User{ID: "101", Name: "alice", DisplayName: "Al"},
		Content:   "hi <@900> and <@102>",
		Timestamp: ts,
		Mentions: []venue.User{
			{ID: "900", Name: "relaybot", DisplayName: "relaybot", Bot: true},
			{ID: "102", Name: "bob", DisplayName: "bob"},
		},
		MentionsSelf: true,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("toMessage mismatch (-want +got):\n%s", diff)
	}

	m.GuildID = "777"
	assert.Equal(t, "777", toMessage(m, "", "500", nil).GuildID)
	assert.False(t, toMessage(m, "", "", nil).MentionsSelf)
}

func TestToMessageMentionNicknames(t *testing.T) {
	c := newTestChannel(t)
	require.NoError(t, c.session.State.GuildAdd(&discordgo.Guild{ID: "500"}))
	require.NoError(t, c.session.State.MemberAdd(&discordgo.Member{
		GuildID: "500",
		User:    &discordgo.User{ID: "102", Username: "bob"},
		Nick:    "Bobby",
	}))

	m := &discordgo.Message{
		ID:        "1",
		ChannelID: "600",
		GuildID:   "500",
		Author:    &discordgo.User{ID: "101", Username: "alice"},
		Content:   "<@102> <@103>",
		Mentions: []*discordgo.User{
			{ID: "102", Username: "bob"},
			{ID: "103", Username: "carol", GlobalName: "Carol"},
		},
	}
	got := toMessage(m, "900", "", c.member)
	require.Len(t, got.Mentions, 2)
	assert.Equal(t, "Bobby", got.Mentions[0].DisplayName)
	assert.Equal(t, "Carol", got.Mentions[1].DisplayName)
}

func TestAppCommandsGroupsSubcommands(t *testing.T) {
	cmds := []relay.Command{
		{Name: "hello", Description: "Say hi"},
		{Name: "system", Sub: "set", Description: "Set it", GuildOnly: true,
			Options: []relay.Option{{Name: "system", Description: "text", Kind: relay.OptionString, Required: true}}},
		{Name: "system", Sub: "get", Description: "Get it", GuildOnly: true},
		{Name: "admin", Sub: "usage", Description: "Usage",
			Options: []relay.Option{{Name: "guild_id", Kind: relay.OptionString}}},
		{Name: "admin", Sub: "setlimit", Description: "Limit", GuildOnly: true,
			Options: []relay.Option{{Name: "limit", Kind: relay.OptionInt, Required: true}}},
		{Name: "about", Description: "About",
			Options: []relay.Option{{Name: "nodiscord", Kind: relay.OptionBool}}},
	}

	got := appCommands(cmds)
	require.Len(t, got, 4)

	names := []string{got[0].Name, got[1].Name, got[2].Name, got[3].Name}
	assert.Equal(t, []string{"hello", "system", "admin", "about"}, names)

	system := got[1]
	assert.Equal(t, groupDescriptions["system"], system.Description)
	require.Len(t, system.Options, 2)
	assert.Equal(t, discordgo.ApplicationCommandOptionSubCommand, system.Options[0].Type)
	assert.Equal(t, "set", system.Options[0].Name)
	require.Len(t, system.Options[0].Options, 1)
	assert.Equal(t, discordgo.ApplicationCommandOptionString, system.Options[0].Options[0].Type)
	assert.True(t, system.Options[0].Options[0].Required)
	assert.False(t, *system.DMPermission)

	admin := got[2]
	assert.True(t, *admin.DMPermission, "a group with any DM-capable subcommand stays visible in DMs")
	assert.Equal(t, discordgo.ApplicationCommandOptionInteger, admin.Options[1].Options[0].Type)

	assert.True(t, *got[0].DMPermission)
	assert.Equal(t, discordgo.ApplicationCommandOptionBoolean, got[3].Options[0].Type)
}

func TestCommandPath(t *testing.T) {
	tests := []struct {
		name     string
		data     discordgo.ApplicationCommandInteractionData
		wantName string
		wantSub  string
		wantArgs map[string]any
	}{
		{
			name:     "top level",
			data:     discordgo.ApplicationCommandInteractionData{Name: "hello"},
			wantName: "hello",
			wantArgs: map[string]any{},
		},
		{
			name: "top level with option",
			data: discordgo.ApplicationCommandInteractionData{Name: "about", Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "nodiscord", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
			}},
			wantName: "about",
			wantArgs: map[string]any{"nodiscord": true},
		},
		{
			name: "subcommand with int",
			data: discordgo.ApplicationCommandInteractionData{Name: "contextlength", Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "set", Type: discordgo.ApplicationCommandOptionSubCommand, Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "length", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(7)},
				}},
			}},
			wantName: "contextlength",
			wantSub:  "set",
			wantArgs: map[string]any{"length": int64(7)},
		},
		{
			name: "subcommand with string",
			data: discordgo.ApplicationCommandInteractionData{Name: "admin", Options: []*discordgo.ApplicationCommandInteractionDataOption{
				{Name: "setmodel", Type: discordgo.ApplicationCommandOptionSubCommand, Options: []*discordgo.ApplicationCommandInteractionDataOption{
					{Name: "model", Type: discordgo.ApplicationCommandOptionString, Value: "openai|gpt-4o"},
				}},
			}},
			wantName: "admin",
			wantSub:  "setmodel",
			wantArgs: map[string]any{"model": "openai|gpt-4o"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, sub, args := commandPath(tt.data)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantSub, sub)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestHandleMessageForwards(t *testing.T) {
	c := newTestChannel(t)
	var got []venue.Message
	c.OnMessage(func(_ context.Context, m venue.Message) { got = append(got, m) })

	c.handleMessage(nil, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID: "1", ChannelID: "600", GuildID: "500", Content: "hello",
		Author:   &discordgo.User{ID: "101", Username: "alice"},
		Mentions: []*discordgo.User{{ID: "900"}},
	}})
	// system messages without an author are dropped
	c.handleMessage(nil, &discordgo.MessageCreate{Message: &discordgo.Message{ID: "2", ChannelID: "600"}})

	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Content)
	assert.True(t, got[0].MentionsSelf)
}

func TestHandleMessageUpdateUsesCachedBefore(t *testing.T) {
	c := newTestChannel(t)
	var before, after venue.Message
	calls := 0
	c.OnMessageEdited(func(_ context.Context, b, a venue.Message) {
		calls++
		before, after = b, a
	})

	author := &discordgo.User{ID: "101", Username: "alice"}
	c.handleMessageUpdate(nil, &discordgo.MessageUpdate{
		Message:      &discordgo.Message{ID: "1", ChannelID: "600", GuildID: "500", Content: "new"},
		BeforeUpdate: &discordgo.Message{ID: "1", ChannelID: "600", Content: "old", Author: author},
	})
	require.Equal(t, 1, calls)
	assert.Equal(t, "old", before.Content)
	assert.Equal(t, "500", before.GuildID)
	assert.Equal(t, "new", after.Content)
	assert.Equal(t, "101", after.Author.ID)

	// uncached and authorless: nothing to attribute the edit to
	c.handleMessageUpdate(nil, &discordgo.MessageUpdate{
		Message: &discordgo.Message{ID: "2", ChannelID: "600", GuildID: "500", Content: "x"},
	})
	assert.Equal(t, 1, calls)
}

func TestHandleMessageDeletePrefersCachedCopy(t *testing.T) {
	c := newTestChannel(t)
	var got []venue.Message
	c.OnMessageDeleted(func(_ context.Context, m venue.Message) { got = append(got, m) })

	c.handleMessageDelete(nil, &discordgo.MessageDelete{
		Message: &discordgo.Message{ID: "1", ChannelID: "600", GuildID: "500"},
		BeforeDelete: &discordgo.Message{ID: "1", ChannelID: "600", Content: "gone",
			Author: &discordgo.User{ID: "101", Username: "alice"}},
	})
	c.handleMessageDelete(nil, &discordgo.MessageDelete{
		Message: &discordgo.Message{ID: "2", ChannelID: "600", GuildID: "500"},
	})

	require.Len(t, got, 2)
	assert.Equal(t, "gone", got[0].Content)
	assert.Equal(t, "500", got[0].GuildID)
	assert.Equal(t, "101", got[0].Author.ID)
	assert.Equal(t, "2", got[1].ID)
	assert.Empty(t, got[1].Author.ID)
}

func TestGuildCreateAfterReadyIsAJoin(t *testing.T) {
	c := newTestChannel(t)
	var joined []string
	c.OnGuildJoin(func(_ context.Context, guildID, welcome string) error {
		joined = append(joined, guildID+":"+welcome)
		return nil
	})

	c.handleReady(nil, &discordgo.Ready{
		User:   &discordgo.User{ID: "900", Username: "relaybot"},
		Guilds: []*discordgo.Guild{{ID: "500"}},
	})
	c.handleGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "500"}})
	c.handleGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "501", Unavailable: true}})
	c.handleGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "502", Name: "new"}})
	c.handleGuildCreate(nil, &discordgo.GuildCreate{Guild: &discordgo.Guild{ID: "502", Name: "new"}})

	// no channel in the state cache accepts messages, so no welcome channel
	assert.Equal(t, []string{"502:"}, joined)
	assert.Equal(t, "relaybot", c.Self().Name)
}
