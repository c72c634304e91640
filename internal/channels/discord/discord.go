package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/sadeshmukh/discord-ai/internal/config"
	"github.com/sadeshmukh/discord-ai/internal/relay"
	"github.com/sadeshmukh/discord-ai/internal/venue"
)

const (
	// maxFetch is the most messages Discord returns per history request.
	maxFetch = 100

	defaultMessageCache = 100
)

// JoinHandler is called when the bot is added to a guild after startup.
// welcomeChannelID is empty when no channel accepts the bot's messages.
type JoinHandler func(ctx context.Context, guildID, welcomeChannelID string) error

// Channel connects to Discord via the Bot API using gateway events and
// implements venue.Venue.
type Channel struct {
	session *discordgo.Session
	config  config.DiscordConfig

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	self      venue.User
	onMessage venue.MessageHandler
	onEdit    venue.EditHandler
	onDelete  venue.DeleteHandler
	onJoin    JoinHandler
	commands  *relay.Commands
	known     map[string]bool // guild IDs present at the last Ready
}

var _ venue.Venue = (*Channel)(nil)

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig) (*Channel, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	// The state cache keeps message content so edits and deletes carry
	// the original text.
	session.StateEnabled = true
	session.State.MaxMessageCount = cfg.MessageCache
	if session.State.MaxMessageCount <= 0 {
		session.State.MaxMessageCount = defaultMessageCache
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Channel{
		session: session,
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
		known:   make(map[string]bool),
	}, nil
}

// SetCommands routes slash-command interactions to cmds and registers them
// on ready.
func (c *Channel) SetCommands(cmds *relay.Commands) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = cmds
}

// OnGuildJoin sets the handler for guilds joined after startup.
func (c *Channel) OnGuildJoin(h JoinHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onJoin = h
}

func (c *Channel) OnMessage(h venue.MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = h
}

func (c *Channel) OnMessageEdited(h venue.EditHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEdit = h
}

func (c *Channel) OnMessageDeleted(h venue.DeleteHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDelete = h
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleReady)
	c.session.AddHandler(c.handleGuildCreate)
	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleMessageUpdate)
	c.session.AddHandler(c.handleMessageDelete)
	c.session.AddHandler(c.handleInteraction)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	// Fetch bot identity
	user, err := c.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.setSelf(user)

	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.cancel()
	return c.session.Close()
}

func (c *Channel) setSelf(u *discordgo.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.self = toUser(u, nil)
}

// Self returns the bot's identity. Empty until connected.
func (c *Channel) Self() venue.User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.self
}

// FetchRecent returns up to limit messages from channelID, newest first.
func (c *Channel) FetchRecent(ctx context.Context, channelID string, limit int) ([]venue.Message, error) {
	if limit <= 0 {
		return nil, nil
	}
	if limit > maxFetch {
		limit = maxFetch
	}
	msgs, err := c.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("fetch discord history: %w", err)
	}
	guildID := c.guildOf(channelID)
	selfID := c.Self().ID
	out := make([]venue.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessage(m, selfID, guildID, c.member))
	}
	return out, nil
}

// member returns the state-cached guild member, or nil.
func (c *Channel) member(guildID, userID string) *discordgo.Member {
	m, err := c.session.State.Member(guildID, userID)
	if err != nil {
		return nil
	}
	return m
}

func (c *Channel) guildOf(channelID string) string {
	ch, err := c.session.State.Channel(channelID)
	if err != nil {
		return ""
	}
	return ch.GuildID
}

// Send posts text in channelID. Only user mentions resolve to pings.
func (c *Channel) Send(ctx context.Context, channelID, text string, opts venue.SendOptions) (venue.Handle, error) {
	return c.send(ctx, channelID, &discordgo.MessageSend{
		Content: text,
		TTS:     opts.TTS,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	})
}

// Reply posts text as a reply to m, pinging its author when MentionAuthor is set.
func (c *Channel) Reply(ctx context.Context, m venue.Message, text string, opts venue.SendOptions) (venue.Handle, error) {
	return c.send(ctx, m.ChannelID, &discordgo.MessageSend{
		Content: text,
		TTS:     opts.TTS,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse:       []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
			RepliedUser: opts.MentionAuthor,
		},
		Reference: &discordgo.MessageReference{
			MessageID: m.ID,
			ChannelID: m.ChannelID,
			GuildID:   m.GuildID,
		},
	})
}

func (c *Channel) send(ctx context.Context, channelID string, data *discordgo.MessageSend) (venue.Handle, error) {
	if channelID == "" {
		return venue.Handle{}, fmt.Errorf("empty channel ID for discord send")
	}
	msg, err := c.session.ChannelMessageSendComplex(channelID, data, discordgo.WithContext(ctx))
	if err != nil {
		return venue.Handle{}, fmt.Errorf("send discord message: %w", err)
	}
	return venue.Handle{ChannelID: msg.ChannelID, MessageID: msg.ID}, nil
}

// Edit replaces the content of a message the bot sent.
func (c *Channel) Edit(ctx context.Context, h venue.Handle, text string) error {
	if _, err := c.session.ChannelMessageEdit(h.ChannelID, h.MessageID, text, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("edit discord message: %w", err)
	}
	return nil
}

// Typing shows the typing indicator in channelID for about ten seconds.
func (c *Channel) Typing(ctx context.Context, channelID string) error {
	if err := c.session.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("discord typing: %w", err)
	}
	return nil
}

// handleReady records the guilds present at connect time so later
// GuildCreate events for them are not mistaken for joins.
func (c *Channel) handleReady(s *discordgo.Session, r *discordgo.Ready) {
	c.setSelf(r.User)

	c.mu.Lock()
	for _, g := range r.Guilds {
		c.known[g.ID] = true
	}
	cmds := c.commands
	c.mu.Unlock()

	slog.Info("discord ready", "username", r.User.Username, "guilds", len(r.Guilds))

	if cmds == nil || !c.config.ShouldRegisterCommands() {
		return
	}
	registered, err := s.ApplicationCommandBulkOverwrite(r.User.ID, "", appCommands(cmds.List()), discordgo.WithContext(c.ctx))
	if err != nil {
		slog.Error("discord command registration failed", "error", err)
		return
	}
	slog.Info("discord commands registered", "count", len(registered))
}

func (c *Channel) handleGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil || g.Unavailable {
		return
	}
	c.mu.Lock()
	joined := !c.known[g.ID]
	c.known[g.ID] = true
	onJoin := c.onJoin
	c.mu.Unlock()

	if !joined || onJoin == nil {
		return
	}
	welcome := c.welcomeChannel(g.Guild)
	slog.Info("discord guild joined", "guild_id", g.ID, "name", g.Name, "welcome_channel", welcome)
	if err := onJoin(c.ctx, g.ID, welcome); err != nil {
		slog.Error("discord guild join failed", "guild_id", g.ID, "error", err)
	}
}

// welcomeChannel picks the guild's system channel, or else the first text
// channel the bot can post in.
func (c *Channel) welcomeChannel(g *discordgo.Guild) string {
	selfID := c.Self().ID
	canSend := func(channelID string) bool {
		perms, err := c.session.State.UserChannelPermissions(selfID, channelID)
		return err == nil && perms&discordgo.PermissionSendMessages != 0
	}
	if g.SystemChannelID != "" && canSend(g.SystemChannelID) {
		return g.SystemChannelID
	}
	for _, ch := range g.Channels {
		if ch.Type == discordgo.ChannelTypeGuildText && canSend(ch.ID) {
			return ch.ID
		}
	}
	return ""
}

func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Message == nil || m.Author == nil {
		return
	}
	c.mu.RLock()
	h := c.onMessage
	selfID := c.self.ID
	c.mu.RUnlock()
	if h == nil {
		return
	}
	msg := toMessage(m.Message, selfID, "", c.member)
	slog.Debug("discord message received",
		"message_id", msg.ID,
		"channel_id", msg.ChannelID,
		"guild_id", msg.GuildID,
		"user_id", msg.Author.ID,
	)
	h(c.ctx, msg)
}

// handleMessageUpdate forwards content edits. The after message may be
// partial, so missing fields are taken from the cached original.
func (c *Channel) handleMessageUpdate(_ *discordgo.Session, m *discordgo.MessageUpdate) {
	if m.Message == nil {
		return
	}
	c.mu.RLock()
	h := c.onEdit
	selfID := c.self.ID
	c.mu.RUnlock()
	if h == nil {
		return
	}

	after := toMessage(m.Message, selfID, "", c.member)
	var before venue.Message
	if m.BeforeUpdate != nil {
		before = toMessage(m.BeforeUpdate, selfID, m.GuildID, c.member)
		if m.Author == nil {
			after.Author = before.Author
		}
	}
	if after.Author.ID == "" {
		return
	}
	h(c.ctx, before, after)
}

func (c *Channel) handleMessageDelete(_ *discordgo.Session, m *discordgo.MessageDelete) {
	if m.Message == nil {
		return
	}
	c.mu.RLock()
	h := c.onDelete
	selfID := c.self.ID
	c.mu.RUnlock()
	if h == nil {
		return
	}

	msg := toMessage(m.Message, selfID, "", c.member)
	if m.BeforeDelete != nil {
		msg = toMessage(m.BeforeDelete, selfID, m.GuildID, c.member)
	}
	h(c.ctx, msg)
}

func (c *Channel) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	c.mu.RLock()
	cmds := c.commands
	c.mu.RUnlock()
	if cmds == nil {
		return
	}

	name, sub, args := commandPath(i.ApplicationCommandData())
	inv := &relay.Invocation{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		Args:      args,
	}
	switch {
	case i.Member != nil:
		inv.User = toUser(i.Member.User, i.Member)
		inv.CanManageGuild = i.Member.Permissions&discordgo.PermissionManageGuild != 0
	case i.User != nil:
		inv.User = toUser(i.User, nil)
	}

	slog.Debug("discord command received", "command", name, "sub", sub, "guild_id", inv.GuildID, "user_id", inv.User.ID)
	resp := cmds.Dispatch(c.ctx, name, sub, inv)

	data := &discordgo.InteractionResponseData{
		Content: resp.Text,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}
	if resp.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}, discordgo.WithContext(c.ctx))
	if err != nil {
		slog.Warn("discord interaction response failed", "command", name, "sub", sub, "error", err)
	}
}
