package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sadeshmukh/discord-ai/internal/providers"
	"github.com/sadeshmukh/discord-ai/internal/render"
	"github.com/sadeshmukh/discord-ai/internal/store"
	"github.com/sadeshmukh/discord-ai/internal/transcript"
	"github.com/sadeshmukh/discord-ai/internal/usage"
	"github.com/sadeshmukh/discord-ai/internal/venue"
)

const (
	// SetupModel and SetupSystem seed a guild configured for the first time.
	SetupModel  = "google|gemini-1.5-flash"
	SetupSystem = "You're a helpful assistant."

	maxSystemLen     = 100
	minContextLength = 1
	maxContextLength = 12

	msgNoPermission = "You do not have permissions to use this command."
	msgGuildOnly    = "This command can only be used in a server."
	msgError        = "There was an error."
)

// Permission gates who may run a command.
type Permission int

const (
	Everyone Permission = iota
	// Moderator requires the manage-guild permission or admin status.
	Moderator
	// Admin requires the user to be listed as a bot admin.
	Admin
)

// OptionKind is the type of a command argument.
type OptionKind int

const (
	OptionString OptionKind = iota
	OptionInt
	OptionBool
)

// Option declares one command argument.
type Option struct {
	Name        string
	Description string
	Kind        OptionKind
	Required    bool
}

// Command is one slash command or subcommand.
type Command struct {
	Name        string
	Sub         string // empty for a top-level command
	Description string
	Options     []Option
	Permission  Permission
	GuildOnly   bool

	run func(ctx context.Context, inv *Invocation) (Response, error)
}

// Path returns "name" or "name sub".
func (c Command) Path() string {
	if c.Sub == "" {
		return c.Name
	}
	return c.Name + " " + c.Sub
}

// Invocation is one command call from the venue.
type Invocation struct {
	GuildID   string
	ChannelID string
	User      venue.User
	// CanManageGuild is the caller's manage-guild permission in GuildID.
	CanManageGuild bool
	// Args holds option values as string, int64 or bool.
	Args map[string]any
}

func (inv *Invocation) String(name string) string {
	s, _ := inv.Args[name].(string)
	return s
}

func (inv *Invocation) Int(name string) (int64, bool) {
	switch v := inv.Args[name].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

func (inv *Invocation) Bool(name string) bool {
	b, _ := inv.Args[name].(bool)
	return b
}

// Response is the command's answer. Ephemeral responses are shown only to
// the caller.
type Response struct {
	Text      string
	Ephemeral bool
}

func private(format string, args ...any) Response {
	return Response{Text: fmt.Sprintf(format, args...), Ephemeral: true}
}

func public(format string, args ...any) Response {
	return Response{Text: fmt.Sprintf(format, args...)}
}

// CommandOptions configure the command surface.
type CommandOptions struct {
	Admins   []string
	Invite   string
	Schedule *usage.ResetScheduler
	Now      func() time.Time
}

// Commands is the slash-command surface over a Relay's state.
type Commands struct {
	relay    *Relay
	admins   []string
	invite   string
	schedule *usage.ResetScheduler
	now      func() time.Time

	commands []Command
}

func NewCommands(r *Relay, opts CommandOptions) *Commands {
	c := &Commands{
		relay:    r,
		admins:   opts.Admins,
		invite:   opts.Invite,
		schedule: opts.Schedule,
		now:      opts.Now,
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.commands = c.build()
	return c
}

// List returns every command in registration order.
func (c *Commands) List() []Command {
	return slices.Clone(c.commands)
}

func (c *Commands) isAdmin(id string) bool {
	return slices.Contains(c.admins, id)
}

// Dispatch runs the command at name/sub for inv. Failures are logged and
// answered with a generic error.
func (c *Commands) Dispatch(ctx context.Context, name, sub string, inv *Invocation) Response {
	idx := slices.IndexFunc(c.commands, func(cmd Command) bool {
		return cmd.Name == name && cmd.Sub == sub
	})
	if idx < 0 {
		slog.Warn("unknown command", "command", name, "sub", sub)
		return private("Unknown command.")
	}
	cmd := c.commands[idx]

	if cmd.GuildOnly && inv.GuildID == "" {
		return private(msgGuildOnly)
	}
	switch cmd.Permission {
	case Moderator:
		if !inv.CanManageGuild && !c.isAdmin(inv.User.ID) {
			return private(msgNoPermission)
		}
	case Admin:
		if !c.isAdmin(inv.User.ID) {
			return private(msgNoPermission)
		}
	}

	resp, err := cmd.run(ctx, inv)
	if err != nil {
		slog.Error("command failed", "command", cmd.Path(), "guild_id", inv.GuildID, "user_id", inv.User.ID, "error", err)
		return private(msgError)
	}
	return resp
}

func (c *Commands) build() []Command {
	return []Command{
		{Name: "hello", Description: "Welcome to the world of AI!", run: c.hello},
		{Name: "about", Description: "About the bot", run: c.about,
			Options: []Option{{Name: "nodiscord", Description: "Leave out the support server invite", Kind: OptionBool}}},
		{Name: "discord", Description: "Invite to the Discord", run: c.discord},
		{Name: "help", Description: "Commands list and token reset time", run: c.help},

		{Name: "setchannel", Description: "Set the channel for the bot to respond in", Permission: Moderator, GuildOnly: true, run: c.setChannel},
		{Name: "disable", Description: "Disable the bot in this server", Permission: Moderator, GuildOnly: true, run: c.disable},
		{Name: "system", Sub: "set", Description: "Set the system message", Permission: Moderator, GuildOnly: true, run: c.setSystem,
			Options: []Option{{Name: "system", Description: "New system message", Kind: OptionString, Required: true}}},
		{Name: "system", Sub: "get", Description: "Get the system message", Permission: Moderator, GuildOnly: true, run: c.getSystem},
		{Name: "contextlength", Sub: "set", Description: "Set the context length", Permission: Moderator, GuildOnly: true, run: c.setContextLength,
			Options: []Option{{Name: "length", Description: "Messages of history to read (1-12)", Kind: OptionInt, Required: true}}},
		{Name: "contextlength", Sub: "get", Description: "Get the context length", Permission: Moderator, GuildOnly: true, run: c.getContextLength},
		{Name: "break", Description: "Send a breakpoint message in the channel", Permission: Moderator, GuildOnly: true, run: c.breakHistory},
		{Name: "toggletts", Description: "Toggle TTS", Permission: Moderator, GuildOnly: true, run: c.toggleTTS},
		{Name: "seebots", Description: "Allow/disallow bots to be responded to", Permission: Moderator, GuildOnly: true, run: c.seeBots},

		{Name: "ignoreme", Description: "Ignore yourself in this channel", GuildOnly: true, run: c.ignoreMe},
		{Name: "unignoreme", Description: "Unignore yourself in this channel", GuildOnly: true, run: c.unignoreMe},
		{Name: "peace", Description: "Disallow pings from the bot for yourself", GuildOnly: true, run: c.peace},
		{Name: "unpeace", Description: "Allow pings from the bot for yourself", GuildOnly: true, run: c.unpeace},

		{Name: "admin", Sub: "bypass", Description: "Toggle token limits for this server", Permission: Admin, GuildOnly: true, run: c.adminBypass},
		{Name: "admin", Sub: "usage", Description: "Show token usage", Permission: Admin, run: c.adminUsage,
			Options: []Option{{Name: "guild_id", Description: "Server to inspect; global totals when empty", Kind: OptionString}}},
		{Name: "admin", Sub: "setlimit", Description: "Set the daily token limit for this server", Permission: Admin, GuildOnly: true, run: c.adminSetLimit,
			Options: []Option{{Name: "limit", Description: "Tokens per day", Kind: OptionInt, Required: true}}},
		{Name: "admin", Sub: "setmodel", Description: "Set the model for this server", Permission: Admin, GuildOnly: true, run: c.adminSetModel,
			Options: []Option{{Name: "model", Description: "provider|model", Kind: OptionString, Required: true}}},
		{Name: "admin", Sub: "listmodels", Description: "List available models", Permission: Admin, run: c.adminListModels},
		{Name: "admin", Sub: "resetusage", Description: "Reset daily usage for every server", Permission: Admin, run: c.adminResetUsage},
		{Name: "admin", Sub: "activetyping", Description: "List channels with a reply in progress", Permission: Admin, run: c.adminActiveTyping},
	}
}

func (c *Commands) update(ctx context.Context, guildID string, fn func(cfg *store.GuildConfig, exists bool) error) (store.GuildConfig, error) {
	return c.relay.guilds.Update(ctx, guildID, fn)
}

func (c *Commands) get(ctx context.Context, guildID string) (store.GuildConfig, error) {
	cfg, _, err := c.relay.guilds.Get(ctx, guildID)
	return cfg, err
}

func (c *Commands) hello(context.Context, *Invocation) (Response, error) {
	return public("Hello, world!"), nil
}

func (c *Commands) about(_ context.Context, inv *Invocation) (Response, error) {
	text := fmt.Sprintf("I am %s. To start, run /help to see available commands.", c.relay.venue.Self().Mention())
	if c.invite != "" && !inv.Bool("nodiscord") {
		text += " Join our Discord server for support and updates: " + c.invite
	}
	return public("%s", text), nil
}

func (c *Commands) discord(context.Context, *Invocation) (Response, error) {
	if c.invite == "" {
		return public("No Discord invite set."), nil
	}
	return public("%s", c.invite), nil
}

// NextReset returns the next scheduled usage reset.
func (c *Commands) NextReset() (time.Time, error) {
	s := c.schedule
	if s == nil {
		var err error
		if s, err = usage.NewResetScheduler(usage.DefaultResetSchedule, nil); err != nil {
			return time.Time{}, err
		}
	}
	return s.Next(c.now())
}

func (c *Commands) help(context.Context, *Invocation) (Response, error) {
	next, err := c.NextReset()
	if err != nil {
		return Response{}, err
	}
	return private(helpText, next.Unix()), nil
}

const helpText = `**[Moderator Only] Commands:**
` + "`/setchannel`" + ` - Set the channel for the bot to respond in
` + "`/disable`" + ` - Disable the bot in this server
` + "`/system set [system]`" + ` - Set the system message
` + "`/system get`" + ` - Get the system message
` + "`/contextlength set [length]`" + ` - Set the context length
` + "`/contextlength get`" + ` - Get the context length
` + "`/break`" + ` - Send a breakpoint message in the channel
` + "`/toggletts`" + ` - Toggle TTS
` + "`/seebots`" + ` - Allow/disallow bots to be responded to
**[User] Commands:**
` + "`/ignoreme`" + ` - The bot will not respond to you or see your messages
` + "`/peace`" + ` - The bot will not ping you
` + "`/unignoreme`" + ` - Unignore you
` + "`/unpeace`" + ` - Unpeace you
**Other Commands:**
` + "`/about`" + ` - About the bot
` + "`/hello`" + ` - Test command
` + "`/discord`" + ` - Invite to the Discord
` + "`/help`" + ` - This message

The bot will next reset tokens at <t:%d:t>.`

// setChannel posts a progress message in the channel and edits it once the
// guild is updated.
func (c *Commands) setChannel(ctx context.Context, inv *Invocation) (Response, error) {
	v := c.relay.venue
	progress, sendErr := v.Send(ctx, inv.ChannelID, "Setting channel...", venue.SendOptions{})
	if sendErr != nil {
		slog.Warn("setchannel progress message failed", "channel_id", inv.ChannelID, "error", sendErr)
	}

	created := false
	_, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, exists bool) error {
		if !exists {
			cfg.Model = SetupModel
			cfg.System = SetupSystem
			created = true
		}
		cfg.ChannelID = store.ID(inv.ChannelID)
		return nil
	})
	if err != nil {
		return Response{}, err
	}

	text := "Channel set!"
	if created {
		text = "Channel set! Defaulting to Gemini. To edit the system message, use `/system set [message]`."
	}
	if sendErr != nil {
		return public("%s", text), nil
	}
	if err := v.Edit(ctx, progress, text); err != nil {
		return Response{}, fmt.Errorf("edit progress message: %w", err)
	}
	return private("Done."), nil
}

func (c *Commands) disable(ctx context.Context, inv *Invocation) (Response, error) {
	_, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.ChannelID = ""
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return public("Disabled bot in this server. Use `/setchannel` to re-enable."), nil
}

func (c *Commands) setSystem(ctx context.Context, inv *Invocation) (Response, error) {
	system := inv.String("system")
	if utf8.RuneCountInString(system) > maxSystemLen {
		return private("System message too long."), nil
	}
	_, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.System = system
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return public("System set: `%s`", system), nil
}

func (c *Commands) getSystem(ctx context.Context, inv *Invocation) (Response, error) {
	cfg, err := c.get(ctx, inv.GuildID)
	if err != nil {
		return Response{}, err
	}
	system := cfg.System
	if system == "" {
		system = c.relay.builder.DefaultSystem
		if system == "" {
			system = transcript.DefaultSystem
		}
	}
	return public("System: `%s`", system), nil
}

func (c *Commands) setContextLength(ctx context.Context, inv *Invocation) (Response, error) {
	n, ok := inv.Int("length")
	if !ok || n < minContextLength || n > maxContextLength {
		return private("Context length must be between %d and %d.", minContextLength, maxContextLength), nil
	}
	_, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.ContextLength = int(n)
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return private("Set context length to %d", n), nil
}

func (c *Commands) getContextLength(ctx context.Context, inv *Invocation) (Response, error) {
	cfg, err := c.get(ctx, inv.GuildID)
	if err != nil {
		return Response{}, err
	}
	return private("Context length: %d", cfg.ContextLength), nil
}

func (c *Commands) breakHistory(ctx context.Context, inv *Invocation) (Response, error) {
	cfg, err := c.get(ctx, inv.GuildID)
	if err != nil {
		return Response{}, err
	}
	if cfg.ChannelID == "" {
		return private("Channel not set."), nil
	}
	if _, err := c.relay.venue.Send(ctx, string(cfg.ChannelID), transcript.Breakpoint, venue.SendOptions{}); err != nil {
		return Response{}, fmt.Errorf("send breakpoint: %w", err)
	}
	return private("Created BREAKPOINT."), nil
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}

func (c *Commands) toggleTTS(ctx context.Context, inv *Invocation) (Response, error) {
	cfg, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.TTS = !cfg.TTS
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return private("TTS is now %s", enabled(cfg.TTS)), nil
}

func (c *Commands) seeBots(ctx context.Context, inv *Invocation) (Response, error) {
	cfg, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.SeeBots = !cfg.SeeBots
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return private("See bots is now %s", enabled(cfg.SeeBots)), nil
}

func (c *Commands) ignoreMe(ctx context.Context, inv *Invocation) (Response, error) {
	_, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.IgnoredUsers = cfg.IgnoredUsers.With(inv.User.ID)
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return private("Ignoring you in this channel."), nil
}

func (c *Commands) unignoreMe(ctx context.Context, inv *Invocation) (Response, error) {
	_, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.IgnoredUsers = cfg.IgnoredUsers.Without(inv.User.ID)
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return private("Unignoring you in this channel."), nil
}

func (c *Commands) peace(ctx context.Context, inv *Invocation) (Response, error) {
	_, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.NoPingUsers = cfg.WithNoPing(inv.User.ID, inv.User.Display())
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return private("You are now free from pings (from the bot)."), nil
}

func (c *Commands) unpeace(ctx context.Context, inv *Invocation) (Response, error) {
	_, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.NoPingUsers = cfg.WithoutNoPing(inv.User.ID)
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return private("You are no longer free from pings (from the bot)."), nil
}

func (c *Commands) adminBypass(ctx context.Context, inv *Invocation) (Response, error) {
	cfg, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.BypassLimits = !cfg.BypassLimits
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	if cfg.BypassLimits {
		return public("Limits are now bypassed."), nil
	}
	return private("Limits are no longer bypassed."), nil
}

func (c *Commands) adminUsage(ctx context.Context, inv *Invocation) (Response, error) {
	guildID := strings.TrimSpace(inv.String("guild_id"))
	if guildID == "" {
		sum, err := c.relay.ledger.Totals(ctx)
		if err != nil {
			return Response{}, err
		}
		return private("Global daily usage: %d | Global total usage: %d", sum.Today, sum.Total), nil
	}
	cfg, ok, err := c.relay.guilds.Get(ctx, guildID)
	if err != nil {
		return Response{}, err
	}
	if !ok {
		return private("No usage recorded for %s.", guildID), nil
	}
	return private("Today's usage: %d | Total usage: %d", cfg.Usage.Today, cfg.Usage.Total), nil
}

func (c *Commands) adminSetLimit(ctx context.Context, inv *Invocation) (Response, error) {
	limit, ok := inv.Int("limit")
	if !ok || limit < 1 {
		return private("Token limit must be at least 1."), nil
	}
	_, err := c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.TokenLimit = limit
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return public("Set token limit to %d", limit), nil
}

func (c *Commands) adminSetModel(ctx context.Context, inv *Invocation) (Response, error) {
	id := strings.TrimSpace(inv.String("model"))
	provider, model, err := c.relay.dispatcher.Registry().ResolveModel(id)
	if errors.Is(err, providers.ErrUnknownModel) {
		return public("Model %s not available.", id), nil
	}
	if err != nil {
		return Response{}, err
	}
	qualified := provider + providers.ModelSeparator + model
	_, err = c.update(ctx, inv.GuildID, func(cfg *store.GuildConfig, _ bool) error {
		cfg.Model = qualified
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return public("Set model to %s", qualified), nil
}

func (c *Commands) adminListModels(context.Context, *Invocation) (Response, error) {
	models := c.relay.dispatcher.Registry().ListModels("")
	return public("%s", modelList(models, render.HardLimit)), nil
}

// modelList joins models into one message of at most limit characters,
// ending with a count of the models that did not fit.
func modelList(models []string, limit int) string {
	const prefix = "Available models: "
	var sb strings.Builder
	sb.WriteString(prefix)
	for i, m := range models {
		sep := ""
		if i > 0 {
			sep = ", "
		}
		// room for this model, plus a tail for any after it
		need := utf8.RuneCountInString(sep + m)
		if rest := len(models) - i - 1; rest > 0 {
			need += len(fmt.Sprintf(" (and %d more)", rest))
		}
		if utf8.RuneCountInString(sb.String())+need > limit {
			fmt.Fprintf(&sb, " (and %d more)", len(models)-i)
			break
		}
		sb.WriteString(sep)
		sb.WriteString(m)
	}
	return sb.String()
}

func (c *Commands) adminResetUsage(ctx context.Context, _ *Invocation) (Response, error) {
	n, err := c.relay.ledger.ResetDaily(ctx)
	if err != nil {
		return Response{}, err
	}
	slog.Info("daily usage reset by admin", "guilds", n)
	return public("Reset all daily usage."), nil
}

func (c *Commands) adminActiveTyping(context.Context, *Invocation) (Response, error) {
	channels := c.relay.InFlight()
	slices.Sort(channels)
	return private("Currently typing in channels: %v", channels), nil
}

// Join seeds the config of a newly joined guild and posts a welcome message
// in welcomeChannelID when one is given.
func (c *Commands) Join(ctx context.Context, guildID, welcomeChannelID string) error {
	_, err := c.update(ctx, guildID, func(cfg *store.GuildConfig, exists bool) error {
		if exists {
			return errAlreadyKnown
		}
		cfg.Model = SetupModel
		cfg.System = SetupSystem
		return nil
	})
	if errors.Is(err, errAlreadyKnown) {
		return nil
	}
	if err != nil {
		return err
	}
	if welcomeChannelID == "" {
		slog.Warn("no channel to send welcome message in", "guild_id", guildID)
		return nil
	}
	text := fmt.Sprintf("Hello, I am %s. To set me up, use the `/setchannel` command in the channel you want me to respond in.", c.relay.venue.Self().Name)
	if _, err := c.relay.venue.Send(ctx, welcomeChannelID, text, venue.SendOptions{}); err != nil {
		return fmt.Errorf("send welcome: %w", err)
	}
	return nil
}

var errAlreadyKnown = errors.New("guild already configured")
