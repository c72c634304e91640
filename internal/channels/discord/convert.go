package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/sadeshmukh/discord-ai/internal/relay"
	"github.com/sadeshmukh/discord-ai/internal/venue"
)

// toUser converts a Discord user. member may be nil.
func toUser(u *discordgo.User, member *discordgo.Member) venue.User {
	if u == nil {
		return venue.User{}
	}
	return venue.User{
		ID:          u.ID,
		Name:        u.Username,
		DisplayName: resolveDisplayName(u, member),
		Bot:         u.Bot,
	}
}

// resolveDisplayName returns the best available display name for a Discord user.
// Priority: server nickname > global display name > username.
func resolveDisplayName(u *discordgo.User, member *discordgo.Member) string {
	if member != nil && member.Nick != "" {
		return member.Nick
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

// memberFunc looks up a cached guild member. It returns nil when unknown.
type memberFunc func(guildID, userID string) *discordgo.Member

// toMessage converts a Discord message. guildID fills in messages fetched
// over REST, which arrive without one. members, when non-nil, supplies
// nicknames for mentioned users.
func toMessage(m *discordgo.Message, selfID, guildID string, members memberFunc) venue.Message {
	out := venue.Message{
		ID:        m.ID,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
		Author:    toUser(m.Author, m.Member),
		Content:   m.Content,
		Timestamp: m.Timestamp,
	}
	if out.GuildID == "" {
		out.GuildID = guildID
	}
	for _, u := range m.Mentions {
		if u == nil {
			continue
		}
		var member *discordgo.Member
		if members != nil && out.GuildID != "" {
			member = members(out.GuildID, u.ID)
		}
		out.Mentions = append(out.Mentions, toUser(u, member))
		if selfID != "" && u.ID == selfID {
			out.MentionsSelf = true
		}
	}
	return out
}

var groupDescriptions = map[string]string{
	"system":        "View or change the system message",
	"contextlength": "View or change how many messages the bot reads",
	"admin":         "Bot administration",
}

var optionTypes = map[relay.OptionKind]discordgo.ApplicationCommandOptionType{
	relay.OptionString: discordgo.ApplicationCommandOptionString,
	relay.OptionInt:    discordgo.ApplicationCommandOptionInteger,
	relay.OptionBool:   discordgo.ApplicationCommandOptionBoolean,
}

func toOptions(opts []relay.Option) []*discordgo.ApplicationCommandOption {
	var out []*discordgo.ApplicationCommandOption
	for _, o := range opts {
		out = append(out, &discordgo.ApplicationCommandOption{
			Type:        optionTypes[o.Kind],
			Name:        o.Name,
			Description: o.Description,
			Required:    o.Required,
		})
	}
	return out
}

// appCommands folds the command list into Discord application commands,
// grouping entries that share a name under subcommands.
func appCommands(cmds []relay.Command) []*discordgo.ApplicationCommand {
	var out []*discordgo.ApplicationCommand
	groups := make(map[string]*discordgo.ApplicationCommand)
	guildOnly := make(map[string]bool)

	for _, cmd := range cmds {
		if cmd.Sub == "" {
			out = append(out, &discordgo.ApplicationCommand{
				Name:         cmd.Name,
				Description:  cmd.Description,
				Options:      toOptions(cmd.Options),
				DMPermission: dmPermission(!cmd.GuildOnly),
			})
			continue
		}
		g, ok := groups[cmd.Name]
		if !ok {
			desc := groupDescriptions[cmd.Name]
			if desc == "" {
				desc = cmd.Name
			}
			g = &discordgo.ApplicationCommand{Name: cmd.Name, Description: desc}
			groups[cmd.Name] = g
			guildOnly[cmd.Name] = true
			out = append(out, g)
		}
		g.Options = append(g.Options, &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        cmd.Sub,
			Description: cmd.Description,
			Options:     toOptions(cmd.Options),
		})
		guildOnly[cmd.Name] = guildOnly[cmd.Name] && cmd.GuildOnly
	}
	for name, g := range groups {
		g.DMPermission = dmPermission(!guildOnly[name])
	}
	return out
}

func dmPermission(allowed bool) *bool { return &allowed }

// commandPath extracts the command name, subcommand and argument values
// from an application command interaction.
func commandPath(data discordgo.ApplicationCommandInteractionData) (name, sub string, args map[string]any) {
	name = data.Name
	args = make(map[string]any)
	opts := data.Options
	if len(opts) == 1 && opts[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		sub = opts[0].Name
		opts = opts[0].Options
	}
	for _, o := range opts {
		switch o.Type {
		case discordgo.ApplicationCommandOptionString:
			args[o.Name] = o.StringValue()
		case discordgo.ApplicationCommandOptionInteger:
			args[o.Name] = o.IntValue()
		case discordgo.ApplicationCommandOptionBoolean:
			args[o.Name] = o.BoolValue()
		}
	}
	return name, sub, args
}
