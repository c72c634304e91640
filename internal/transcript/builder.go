// Package transcript turns a window of venue messages into a role-tagged
// provider transcript.
package transcript

import (
	"errors"
	"strings"

	"github.com/sadeshmukh/discord-ai/internal/mention"
	"github.com/sadeshmukh/discord-ai/internal/providers"
	"github.com/sadeshmukh/discord-ai/internal/venue"
)

const (
	// Breakpoint is the message content that cuts off older context.
	Breakpoint = "-- BREAK --"
	// EndToken terminates every entry; providers use it as a stop sequence.
	EndToken = "<END>"

	DefaultSystem = "You are an assistant."

	exampleUser = "sample.username123"
)

// ErrNotEnoughHistory means there is nothing for the relay to respond to.
var ErrNotEnoughHistory = errors.New("not enough history")

// Input is one build request.
type Input struct {
	// History is the latest channel window, newest first.
	History []venue.Message
	// Invoker is the message that triggered the run.
	Invoker venue.Message
	Self    venue.User

	IgnoredIDs []string
	SeeBots    bool
	// System is the guild's prompt; empty uses the builder default.
	System string
}

// Transcript is a built conversation plus the names seen while building it.
type Transcript struct {
	Messages []providers.Message
	Names    *mention.Table
}

// Builder builds transcripts. The zero value uses DefaultSystem.
type Builder struct {
	DefaultSystem string
}

// Build assembles the transcript for in. The result runs
// [system, example reply, example query, oldest … newest] with no two
// adjacent entries sharing a role.
func (b *Builder) Build(in Input) (*Transcript, error) {
	if len(in.History) < 2 {
		return nil, ErrNotEnoughHistory
	}

	ignored := make(map[string]struct{}, len(in.IgnoredIDs))
	for _, id := range in.IgnoredIDs {
		ignored[id] = struct{}{}
	}

	names := mention.NewTable()
	names.Alias(in.Self.ID, in.Self.Name)
	if in.Invoker.Author.ID != in.Self.ID {
		names.Add(in.Invoker.Author.ID, in.Invoker.Author.Name, in.Invoker.Author.Display())
	}

	// newest first until the final reverse
	var entries []providers.Message
	for _, m := range in.History {
		if _, skip := ignored[m.Author.ID]; skip {
			continue
		}
		if m.Content == Breakpoint {
			break
		}

		for _, u := range m.Mentions {
			if u.ID != in.Self.ID {
				names.Add(u.ID, u.Name, u.Display())
			}
		}

		author, content := m.Author, m.Content
		if id, rest, ok := parseAnnotation(content); ok {
			author, content = resolveAuthor(id, m, in.Self, names), rest
		}
		if author.ID != in.Self.ID {
			names.Add(author.ID, author.Name, author.Display())
		}

		entries = append(entries, providers.Message{
			Role:    role(author, in.Self, in.SeeBots),
			Content: "<@" + author.Name + ">: " + names.ToNames(content) + " " + EndToken,
		})
	}
	if len(entries) == 0 {
		return nil, ErrNotEnoughHistory
	}

	out := make([]providers.Message, 0, len(entries)+3)
	out = append(out,
		providers.Message{Role: providers.RoleSystem, Content: b.systemEntry(in, names)},
		providers.Message{Role: providers.RoleAssistant, Content: "<@" + in.Self.Name + ">: Example response! " + EndToken},
		providers.Message{Role: providers.RoleUser, Content: "<@" + exampleUser + ">: Example query " + EndToken},
	)
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	// Merging after the reverse keeps merged content in chronological order.
	out = append(out[:1], merge(out[1:])...)

	return &Transcript{Messages: out, Names: names}, nil
}

func (b *Builder) systemEntry(in Input, names *mention.Table) string {
	base := in.System
	if base == "" {
		base = b.DefaultSystem
	}
	if base == "" {
		base = DefaultSystem
	}

	var sb strings.Builder
	sb.WriteString("SYSTEM: ")
	sb.WriteString(base)
	sb.WriteString("\n\nYour name is ")
	sb.WriteString(in.Self.Name)
	sb.WriteString(". Refer to users by their Display Name, not their mention username.")
	for _, n := range names.Names() {
		sb.WriteString("\n")
		sb.WriteString(n)
		sb.WriteString(" is displayed as ")
		sb.WriteString(names.Display(n))
	}
	sb.WriteString(" ")
	sb.WriteString(EndToken)
	return sb.String()
}

// resolveAuthor finds the original author of an annotation. The annotation
// mentions them, so the venue normally supplies the full user.
func resolveAuthor(id string, m venue.Message, self venue.User, names *mention.Table) venue.User {
	if id == self.ID {
		return self
	}
	for _, u := range m.Mentions {
		if u.ID == id {
			return u
		}
	}
	if name, ok := names.Name(id); ok {
		return venue.User{ID: id, Name: name, DisplayName: names.Display(name)}
	}
	return venue.User{ID: id, Name: id}
}

// role tags a message by its author. With seeBots only the relay itself
// speaks as the assistant; otherwise every bot does.
func role(author, self venue.User, seeBots bool) string {
	isUser := !author.Bot
	if seeBots {
		isUser = author.ID != self.ID
	}
	if isUser {
		return providers.RoleUser
	}
	return providers.RoleAssistant
}

// merge joins adjacent entries with the same role using a single space.
func merge(msgs []providers.Message) []providers.Message {
	var out []providers.Message
	for _, m := range msgs {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content += " " + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
