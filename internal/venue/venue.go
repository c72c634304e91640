// Package venue defines the chat venue boundary the relay talks to.
package venue

import (
	"context"
	"time"
)

// User is a venue participant.
type User struct {
	ID          string
	Name        string // unique mention username
	DisplayName string
	Bot         bool
}

// Mention returns the venue mention token for u.
func (u User) Mention() string { return "<@" + u.ID + ">" }

// Display returns the display name, falling back to the username.
func (u User) Display() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Name
}

// Message is a venue message as seen by the relay.
type Message struct {
	ID        string
	ChannelID string
	GuildID   string // empty for direct messages
	Author    User
	Content   string
	Mentions  []User
	Timestamp time.Time

	// MentionsSelf is set when the relay itself is mentioned.
	MentionsSelf bool
}

// Handle identifies a message the relay has sent.
type Handle struct {
	ChannelID string
	MessageID string
}

// SendOptions modify a Send or Reply.
type SendOptions struct {
	TTS bool
	// MentionAuthor pings the replied-to author. Ignored by Send.
	MentionAuthor bool
}

type (
	MessageHandler func(ctx context.Context, m Message)
	// EditHandler receives the message before and after the edit. Before may
	// have empty Content when the venue did not cache the original.
	EditHandler   func(ctx context.Context, before, after Message)
	DeleteHandler func(ctx context.Context, m Message)
)

// Venue is the chat gateway the relay consumes.
type Venue interface {
	OnMessage(h MessageHandler)
	OnMessageEdited(h EditHandler)
	OnMessageDeleted(h DeleteHandler)

	// FetchRecent returns up to limit messages from channelID, newest first.
	FetchRecent(ctx context.Context, channelID string, limit int) ([]Message, error)

	Send(ctx context.Context, channelID, text string, opts SendOptions) (Handle, error)
	// Reply sends text as a threaded reply to m.
	Reply(ctx context.Context, m Message, text string, opts SendOptions) (Handle, error)
	Edit(ctx context.Context, h Handle, text string) error
	Typing(ctx context.Context, channelID string) error

	// Self returns the relay's own identity.
	Self() User
}
