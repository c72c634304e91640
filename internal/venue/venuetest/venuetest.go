// Package venuetest provides an in-memory venue.Venue for tests.
package venuetest

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sadeshmukh/discord-ai/internal/venue"
)

// Sent records one outbound message.
type Sent struct {
	ChannelID string
	Text      string
	ReplyTo   string // message ID when sent as a reply
	Opts      venue.SendOptions
}

// Venue keeps per-channel histories in memory. Messages sent through it
// are appended to the channel history as authored by Self.
type Venue struct {
	mu       sync.Mutex
	self     venue.User
	channels map[string][]venue.Message // oldest first
	sent     []Sent
	typing   []string
	nextID   uint64

	// Errors injected into the matching calls.
	ReplyErr  error
	SendErr   error
	TypingErr error
	FetchErr  error
	// SendFailures makes that many upcoming Send calls fail, with SendErr
	// when set.
	SendFailures int

	onMessage venue.MessageHandler
	onEdit    venue.EditHandler
	onDelete  venue.DeleteHandler
}

var _ venue.Venue = (*Venue)(nil)

func New(self venue.User) *Venue {
	return &Venue{
		self:     self,
		channels: make(map[string][]venue.Message),
		nextID:   1000,
	}
}

// Post appends m to its channel history, assigning an increasing ID when
// m.ID is empty, and returns the stored message.
func (v *Venue) Post(m venue.Message) venue.Message {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.postLocked(m)
}

func (v *Venue) postLocked(m venue.Message) venue.Message {
	if m.ID == "" {
		v.nextID++
		m.ID = strconv.FormatUint(v.nextID, 10)
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	for _, u := range m.Mentions {
		if u.ID == v.self.ID {
			m.MentionsSelf = true
		}
	}
	v.channels[m.ChannelID] = append(v.channels[m.ChannelID], m)
	return m
}

// Deliver posts m and dispatches it to the registered message handler.
func (v *Venue) Deliver(ctx context.Context, m venue.Message) venue.Message {
	m = v.Post(m)
	v.mu.Lock()
	h := v.onMessage
	v.mu.Unlock()
	if h != nil {
		h(ctx, m)
	}
	return m
}

// EditMessage replaces the content of a stored message and dispatches the edit.
func (v *Venue) EditMessage(ctx context.Context, channelID, id, content string) {
	v.mu.Lock()
	var before, after venue.Message
	found := false
	for i, m := range v.channels[channelID] {
		if m.ID == id {
			before = m
			v.channels[channelID][i].Content = content
			after = v.channels[channelID][i]
			found = true
			break
		}
	}
	h := v.onEdit
	v.mu.Unlock()
	if found && h != nil {
		h(ctx, before, after)
	}
}

// DeleteMessage removes a stored message and dispatches the deletion.
func (v *Venue) DeleteMessage(ctx context.Context, channelID, id string) {
	v.mu.Lock()
	var deleted venue.Message
	found := false
	msgs := v.channels[channelID]
	for i, m := range msgs {
		if m.ID == id {
			deleted = m
			v.channels[channelID] = append(msgs[:i:i], msgs[i+1:]...)
			found = true
			break
		}
	}
	h := v.onDelete
	v.mu.Unlock()
	if found && h != nil {
		h(ctx, deleted)
	}
}

// Sent returns a copy of everything sent so far.
func (v *Venue) Sent() []Sent {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]Sent(nil), v.sent...)
}

// TypingCalls returns the channels Typing was called for.
func (v *Venue) TypingCalls() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.typing...)
}

func (v *Venue) OnMessage(h venue.MessageHandler) {
	v.mu.Lock()
	v.onMessage = h
	v.mu.Unlock()
}

func (v *Venue) OnMessageEdited(h venue.EditHandler) {
	v.mu.Lock()
	v.onEdit = h
	v.mu.Unlock()
}

func (v *Venue) OnMessageDeleted(h venue.DeleteHandler) {
	v.mu.Lock()
	v.onDelete = h
	v.mu.Unlock()
}

func (v *Venue) FetchRecent(_ context.Context, channelID string, limit int) ([]venue.Message, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.FetchErr != nil {
		return nil, v.FetchErr
	}
	msgs := v.channels[channelID]
	out := make([]venue.Message, 0, limit)
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (v *Venue) Send(_ context.Context, channelID, text string, opts venue.SendOptions) (venue.Handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.SendFailures > 0 {
		v.SendFailures--
		if v.SendErr != nil {
			return venue.Handle{}, v.SendErr
		}
		return venue.Handle{}, fmt.Errorf("send to %s failed", channelID)
	}
	if v.SendErr != nil {
		return venue.Handle{}, v.SendErr
	}
	return v.sendLocked(channelID, text, "", opts), nil
}

func (v *Venue) Reply(_ context.Context, m venue.Message, text string, opts venue.SendOptions) (venue.Handle, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.ReplyErr != nil {
		return venue.Handle{}, v.ReplyErr
	}
	return v.sendLocked(m.ChannelID, text, m.ID, opts), nil
}

func (v *Venue) sendLocked(channelID, text, replyTo string, opts venue.SendOptions) venue.Handle {
	v.sent = append(v.sent, Sent{ChannelID: channelID, Text: text, ReplyTo: replyTo, Opts: opts})
	m := v.postLocked(venue.Message{ChannelID: channelID, Author: v.self, Content: text})
	return venue.Handle{ChannelID: channelID, MessageID: m.ID}
}

func (v *Venue) Edit(_ context.Context, h venue.Handle, text string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i, m := range v.channels[h.ChannelID] {
		if m.ID == h.MessageID {
			v.channels[h.ChannelID][i].Content = text
			return nil
		}
	}
	return fmt.Errorf("message %s not found in %s", h.MessageID, h.ChannelID)
}

func (v *Venue) Typing(_ context.Context, channelID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.TypingErr != nil {
		return v.TypingErr
	}
	v.typing = append(v.typing, channelID)
	return nil
}

func (v *Venue) Self() venue.User { return v.self }
