package store

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID is a venue snowflake. It decodes from a JSON string or number and an
// empty ID encodes as null.
type ID string

func (id ID) MarshalJSON() ([]byte, error) {
	if id == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(id))
}

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	// Numbers are kept as written; snowflakes exceed float64 precision.
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// IDList is an ordered set of IDs.
type IDList []ID

func (l IDList) Contains(id string) bool {
	for _, v := range l {
		if string(v) == id {
			return true
		}
	}
	return false
}

// With returns l with id appended unless it is already present.
func (l IDList) With(id string) IDList {
	if l.Contains(id) {
		return l
	}
	return append(l, ID(id))
}

// Without returns l with every occurrence of id removed.
func (l IDList) Without(id string) IDList {
	out := l[:0:0]
	for _, v := range l {
		if string(v) != id {
			out = append(out, v)
		}
	}
	return out
}

// Strings returns the IDs as plain strings.
func (l IDList) Strings() []string {
	out := make([]string, len(l))
	for i, v := range l {
		out[i] = string(v)
	}
	return out
}

// NoPingUser is a participant who should be named, not mentioned.
type NoPingUser struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
}

// UsageCounters aggregates token usage for a guild.
type UsageCounters struct {
	Today int64 `json:"today"`
	Total int64 `json:"total"`
}

// GuildConfig is the persisted per-guild document. Zero values mean
// "use the process default" for Model, System, ContextLength and TokenLimit.
type GuildConfig struct {
	ChannelID     ID            `json:"channel_id"` // empty: disabled
	Model         string        `json:"model,omitempty"`
	System        string        `json:"system,omitempty"`
	ContextLength int           `json:"context_length,omitempty"`
	BypassLimits  bool          `json:"bypass_limits"`
	TokenLimit    int64         `json:"token_limit,omitempty"`
	TTS           bool          `json:"tts"`
	SeeBots       bool          `json:"see_bots"`
	IgnoredUsers  IDList        `json:"ignored_users,omitempty"`
	NoPingUsers   []NoPingUser  `json:"no_ping_users,omitempty"`
	Usage         UsageCounters `json:"usage"`
}

// Clone returns a deep copy of c.
func (c GuildConfig) Clone() GuildConfig {
	if c.IgnoredUsers != nil {
		c.IgnoredUsers = append(IDList(nil), c.IgnoredUsers...)
	}
	if c.NoPingUsers != nil {
		c.NoPingUsers = append([]NoPingUser(nil), c.NoPingUsers...)
	}
	return c
}

// WithNoPing returns c's no-ping list with id set to name.
func (c GuildConfig) WithNoPing(id, name string) []NoPingUser {
	out := c.WithoutNoPing(id)
	return append(out, NoPingUser{ID: ID(id), Name: name})
}

// WithoutNoPing returns c's no-ping list without id.
func (c GuildConfig) WithoutNoPing(id string) []NoPingUser {
	var out []NoPingUser
	for _, u := range c.NoPingUsers {
		if string(u.ID) != id {
			out = append(out, u)
		}
	}
	return out
}
