// Package render turns a generated reply into venue-safe messages.
package render

import (
	"log/slog"
	"strings"

	"github.com/sadeshmukh/discord-ai/internal/mention"
	"github.com/sadeshmukh/discord-ai/internal/venue"
)

// Placeholder replaces a reply that is empty after rendering.
const Placeholder = "..."

const zeroWidthSpace = "\u200b"

// NoPing is a participant who opted out of being mentioned.
type NoPing struct {
	ID   string
	Name string // shown instead of the mention
}

// Renderer resolves transcript references in a reply back to venue mentions.
type Renderer struct {
	Self   venue.User
	Names  *mention.Table
	NoPing []NoPing
}

// Render strips an echoed "name:" prefix, maps <@name> placeholders to
// mentions, defuses @everyone and @here, and replaces opted-out mentions
// with plain names. The result is trimmed and never empty.
func (r *Renderer) Render(reply string) string {
	reply = r.stripSelfPrefix(reply)

	noPing := make(map[string]string, len(r.NoPing))
	for _, u := range r.NoPing {
		noPing[u.ID] = u.Name
	}

	tokens := mention.Parse(reply)
	for i, tok := range tokens {
		switch tok.Kind {
		case mention.Name:
			id, ok := r.lookup(tok.Value)
			if !ok {
				continue
			}
			tok = mention.Token{Kind: mention.ID, Value: id}
			tokens[i] = tok
			fallthrough
		case mention.ID:
			if name, ok := noPing[tok.Value]; ok {
				tokens[i] = mention.Token{Kind: mention.Text, Value: name}
			}
		case mention.Mass:
			tokens[i] = mention.Token{Kind: mention.Text, Value: "@" + zeroWidthSpace + tok.Value}
		}
	}

	out := strings.TrimSpace(mention.Join(tokens))
	if out == "" {
		slog.Warn("empty reply after rendering, check provider stop sequences")
		return Placeholder
	}
	return out
}

func (r *Renderer) lookup(name string) (string, bool) {
	if name == r.Self.Name && r.Self.ID != "" {
		return r.Self.ID, true
	}
	if r.Names == nil {
		return "", false
	}
	return r.Names.ID(name)
}

func (r *Renderer) stripSelfPrefix(s string) string {
	if r.Self.Name == "" {
		return s
	}
	for _, p := range []string{r.Self.Name + ":", "<@" + r.Self.Name + ">:"} {
		if strings.HasPrefix(s, p) {
			return s[len(p):]
		}
	}
	return s
}
