// Package mention parses chat text into a stream of plain text and
// participant-reference tokens, and keeps the name table used to translate
// references between their venue form (<@id>) and their transcript form (<@name>).
package mention

import (
	"strings"
)

// Kind classifies a Token.
type Kind int

const (
	// Text is literal content.
	Text Kind = iota
	// ID is a venue mention, <@123> or <@!123>. Value holds the digits.
	ID
	// Name is a transcript placeholder, <@name>. Value holds the name.
	Name
	// Mass is @everyone or @here. Value holds the word without the @.
	Mass
)

// Token is one element of a parsed message.
type Token struct {
	Kind  Kind
	Value string
}

// String renders the token back to its textual form.
func (t Token) String() string {
	switch t.Kind {
	case ID, Name:
		return "<@" + t.Value + ">"
	case Mass:
		return "@" + t.Value
	default:
		return t.Value
	}
}

var massWords = []string{"everyone", "here"}

// Parse splits s into tokens. Adjacent literal runs are coalesced.
// Join(Parse(s)) returns s unchanged apart from <@!id> becoming <@id>.
func Parse(s string) []Token {
	var (
		out []Token
		lit strings.Builder
	)
	flush := func() {
		if lit.Len() > 0 {
			out = append(out, Token{Kind: Text, Value: lit.String()})
			lit.Reset()
		}
	}

	for i := 0; i < len(s); {
		if s[i] == '<' && strings.HasPrefix(s[i:], "<@") {
			if tok, n, ok := parseRef(s[i:]); ok {
				flush()
				out = append(out, tok)
				i += n
				continue
			}
		}
		if s[i] == '@' {
			if word, ok := massAt(s[i+1:]); ok {
				flush()
				out = append(out, Token{Kind: Mass, Value: word})
				i += 1 + len(word)
				continue
			}
		}
		lit.WriteByte(s[i])
		i++
	}
	flush()
	return out
}

// Join concatenates the textual form of tokens.
func Join(tokens []Token) string {
	var b strings.Builder
	for _, t := range tokens {
		b.WriteString(t.String())
	}
	return b.String()
}

// parseRef parses a reference at the start of s, which begins with "<@".
func parseRef(s string) (Token, int, bool) {
	end := strings.IndexByte(s, '>')
	if end < 0 {
		return Token{}, 0, false
	}
	inner := s[2:end]
	if inner == "" || strings.ContainsAny(inner, " \t\r\n<@") {
		return Token{}, 0, false
	}

	if digits := strings.TrimPrefix(inner, "!"); isDigits(digits) {
		return Token{Kind: ID, Value: digits}, end + 1, true
	}
	// Role (<@&id>) and nickname markers without digits are not user references.
	if inner[0] == '&' || inner[0] == '!' {
		return Token{}, 0, false
	}
	return Token{Kind: Name, Value: inner}, end + 1, true
}

func massAt(s string) (string, bool) {
	for _, w := range massWords {
		if strings.HasPrefix(s, w) {
			return w, true
		}
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
