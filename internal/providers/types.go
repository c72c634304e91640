package providers

import "context"

// Conversation roles understood by every provider.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Provider is the interface all text-generation providers must implement.
type Provider interface {
	// Chat sends the transcript to the provider and returns its reply.
	// Implementations return transport and decode failures as errors;
	// the Dispatcher turns them into the fail-soft reply.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string
}

// ChatRequest contains the input for a Chat call.
type ChatRequest struct {
	Messages []Message       `json:"messages"`
	Model    string          `json:"model"`
	Options  GenerateOptions `json:"options"`
}

// GenerateOptions bounds a single generation.
type GenerateOptions struct {
	MaxOutputTokens int      `json:"max_output_tokens,omitempty"`
	StopSequences   []string `json:"stop_sequences,omitempty"`
}

// ChatResponse is the result from a provider call.
type ChatResponse struct {
	Content      string `json:"content"`
	FinishReason string `json:"finish_reason,omitempty"` // "stop", "length"
	Usage        Usage  `json:"usage"`
}

// Message is one transcript entry.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// Usage tracks provider-reported token consumption for one call.
// A provider that reports nothing for an axis leaves it at zero.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Total returns the sum of prompt and completion tokens.
func (u Usage) Total() int {
	return u.PromptTokens + u.CompletionTokens
}

// splitSystem separates system entries from conversational turns.
// Used by dialects that carry instructions outside the turn list.
func splitSystem(msgs []Message) (system []string, turns []Message) {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	return system, turns
}
