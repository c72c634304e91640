package providers

import "strings"

// buildRequestBody converts a transcript into a Messages API body.
// System entries become the top-level system prompt. The API requires the
// first turn to come from the user, so leading assistant turns are folded
// into the system text as an example of the expected reply format.
// The bool is false when no conversational turn remains.
func (p *AnthropicProvider) buildRequestBody(req ChatRequest) (map[string]interface{}, bool) {
	system, turns := splitSystem(req.Messages)

	for len(turns) > 0 && turns[0].Role == RoleAssistant {
		system = append(system, turns[0].Content)
		turns = turns[1:]
	}
	if len(turns) == 0 {
		return nil, false
	}

	messages := make([]map[string]interface{}, 0, len(turns))
	for _, msg := range turns {
		role := RoleUser
		if msg.Role == RoleAssistant {
			role = RoleAssistant
		}
		messages = append(messages, map[string]interface{}{
			"role":    role,
			"content": msg.Content,
		})
	}

	maxTokens := req.Options.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	body := map[string]interface{}{
		"model":      req.Model,
		"max_tokens": maxTokens,
		"messages":   messages,
	}
	if len(system) > 0 {
		body["system"] = strings.Join(system, "\n\n")
	}
	if len(req.Options.StopSequences) > 0 {
		body["stop_sequences"] = req.Options.StopSequences
	}

	return body, true
}
