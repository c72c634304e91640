package config

// DiscordConfig configures the Discord gateway connection.
type DiscordConfig struct {
	Token string `json:"token"`
	// MessageCache is how many messages per channel discordgo keeps so edits
	// and deletes can be annotated with the original content (default 100).
	MessageCache int `json:"message_cache,omitempty"`
	// RegisterCommands bulk-overwrites the global slash commands on ready (default true).
	RegisterCommands *bool `json:"register_commands,omitempty"`
}

// ShouldRegisterCommands reports whether slash commands are registered on ready.
func (d DiscordConfig) ShouldRegisterCommands() bool {
	return d.RegisterCommands == nil || *d.RegisterCommands
}

// ProvidersConfig holds credentials for each generation backend.
type ProvidersConfig struct {
	Google    ProviderConfig `json:"google"`
	Anthropic ProviderConfig `json:"anthropic"`
	OpenAI    ProviderConfig `json:"openai"`
	Ollama    OllamaConfig   `json:"ollama"`
}

type ProviderConfig struct {
	APIKey  string `json:"api_key"`
	APIBase string `json:"api_base,omitempty"`
}

type OllamaConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host,omitempty"` // default http://localhost:11434
}

// HasAnyProvider returns true if at least one provider is usable.
func (c *Config) HasAnyProvider() bool {
	p := c.Providers
	return p.Google.APIKey != "" ||
		p.Anthropic.APIKey != "" ||
		p.OpenAI.APIKey != "" ||
		p.Ollama.Enabled
}
