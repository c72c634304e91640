package cmd

import (
	"context"
	"log/slog"

	"github.com/sadeshmukh/discord-ai/internal/config"
	"github.com/sadeshmukh/discord-ai/internal/providers"
)

// registerProviders registers an adapter for every provider with credentials.
// Providers listed in the models file but not registered answer with the
// generic error reply.
func registerProviders(ctx context.Context, registry *providers.Registry, cfg *config.Config) {
	if key := cfg.Providers.Google.APIKey; key != "" {
		p, err := providers.NewGoogleProvider(ctx, key)
		if err != nil {
			slog.Warn("google provider unavailable", "error", err)
		} else {
			registry.Register(p)
			slog.Info("registered provider", "name", "google")
		}
	}

	if key := cfg.Providers.Anthropic.APIKey; key != "" {
		var opts []providers.AnthropicOption
		if base := cfg.Providers.Anthropic.APIBase; base != "" {
			opts = append(opts, providers.WithAnthropicBaseURL(base))
		}
		registry.Register(providers.NewAnthropicProvider(key, opts...))
		slog.Info("registered provider", "name", "anthropic")
	}

	if key := cfg.Providers.OpenAI.APIKey; key != "" {
		registry.Register(providers.NewOpenAIProvider("openai", key, cfg.Providers.OpenAI.APIBase))
		slog.Info("registered provider", "name", "openai")
	}

	if cfg.Providers.Ollama.Enabled {
		registry.Register(providers.NewOllamaProvider(cfg.Providers.Ollama.Host))
		slog.Info("registered provider", "name", "ollama", "host", cfg.Providers.Ollama.Host)
	}

	for _, name := range registry.Catalog().Providers() {
		if _, err := registry.Provider(name); err != nil {
			slog.Warn("models file lists a provider without credentials", "provider", name)
		}
	}
}
