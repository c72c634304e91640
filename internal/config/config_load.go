package config

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		TokenLimit:    1000,
		ContextLimit:  5,
		DefaultSystem: "You are an assistant.",
		DefaultModel:  "google|gemini-1.5-flash",
		ModelsFile:    "models.json",
		Discord: DiscordConfig{
			MessageCache: 100,
		},
		Usage: UsageConfig{
			PromptWeight:     1,
			CompletionWeight: 1,
			ResetSchedule:    "0 0 * * *",
			MaxOutputTokens:  1000,
		},
		Database: DatabaseConfig{
			Mode: "file",
			Path: "data.json",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "discord-ai",
		},
	}
}

// LoadDotEnv loads environment variables from path. Missing files are ignored.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				*dst = v
				return
			}
		}
	}
	envInt := func(key string, apply func(n int64)) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
				apply(n)
			}
		}
	}

	// Secrets. The unprefixed names are the ones the original bot read from .env.
	envStr(&c.Discord.Token, "DISCORD_AI_TOKEN", "TOKEN")
	envStr(&c.Providers.Google.APIKey, "DISCORD_AI_GEMINI_API_KEY", "GEMINI_API_KEY")
	envStr(&c.Providers.Anthropic.APIKey, "DISCORD_AI_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	envStr(&c.Providers.OpenAI.APIKey, "DISCORD_AI_OPENAI_API_KEY", "OPENAI_API_KEY")
	envStr(&c.Database.PostgresDSN, "DISCORD_AI_POSTGRES_DSN")

	envStr(&c.Providers.OpenAI.APIBase, "DISCORD_AI_OPENAI_API_BASE")
	envStr(&c.Providers.Anthropic.APIBase, "DISCORD_AI_ANTHROPIC_API_BASE")
	if v := os.Getenv("OLLAMA_HOST"); v != "" {
		c.Providers.Ollama.Host = v
		c.Providers.Ollama.Enabled = true
	}

	envStr(&c.Invite, "DISCORD_AI_INVITE", "DISCORD_INVITE")
	if v := os.Getenv("ADMIN_USERS"); v != "" {
		c.Admins = splitList(v)
	}

	envStr(&c.DefaultModel, "DISCORD_AI_MODEL")
	envStr(&c.DefaultSystem, "DISCORD_AI_SYSTEM")
	envStr(&c.ModelsFile, "DISCORD_AI_MODELS_FILE")
	envInt("DISCORD_AI_TOKEN_LIMIT", func(n int64) { c.TokenLimit = n })
	envInt("DISCORD_AI_CONTEXT_LIMIT", func(n int64) { c.ContextLimit = int(n) })
	envStr(&c.Usage.ResetSchedule, "DISCORD_AI_RESET_SCHEDULE")

	// Database
	envStr(&c.Database.Mode, "DISCORD_AI_DB_MODE")
	envStr(&c.Database.Path, "DISCORD_AI_DB_PATH")

	// Telemetry
	envStr(&c.Telemetry.Endpoint, "DISCORD_AI_TELEMETRY_ENDPOINT")
	envStr(&c.Telemetry.Protocol, "DISCORD_AI_TELEMETRY_PROTOCOL")
	envStr(&c.Telemetry.ServiceName, "DISCORD_AI_TELEMETRY_SERVICE_NAME")
	if v := os.Getenv("DISCORD_AI_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("DISCORD_AI_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects settings the relay cannot run with.
func (c *Config) Validate() error {
	if c.TokenLimit <= 0 {
		return fmt.Errorf("tokenLimit must be positive, got %d", c.TokenLimit)
	}
	if c.ContextLimit < 1 || c.ContextLimit > 12 {
		return fmt.Errorf("contextLimit must be between 1 and 12, got %d", c.ContextLimit)
	}
	switch c.Database.Mode {
	case "", "file", "sqlite":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("database mode postgres requires DISCORD_AI_POSTGRES_DSN")
		}
	default:
		return fmt.Errorf("unknown database mode %q", c.Database.Mode)
	}
	if c.Usage.PromptWeight < 0 || c.Usage.CompletionWeight < 0 {
		return fmt.Errorf("usage weights must not be negative")
	}
	return nil
}

// Save writes the config to a JSON file without secrets.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	cp := &Config{}
	cfg.mu.RUnlock()
	cp.ReplaceFrom(cfg)
	if len(cfg.Telemetry.Headers) > 0 {
		cp.Telemetry.Headers = make(map[string]string, len(cfg.Telemetry.Headers))
		for k, v := range cfg.Telemetry.Headers {
			cp.Telemetry.Headers[k] = v
		}
	}
	cp.StripSecrets()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Hash returns a SHA-256 hash of the config for change detection.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// StripSecrets zeros out all secret fields in the config.
// Used before saving to disk to ensure secrets never persist in the config file.
func (c *Config) StripSecrets() {
	c.Discord.Token = ""
	c.Providers.Google.APIKey = ""
	c.Providers.Anthropic.APIKey = ""
	c.Providers.OpenAI.APIKey = ""
	c.Database.PostgresDSN = ""
	for k := range c.Telemetry.Headers {
		c.Telemetry.Headers[k] = ""
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
