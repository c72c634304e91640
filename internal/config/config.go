package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sadeshmukh/discord-ai/internal/store"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON. Numbers keep
// their exact digits so Discord snowflakes survive.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw []interface{}
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case json.Number:
			result = append(result, val.String())
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the relay.
// The three top-level defaults keep the key names of the original botconfig.json.
type Config struct {
	TokenLimit    int64               `json:"tokenLimit"`
	ContextLimit  int                 `json:"contextLimit"`
	DefaultSystem string              `json:"defaultSystem"`
	DefaultModel  string              `json:"defaultModel,omitempty"`
	ModelsFile    string              `json:"modelsFile,omitempty"`
	Admins        FlexibleStringSlice `json:"admins,omitempty"`
	Invite        string              `json:"invite,omitempty"`

	Discord   DiscordConfig   `json:"discord"`
	Providers ProvidersConfig `json:"providers"`
	Usage     UsageConfig     `json:"usage"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// UsageConfig controls token accounting and generation pacing.
type UsageConfig struct {
	PromptWeight     float64 `json:"promptWeight,omitempty"`     // multiplier for prompt tokens (default 1)
	CompletionWeight float64 `json:"completionWeight,omitempty"` // multiplier for completion tokens (default 1)
	ResetSchedule    string  `json:"resetSchedule,omitempty"`    // cron expression in UTC (default "0 0 * * *")
	ProviderRPM      int     `json:"providerRPM,omitempty"`      // requests per minute per provider, 0 = unlimited
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`  // cap per reply (default 1000)
}

// DatabaseConfig selects the guild store backend.
// PostgresDSN is NEVER read from config.json (secret), only from env DISCORD_AI_POSTGRES_DSN.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"` // "file" (default), "sqlite" or "postgres"
	Path        string `json:"path,omitempty"` // data file for file and sqlite modes
	PostgresDSN string `json:"-"`
}

// StoreConfig converts the database section into the store factory input.
func (c *Config) StoreConfig() store.StoreConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return store.StoreConfig{
		Mode:        c.Database.Mode,
		Path:        ExpandHome(c.Database.Path),
		PostgresDSN: c.Database.PostgresDSN,
	}
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317", "https://otel.example.com:4318")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext connection, for local collectors
	ServiceName string            `json:"service_name,omitempty"` // OTEL service name (default "discord-ai")
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.TokenLimit = src.TokenLimit
	c.ContextLimit = src.ContextLimit
	c.DefaultSystem = src.DefaultSystem
	c.DefaultModel = src.DefaultModel
	c.ModelsFile = src.ModelsFile
	c.Admins = src.Admins
	c.Invite = src.Invite
	c.Discord = src.Discord
	c.Providers = src.Providers
	c.Usage = src.Usage
	c.Database = src.Database
	c.Telemetry = src.Telemetry
}
