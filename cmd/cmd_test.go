package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadeshmukh/discord-ai/internal/config"
)

func TestPrintTableAlignsWideRunes(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, []string{"GUILD", "TODAY"}, [][]string{
		{"日本", "12"},
		{"abcdef", "3"},
	})
	want := "GUILD   TODAY\n" +
		"------  -----\n" +
		"日本    12\n" +
		"abcdef  3\n"
	assert.Equal(t, want, buf.String())
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "(not configured)", maskSecret(""))
	assert.Equal(t, "*****", maskSecret("short"))
	assert.Equal(t, "abcd****wxyz", maskSecret("abcd1234wxyz"))
}

func TestApplyOnboardSplitsSecrets(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "botconfig.json")
	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("KEEP_ME=1\nTOKEN=old\n"), 0600))

	err := applyOnboard(config.Default(), onboardAnswers{
		Token:        "new-token",
		GeminiKey:    "gem-key",
		Admins:       " 101, 102 ,",
		StoreMode:    "sqlite",
		DefaultModel: "openai|gpt-4o",
		OllamaHost:   "http://localhost:11434",
	}, cfgPath, envPath)
	require.NoError(t, err)

	env, err := godotenv.Read(envPath)
	require.NoError(t, err)
	assert.Equal(t, "new-token", env["TOKEN"])
	assert.Equal(t, "gem-key", env["GEMINI_API_KEY"])
	assert.Equal(t, "1", env["KEEP_ME"])
	assert.NotContains(t, env, "OPENAI_API_KEY")

	data, err := os.ReadFile(cfgPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "new-token")
	assert.NotContains(t, string(data), "gem-key")

	cfg, err := config.Load(cfgPath)
	require.NoError(t, err)
	assert.Equal(t, config.FlexibleStringSlice{"101", "102"}, cfg.Admins)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, "data.db", cfg.Database.Path)
	assert.Equal(t, "openai|gpt-4o", cfg.DefaultModel)
	assert.True(t, cfg.Providers.Ollama.Enabled)
}
