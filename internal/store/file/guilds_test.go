package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadeshmukh/discord-ai/internal/store"
)

func TestFileGuildStore_PutPersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "data.json")

	s, err := NewFileGuildStore(path)
	require.NoError(t, err)

	_, err = s.Get(ctx, "1")
	require.ErrorIs(t, err, store.ErrNotFound)

	cfg := store.GuildConfig{
		ChannelID:    "1234567890123456789",
		Model:        "openai|gpt-4o",
		IgnoredUsers: store.IDList{"42"},
		NoPingUsers:  []store.NoPingUser{{ID: "7", Name: "Amy"}},
		Usage:        store.UsageCounters{Today: 10, Total: 99},
	}
	require.NoError(t, s.Put(ctx, "1", cfg))

	reopened, err := NewFileGuildStore(path)
	require.NoError(t, err)
	got, err := reopened.Get(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	ids, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileGuildStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileGuildStore(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "g", store.GuildConfig{IgnoredUsers: store.IDList{"1"}}))

	got, err := s.Get(ctx, "g")
	require.NoError(t, err)
	got.IgnoredUsers[0] = "changed"

	again, err := s.Get(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, store.IDList{"1"}, again.IgnoredUsers)
}

func TestReadDocument_LegacyNumericIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	legacy := `{
  "token_limit": 1000,
  "guilds": {
    "1111": {
      "channel_id": 1280000000000000001,
      "model": "google|gemini-1.5-flash",
      "system": "You're a helpful assistant.",
      "usage": {"today": 5, "total": 50},
      "ignored_users": [1280000000000000002],
      "no_ping_users": [{"id": 1280000000000000003, "name": "amy"}]
    },
    "2222": {"channel_id": null, "model": "gemini-1.5-flash", "system": "google"}
  }
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	guilds, err := ReadDocument(path)
	require.NoError(t, err)
	require.Len(t, guilds, 2)

	g := guilds["1111"]
	assert.Equal(t, store.ID("1280000000000000001"), g.ChannelID)
	assert.Equal(t, store.IDList{"1280000000000000002"}, g.IgnoredUsers)
	assert.Equal(t, store.ID("1280000000000000003"), g.NoPingUsers[0].ID)
	assert.Equal(t, int64(5), g.Usage.Today)
	assert.Equal(t, store.ID(""), guilds["2222"].ChannelID)
}

func TestReadDocument_Missing(t *testing.T) {
	guilds, err := ReadDocument(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, guilds)
}

func TestDocument_NullChannel(t *testing.T) {
	data, err := json.Marshal(document{Guilds: map[string]store.GuildConfig{"1": {}}})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"channel_id":null`)
}
