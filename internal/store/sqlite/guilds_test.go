package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadeshmukh/discord-ai/internal/store"
)

func TestSQLiteGuildStore(t *testing.T) {
	ctx := context.Background()
	stores, err := NewSQLiteStores(store.StoreConfig{Path: filepath.Join(t.TempDir(), "relay.db")})
	require.NoError(t, err)
	defer stores.Close()
	s := stores.Guilds

	_, err = s.Get(ctx, "g1")
	require.ErrorIs(t, err, store.ErrNotFound)

	cfg := store.GuildConfig{ChannelID: "55", Model: "ollama|llama3", ContextLength: 8}
	require.NoError(t, s.Put(ctx, "g2", cfg))
	require.NoError(t, s.Put(ctx, "g1", store.GuildConfig{}))

	cfg.Usage.Today = 12
	require.NoError(t, s.Put(ctx, "g2", cfg))

	got, err := s.Get(ctx, "g2")
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	ids, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"g1", "g2"}, ids)
}
