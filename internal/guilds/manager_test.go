package guilds

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sadeshmukh/discord-ai/internal/store"
	"github.com/sadeshmukh/discord-ai/internal/store/file"
)

func newManager(t *testing.T) *Manager {
	t.Helper()
	s, err := file.NewFileGuildStore(filepath.Join(t.TempDir(), "data.json"))
	require.NoError(t, err)
	return NewManager(s, Defaults{Model: "google|gemini-1.5-flash", ContextLength: 5, TokenLimit: 1000})
}

func TestManager_GetDefaults(t *testing.T) {
	m := newManager(t)
	cfg, ok, err := m.Get(context.Background(), "g")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "google|gemini-1.5-flash", cfg.Model)
	assert.Equal(t, 5, cfg.ContextLength)
	assert.Equal(t, int64(1000), cfg.TokenLimit)
	assert.Equal(t, store.ID(""), cfg.ChannelID)
}

func TestManager_UpdatePersistsOnlyChanges(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	got, err := m.Update(ctx, "g", func(cfg *store.GuildConfig, exists bool) error {
		assert.False(t, exists)
		cfg.ChannelID = "c1"
		cfg.ContextLength = 9
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 9, got.ContextLength)
	assert.Equal(t, "google|gemini-1.5-flash", got.Model)

	raw, err := m.store.Get(ctx, "g")
	require.NoError(t, err)
	assert.Empty(t, raw.Model, "defaults must not be written back")

	cfg, ok, err := m.Get(ctx, "g")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, store.ID("c1"), cfg.ChannelID)
}

func TestManager_UpdateErrorDiscards(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)
	reject := errors.New("rejected")

	_, err := m.Update(ctx, "g", func(cfg *store.GuildConfig, _ bool) error {
		cfg.Model = "bogus"
		return reject
	})
	require.ErrorIs(t, err, reject)

	_, ok, err := m.Get(ctx, "g")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestManager_ConcurrentUpdates checks that concurrent increments are not lost.
func TestManager_ConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Update(ctx, "g", func(cfg *store.GuildConfig, _ bool) error {
				cfg.Usage.Today++
				cfg.Usage.Total++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	cfg, _, err := m.Get(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, int64(workers), cfg.Usage.Today)
	assert.Equal(t, int64(workers), cfg.Usage.Total)
}
