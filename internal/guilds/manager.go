// Package guilds owns per-guild configuration and serializes every
// read-modify-write of it.
package guilds

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sadeshmukh/discord-ai/internal/store"
)

// Defaults fill in settings a guild has not set.
type Defaults struct {
	Model         string
	ContextLength int
	TokenLimit    int64
}

// Manager wraps a GuildStore with a mutex per guild.
type Manager struct {
	store    store.GuildStore
	defaults Defaults

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewManager(s store.GuildStore, d Defaults) *Manager {
	return &Manager{
		store:    s,
		defaults: d,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Manager) Defaults() Defaults { return m.defaults }

func (m *Manager) lock(guildID string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[guildID] = l
	}
	return l
}

// Get returns the stored config for guildID with defaults applied.
// ok is false when the guild has never been configured.
func (m *Manager) Get(ctx context.Context, guildID string) (cfg store.GuildConfig, ok bool, err error) {
	cfg, err = m.store.Get(ctx, guildID)
	if errors.Is(err, store.ErrNotFound) {
		return m.Effective(store.GuildConfig{}), false, nil
	}
	if err != nil {
		return store.GuildConfig{}, false, err
	}
	return m.Effective(cfg), true, nil
}

// Effective returns cfg with unset fields replaced by defaults.
func (m *Manager) Effective(cfg store.GuildConfig) store.GuildConfig {
	if cfg.Model == "" {
		cfg.Model = m.defaults.Model
	}
	if cfg.ContextLength <= 0 {
		cfg.ContextLength = m.defaults.ContextLength
	}
	if cfg.TokenLimit <= 0 {
		cfg.TokenLimit = m.defaults.TokenLimit
	}
	return cfg
}

// UpdateFunc mutates a guild's stored config in place. exists is false for a
// guild with nothing stored yet. Returning an error discards the change.
type UpdateFunc func(cfg *store.GuildConfig, exists bool) error

// Update runs fn against the stored config and persists the result, all
// under the guild's lock. It returns the persisted config with defaults applied.
func (m *Manager) Update(ctx context.Context, guildID string, fn UpdateFunc) (store.GuildConfig, error) {
	l := m.lock(guildID)
	l.Lock()
	defer l.Unlock()

	cfg, err := m.store.Get(ctx, guildID)
	exists := true
	if errors.Is(err, store.ErrNotFound) {
		cfg, exists, err = store.GuildConfig{}, false, nil
	}
	if err != nil {
		return store.GuildConfig{}, fmt.Errorf("load guild %s: %w", guildID, err)
	}

	if err := fn(&cfg, exists); err != nil {
		return store.GuildConfig{}, err
	}
	if err := m.store.Put(ctx, guildID, cfg); err != nil {
		return store.GuildConfig{}, fmt.Errorf("save guild %s: %w", guildID, err)
	}
	return m.Effective(cfg), nil
}

// List returns the IDs of every stored guild.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}
