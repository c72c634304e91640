package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sadeshmukh/discord-ai/internal/store"
)

// PGGuildStore implements store.GuildStore backed by Postgres.
// Each guild is one row with its config in a jsonb column.
type PGGuildStore struct {
	db *sql.DB
}

func NewPGGuildStore(db *sql.DB) *PGGuildStore {
	return &PGGuildStore{db: db}
}

func (s *PGGuildStore) Get(ctx context.Context, guildID string) (store.GuildConfig, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT config FROM guilds WHERE id = $1`, guildID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.GuildConfig{}, store.ErrNotFound
	}
	if err != nil {
		return store.GuildConfig{}, fmt.Errorf("get guild %s: %w", guildID, err)
	}
	var cfg store.GuildConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return store.GuildConfig{}, fmt.Errorf("decode guild %s: %w", guildID, err)
	}
	return cfg, nil
}

func (s *PGGuildStore) Put(ctx context.Context, guildID string, cfg store.GuildConfig) error {
	return UpsertGuild(ctx, s.db, guildID, cfg)
}

func (s *PGGuildStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM guilds ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list guilds: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// UpsertGuild writes cfg for guildID, replacing any existing row.
func UpsertGuild(ctx context.Context, db Execer, guildID string, cfg store.GuildConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO guilds (id, config, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (id) DO UPDATE SET config = EXCLUDED.config, updated_at = NOW()`,
		guildID, data,
	)
	if err != nil {
		return fmt.Errorf("put guild %s: %w", guildID, err)
	}
	return nil
}
