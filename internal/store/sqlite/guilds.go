// Package sqlite implements store.GuildStore on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sadeshmukh/discord-ai/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS guilds (
	id         TEXT PRIMARY KEY,
	config     TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// SQLiteGuildStore keeps each GuildConfig as a JSON column keyed by guild ID.
type SQLiteGuildStore struct {
	db *sql.DB
}

// OpenDB opens (creating if needed) the database file at path.
func OpenDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// One writer keeps Put durable and ordered.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

func NewSQLiteGuildStore(db *sql.DB) *SQLiteGuildStore {
	return &SQLiteGuildStore{db: db}
}

// NewSQLiteStores creates all stores backed by a SQLite file.
func NewSQLiteStores(cfg store.StoreConfig) (*store.Stores, error) {
	db, err := OpenDB(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return &store.Stores{
		Guilds: NewSQLiteGuildStore(db),
		Close:  db.Close,
	}, nil
}

func (s *SQLiteGuildStore) Get(ctx context.Context, guildID string) (store.GuildConfig, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT config FROM guilds WHERE id = ?`, guildID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return store.GuildConfig{}, store.ErrNotFound
	}
	if err != nil {
		return store.GuildConfig{}, fmt.Errorf("get guild %s: %w", guildID, err)
	}
	var cfg store.GuildConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return store.GuildConfig{}, fmt.Errorf("decode guild %s: %w", guildID, err)
	}
	return cfg, nil
}

func (s *SQLiteGuildStore) Put(ctx context.Context, guildID string, cfg store.GuildConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO guilds (id, config, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT (id) DO UPDATE SET config = excluded.config, updated_at = excluded.updated_at`,
		guildID, string(data),
	)
	if err != nil {
		return fmt.Errorf("put guild %s: %w", guildID, err)
	}
	return nil
}

func (s *SQLiteGuildStore) List(ctx context.Context) ([]string, error) {
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
