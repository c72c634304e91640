package pg

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sadeshmukh/discord-ai/internal/store"
)

// OpenDB opens a Postgres pool through the pgx stdlib driver and checks connectivity.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxIdleTime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

// NewPGStores creates all stores backed by Postgres (managed mode).
// The schema comes from the migrate command.
func NewPGStores(cfg store.StoreConfig) (*store.Stores, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("postgres DSN is not set")
	}
	db, err := OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &store.Stores{
		Guilds: NewPGGuildStore(db),
		Close:  db.Close,
	}, nil
}
