package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by GuildStore.Get for a guild with no stored config.
var ErrNotFound = errors.New("not found")

// GuildStore persists one GuildConfig document per guild. Put is durable
// when it returns.
type GuildStore interface {
	Get(ctx context.Context, guildID string) (GuildConfig, error)
	Put(ctx context.Context, guildID string, cfg GuildConfig) error
	// List returns every stored guild ID in ascending order.
	List(ctx context.Context) ([]string, error)
}
