package upgrade

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sadeshmukh/discord-ai/internal/store/file"
	"github.com/sadeshmukh/discord-ai/internal/store/pg"
)

func init() {
	RegisterDataHook(1, "001_import_guild_document", func(ctx context.Context, tx *sql.Tx, env HookEnv) error {
		_, err := ImportGuildDocument(ctx, tx, env.DataFile)
		return err
	})
}

// ImportGuildDocument copies every guild from a file-mode document into the
// guilds table, replacing rows that already exist. A missing or empty
// document imports nothing.
func ImportGuildDocument(ctx context.Context, db pg.Execer, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	guilds, err := file.ReadDocument(path)
	if err != nil {
		return 0, fmt.Errorf("read guild document: %w", err)
	}

	ids := make([]string, 0, len(guilds))
	for id := range guilds {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		if err := pg.UpsertGuild(ctx, db, id, guilds[id]); err != nil {
			return 0, err
		}
	}
	if len(ids) > 0 {
		slog.Info("imported guild document", "path", path, "guilds", len(ids))
	}
	return len(ids), nil
}
