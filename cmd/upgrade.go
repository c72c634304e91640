package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/sadeshmukh/discord-ai/internal/store"
	"github.com/sadeshmukh/discord-ai/internal/upgrade"
)

// ErrUpgradeFailed is returned when upgrade cannot proceed.
var ErrUpgradeFailed = errors.New("upgrade cannot proceed")

func upgradeCmd() *cobra.Command {
	var dryRun bool
	var status bool

	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Upgrade the Postgres schema and import file-mode guild data",
		Long:  "Applies pending SQL migrations and data hooks. The first hook imports data.json into the guilds table. Safe to run multiple times.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if status {
				return runUpgradeStatus(cmd.Context())
			}
			return runUpgrade(cmd.Context(), dryRun)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be done without applying changes")
	cmd.Flags().BoolVar(&status, "status", false, "show current upgrade status")
	return cmd
}

// openSchemaDB loads config and connects to Postgres. It returns a nil DB
// when the store mode has no schema.
func openSchemaDB() (*sql.DB, upgrade.HookEnv, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, upgrade.HookEnv{}, "", err
	}
	if cfg.Database.Mode != store.ModePostgres {
		fmt.Printf("  Store mode %q needs no schema migrations.\n", cfg.Database.Mode)
		return nil, upgrade.HookEnv{}, "", nil
	}
	db, err := sql.Open("pgx", cfg.Database.PostgresDSN)
	if err != nil {
		return nil, upgrade.HookEnv{}, "", fmt.Errorf("connect: %w", err)
	}
	return db, hookEnv(cfg), cfg.Database.PostgresDSN, nil
}

func printPending(ctx context.Context, db *sql.DB, prefix string) {
	pending, err := upgrade.PendingHooks(ctx, db)
	if err != nil {
		slog.Debug("could not check pending data hooks", "error", err)
		return
	}
	if len(pending) == 0 {
		fmt.Println("  No pending data hooks.")
		return
	}
	fmt.Printf("  %s %d data hook(s):\n", prefix, len(pending))
	for _, name := range pending {
		fmt.Printf("    - %s\n", name)
	}
}

func runUpgradeStatus(ctx context.Context) error {
	db, _, _, err := openSchemaDB()
	if err != nil || db == nil {
		return err
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(db)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}

	fmt.Printf("  App version:     %s\n", Version)
	fmt.Printf("  Schema current:  %d\n", s.CurrentVersion)
	fmt.Printf("  Schema required: %d\n", s.RequiredVersion)

	switch {
	case s.Dirty:
		fmt.Println("  Status:          DIRTY (failed migration)")
		fmt.Println()
		fmt.Print(upgrade.FormatError(s))
		return nil
	case s.Compatible:
		fmt.Println("  Status:          UP TO DATE")
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Println("  Status:          BINARY TOO OLD")
	default:
		fmt.Printf("  Status:          UPGRADE NEEDED (%d -> %d)\n", s.CurrentVersion, s.RequiredVersion)
	}
	fmt.Println()
	printPending(ctx, db, "Pending")
	return nil
}

func runUpgrade(ctx context.Context, dryRun bool) error {
	db, env, dsn, err := openSchemaDB()
	if err != nil || db == nil {
		return err
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(db)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	if s.Dirty || s.CurrentVersion > s.RequiredVersion {
		fmt.Print(upgrade.FormatError(s))
		return ErrUpgradeFailed
	}

	if dryRun {
		if s.NeedsMigration {
			fmt.Printf("  Would apply SQL migrations: v%d -> v%d\n", s.CurrentVersion, s.RequiredVersion)
		} else {
			fmt.Println("  SQL schema is up to date.")
		}
		printPending(ctx, db, "Would run")
		return nil
	}

	if err := applyUpgrade(ctx, db, dsn, s, env); err != nil {
		return err
	}
	fmt.Println("  Upgrade complete.")
	return nil
}

// applyUpgrade runs SQL migrations when needed, then pending data hooks.
func applyUpgrade(ctx context.Context, db *sql.DB, dsn string, s *upgrade.SchemaStatus, env upgrade.HookEnv) error {
	if s.NeedsMigration {
		m, err := newMigrator(dsn)
		if err != nil {
			return err
		}
		defer m.Close()

		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate up: %w", err)
		}
		v, _, _ := m.Version()
		slog.Info("SQL migrations applied", "from", s.CurrentVersion, "to", v)
	}

	count, err := upgrade.RunPendingHooks(ctx, db, env)
	if err != nil {
		return fmt.Errorf("data hooks: %w", err)
	}
	if count > 0 {
		slog.Info("data hooks applied", "count", count)
	}
	return nil
}

// checkSchemaOrAutoUpgrade gates relay startup on schema compatibility.
// With DISCORD_AI_AUTO_UPGRADE=true an outdated schema is upgraded in place.
func checkSchemaOrAutoUpgrade(dsn, dataFile string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("schema check: connect: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("schema check: ping: %w", err)
	}

	s, err := upgrade.CheckSchema(db)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	if s.Compatible {
		slog.Info("schema check passed", "current", s.CurrentVersion, "required", s.RequiredVersion)
		return nil
	}
	if s.Dirty || s.CurrentVersion > s.RequiredVersion {
		return errors.New(upgrade.FormatError(s))
	}
	if os.Getenv("DISCORD_AI_AUTO_UPGRADE") != "true" {
		return errors.New(upgrade.FormatError(s))
	}

	slog.Info("auto-upgrade: applying migrations", "from", s.CurrentVersion, "to", s.RequiredVersion)
	if err := applyUpgrade(context.Background(), db, dsn, s, upgrade.HookEnv{DataFile: dataFile}); err != nil {
		return fmt.Errorf("auto-upgrade: %w", err)
	}
	slog.Info("auto-upgrade complete")
	return nil
}
