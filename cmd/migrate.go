package cmd

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/sadeshmukh/discord-ai/internal/config"
	"github.com/sadeshmukh/discord-ai/internal/upgrade"
	"github.com/sadeshmukh/discord-ai/migrations"
)

var migrationsDir string

// resolveMigrationsDir returns an override directory, or "" to use the
// migrations compiled into the binary.
func resolveMigrationsDir() string {
	if migrationsDir != "" {
		return migrationsDir
	}
	return os.Getenv("DISCORD_AI_MIGRATIONS_DIR")
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	if dir := resolveMigrationsDir(); dir != "" {
		m, err := migrate.New("file://"+filepath.ToSlash(dir), dsn)
		if err != nil {
			return nil, fmt.Errorf("create migrator: %w", err)
		}
		return m, nil
	}
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("open embedded migrations: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// resolveDSN returns the Postgres DSN and the file-mode document that data
// hooks import from. The DSN comes from the environment only.
func resolveDSN() (string, upgrade.HookEnv, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", upgrade.HookEnv{}, err
	}
	dsn := cfg.Database.PostgresDSN
	if dsn == "" {
		return "", upgrade.HookEnv{}, fmt.Errorf("DISCORD_AI_POSTGRES_DSN environment variable is not set")
	}
	return dsn, hookEnv(cfg), nil
}

// hookEnv points data hooks at the guild document. In postgres mode the
// configured path still names the document left by an earlier file-mode run.
func hookEnv(cfg *config.Config) upgrade.HookEnv {
	return upgrade.HookEnv{DataFile: cfg.StoreConfig().Path}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration management",
	}

	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "path to migrations directory (default: embedded)")

	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	cmd.AddCommand(migrateForceCmd())
	cmd.AddCommand(migrateDropCmd())

	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations and data hooks",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, env, err := resolveDSN()
			if err != nil {
				return err
			}
			m, err := newMigrator(dsn)
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Up(); err != nil && err != migrate.ErrNoChange {
				return fmt.Errorf("migrate up: %w", err)
			}

			v, dirty, _ := m.Version()
			slog.Info("migration complete", "version", v, "dirty", dirty)

			// Run pending data hooks after SQL migrations.
			db, dbErr := sql.Open("pgx", dsn)
			if dbErr != nil {
				slog.Warn("could not connect for data hooks", "error", dbErr)
				return nil
			}
			defer db.Close()

			count, err := upgrade.RunPendingHooks(cmd.Context(), db, env)
			if err != nil {
				return fmt.Errorf("data hooks: %w", err)
			}
			if count > 0 {
				slog.Info("data hooks applied", "count", count)
			}
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, _, err := resolveDSN()
			if err != nil {
				return err
			}
			m, err := newMigrator(dsn)
			if err != nil {
				return err
			}
			defer m.Close()

			if steps <= 0 {
				steps = 1
			}
			if err := m.Steps(-steps); err != nil && err != migrate.ErrNoChange {
				return fmt.Errorf("migrate down: %w", err)
			}

			v, dirty, _ := m.Version()
			slog.Info("rollback complete", "version", v, "dirty", dirty)
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, _, err := resolveDSN()
			if err != nil {
				return err
			}
			m, err := newMigrator(dsn)
			if err != nil {
				return err
			}
			defer m.Close()

			v, dirty, err := m.Version()
			if err != nil {
				return fmt.Errorf("get version: %w", err)
			}
			fmt.Printf("version: %d, dirty: %v\n", v, dirty)
			return nil
		},
	}
}

func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force set migration version (no migration applied)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			dsn, _, err := resolveDSN()
			if err != nil {
				return err
			}
			m, err := newMigrator(dsn)
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Force(version); err != nil {
				return fmt.Errorf("force version: %w", err)
			}
			slog.Info("forced version", "version", version)
			return nil
		},
	}
}

func migrateDropCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Drop all tables, including every guild's settings (DANGEROUS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, _, err := resolveDSN()
			if err != nil {
				return err
			}
			if !yes {
				if err := huh.NewConfirm().
					Title("Drop every table? Guild settings and usage are lost.").
					Value(&yes).
					Run(); err != nil {
					return err
				}
				if !yes {
					fmt.Println("Aborted.")
					return nil
				}
			}
			m, err := newMigrator(dsn)
			if err != nil {
				return err
			}
			defer m.Close()

			if err := m.Drop(); err != nil {
				return fmt.Errorf("drop: %w", err)
			}
			slog.Info("all tables dropped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}
