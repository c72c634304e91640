package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/sadeshmukh/discord-ai/internal/config"
	"github.com/sadeshmukh/discord-ai/internal/providers"
	"github.com/sadeshmukh/discord-ai/internal/store"
	"github.com/sadeshmukh/discord-ai/internal/upgrade"
	"github.com/sadeshmukh/discord-ai/internal/usage"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, credentials and storage health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor(cmd.Context())
		},
	}
}

func runDoctor(ctx context.Context) {
	fmt.Println("discord-ai doctor")
	fmt.Printf("  Version:  %s\n", Version)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s%s\n", cfgPath, fileStatus(cfgPath))
	fmt.Printf("  Env file: %s%s\n", envFile, fileStatus(envFile))

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	fmt.Println()
	fmt.Println("  Discord:")
	checkSecret("Token", cfg.Discord.Token)
	fmt.Printf("    %-12s %d\n", "Admins:", len(cfg.Admins))

	fmt.Println()
	fmt.Println("  Providers:")
	checkSecret("Google", cfg.Providers.Google.APIKey)
	checkSecret("Anthropic", cfg.Providers.Anthropic.APIKey)
	checkSecret("OpenAI", cfg.Providers.OpenAI.APIKey)
	if cfg.Providers.Ollama.Enabled {
		fmt.Printf("    %-12s %s\n", "Ollama:", cfg.Providers.Ollama.Host)
	} else {
		fmt.Printf("    %-12s (not configured)\n", "Ollama:")
	}

	fmt.Println()
	modelsPath := config.ExpandHome(cfg.ModelsFile)
	catalog, err := providers.LoadCatalog(modelsPath)
	if err != nil {
		fmt.Printf("  Models:   %s (ERROR: %s)\n", modelsPath, err)
	} else {
		fmt.Printf("  Models:   %s (%d models)\n", modelsPath, len(catalog.List("")))
		if _, _, err := catalog.Resolve(cfg.DefaultModel); err != nil {
			fmt.Printf("    default model %s is not listed\n", cfg.DefaultModel)
		}
	}

	if s, err := usage.NewResetScheduler(cfg.Usage.ResetSchedule, nil); err != nil {
		fmt.Printf("  Reset:    %s\n", err)
	} else if next, err := s.Next(timeNow()); err == nil {
		fmt.Printf("  Reset:    %q (next %s)\n", cfg.Usage.ResetSchedule, next.Format("2006-01-02 15:04 MST"))
	}

	fmt.Println()
	fmt.Println("  Store:")
	fmt.Printf("    %-12s %s\n", "Mode:", cfg.Database.Mode)
	if cfg.Database.Mode == store.ModePostgres {
		checkPostgres(ctx, cfg.Database.PostgresDSN)
	} else {
		path := cfg.StoreConfig().Path
		fmt.Printf("    %-12s %s%s\n", "Path:", path, fileStatus(path))
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkPostgres(ctx context.Context, dsn string) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}

	s, err := upgrade.CheckSchema(db)
	switch {
	case err != nil:
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
	case s.Dirty:
		fmt.Printf("    %-12s v%d (DIRTY, run: discord-ai migrate force %d)\n", "Schema:", s.CurrentVersion, s.CurrentVersion-1)
	case s.Compatible:
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Printf("    %-12s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
	default:
		fmt.Printf("    %-12s v%d (upgrade needed, run: discord-ai upgrade)\n", "Schema:", s.CurrentVersion)
	}

	pending, err := upgrade.PendingHooks(ctx, db)
	if err == nil {
		if len(pending) > 0 {
			fmt.Printf("    %-12s %d pending\n", "Data hooks:", len(pending))
		} else {
			fmt.Printf("    %-12s all applied\n", "Data hooks:")
		}
	}
}

func fileStatus(path string) string {
	if _, err := os.Stat(path); err != nil {
		return " (NOT FOUND)"
	}
	return " (OK)"
}

func checkSecret(name, secret string) {
	fmt.Printf("    %-12s %s\n", name+":", maskSecret(secret))
}

// maskSecret keeps the first and last four characters of long secrets.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(not configured)"
	case len(s) <= 8:
		return strings.Repeat("*", len(s))
	default:
		return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
	}
}
