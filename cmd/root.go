package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sadeshmukh/discord-ai/internal/config"
)

// Version is set at build time via -ldflags "-X github.com/sadeshmukh/discord-ai/cmd.Version=v1.0.0"
var Version = "dev"

var (
	cfgFile string
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "discord-ai",
	Short: "LLM chat relay for Discord",
	Long:  "discord-ai relays Discord channel conversations to Gemini, Claude, OpenAI or Ollama models, with per-server settings and daily token budgets.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		if err := config.LoadDotEnv(envFile); err != nil {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay(cmd.Context())
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: botconfig.json or $DISCORD_AI_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file with tokens and API keys")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(onboardCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(doctorCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(usageCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(upgradeCmd())
}

func setupLogging() {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Connect to Discord and start relaying (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cmd.Context())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("discord-ai %s (%s, %s/%s)\n", Version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv("DISCORD_AI_CONFIG"); v != "" {
		return v
	}
	return "botconfig.json"
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// Execute runs the root cobra command.
// SIGINT and SIGTERM cancel the command context.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
