package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sadeshmukh/discord-ai/internal/config"
	"github.com/sadeshmukh/discord-ai/internal/providers"
)

// onboardAnswers is what the setup wizard collects. Secrets go to the env
// file, everything else to the config file.
type onboardAnswers struct {
	Token        string
	GeminiKey    string
	AnthropicKey string
	OpenAIKey    string
	OllamaHost   string
	Admins       string
	Invite       string
	StoreMode    string
	DefaultModel string
}

func onboardCmd() *cobra.Command {
	var nonInteractive bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Create botconfig.json and .env interactively",
		Long:  "Walks through the Discord token, provider keys and storage. With --non-interactive the current environment is written out as-is.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			answers := answersFromConfig(cfg)
			if !nonInteractive {
				if err := runOnboardForm(&answers, cfg); err != nil {
					return err
				}
			}
			if answers.Token == "" {
				return errors.New("a Discord bot token is required")
			}
			if err := applyOnboard(cfg, answers, resolveConfigPath(), envFile); err != nil {
				return err
			}
			fmt.Printf("Config saved to %s, secrets to %s.\n", resolveConfigPath(), envFile)
			fmt.Println("Start the bot with: discord-ai run")
			return nil
		},
	}
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "write config from environment variables without prompting")
	return cmd
}

func answersFromConfig(cfg *config.Config) onboardAnswers {
	a := onboardAnswers{
		Token:        cfg.Discord.Token,
		GeminiKey:    cfg.Providers.Google.APIKey,
		AnthropicKey: cfg.Providers.Anthropic.APIKey,
		OpenAIKey:    cfg.Providers.OpenAI.APIKey,
		Admins:       strings.Join(cfg.Admins, ","),
		Invite:       cfg.Invite,
		StoreMode:    cfg.Database.Mode,
		DefaultModel: cfg.DefaultModel,
	}
	if cfg.Providers.Ollama.Enabled {
		a.OllamaHost = cfg.Providers.Ollama.Host
	}
	return a
}

func runOnboardForm(a *onboardAnswers, cfg *config.Config) error {
	modelOpts := []huh.Option[string]{huh.NewOption(a.DefaultModel, a.DefaultModel)}
	if catalog, err := providers.LoadCatalog(config.ExpandHome(cfg.ModelsFile)); err == nil {
		modelOpts = huh.NewOptions(catalog.List("")...)
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Discord bot token").
				EchoMode(huh.EchoModePassword).
				Value(&a.Token),
			huh.NewInput().
				Title("Bot admin user IDs").
				Description("Comma-separated Discord user IDs allowed to run /admin commands.").
				Value(&a.Admins),
			huh.NewInput().
				Title("Support server invite").
				Description("Shown by /about and /discord. Optional.").
				Value(&a.Invite),
		),
		huh.NewGroup(
			huh.NewInput().Title("Gemini API key").EchoMode(huh.EchoModePassword).Value(&a.GeminiKey),
			huh.NewInput().Title("Anthropic API key").EchoMode(huh.EchoModePassword).Value(&a.AnthropicKey),
			huh.NewInput().Title("OpenAI API key").EchoMode(huh.EchoModePassword).Value(&a.OpenAIKey),
			huh.NewInput().
				Title("Ollama host").
				Description("Leave empty to skip local models.").
				Placeholder("http://localhost:11434").
				Value(&a.OllamaHost),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default model").
				Options(modelOpts...).
				Value(&a.DefaultModel),
			huh.NewSelect[string]().
				Title("Guild settings storage").
				Options(
					huh.NewOption("JSON file (data.json)", "file"),
					huh.NewOption("SQLite", "sqlite"),
					huh.NewOption("Postgres (DSN from DISCORD_AI_POSTGRES_DSN)", "postgres"),
				).
				Value(&a.StoreMode),
		),
	).Run()
}

// applyOnboard writes non-secret answers to cfgPath and merges secrets into
// the env file, keeping unrelated variables already there.
func applyOnboard(cfg *config.Config, a onboardAnswers, cfgPath, envPath string) error {
	cfg.DefaultModel = a.DefaultModel
	cfg.Invite = a.Invite
	cfg.Admins = nil
	for _, id := range strings.Split(a.Admins, ",") {
		if id = strings.TrimSpace(id); id != "" {
			cfg.Admins = append(cfg.Admins, id)
		}
	}
	if a.StoreMode != "" {
		cfg.Database.Mode = a.StoreMode
		if a.StoreMode == "sqlite" && cfg.Database.Path == "data.json" {
			cfg.Database.Path = "data.db"
		}
	}
	cfg.Providers.Ollama.Enabled = a.OllamaHost != ""
	cfg.Providers.Ollama.Host = a.OllamaHost

	if err := config.Save(cfgPath, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	env, err := godotenv.Read(envPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("read %s: %w", envPath, err)
	}
	if env == nil {
		env = make(map[string]string)
	}
	setEnv := func(key, value string) {
		if value != "" {
			env[key] = value
		}
	}
	setEnv("TOKEN", a.Token)
	setEnv("GEMINI_API_KEY", a.GeminiKey)
	setEnv("ANTHROPIC_API_KEY", a.AnthropicKey)
	setEnv("OPENAI_API_KEY", a.OpenAIKey)
	if err := godotenv.Write(env, envPath); err != nil {
		return fmt.Errorf("write %s: %w", envPath, err)
	}
	return os.Chmod(envPath, 0600)
}
