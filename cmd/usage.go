package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/sadeshmukh/discord-ai/internal/config"
	"github.com/sadeshmukh/discord-ai/internal/guilds"
	"github.com/sadeshmukh/discord-ai/internal/store"
	"github.com/sadeshmukh/discord-ai/internal/usage"
)

var timeNow = time.Now

func usageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "usage",
		Short: "Inspect or reset per-server token usage",
		Long:  "Reads the guild store directly. Stop the relay before resetting a file or sqlite store.",
	}
	cmd.AddCommand(usageShowCmd())
	cmd.AddCommand(usageResetCmd())
	return cmd
}

func openLedger(cfg *config.Config) (*guilds.Manager, *usage.Ledger, *store.Stores, error) {
	stores, err := openStores(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store: %w", err)
	}
	gm := guilds.NewManager(stores.Guilds, guilds.Defaults{
		Model:         cfg.DefaultModel,
		ContextLength: cfg.ContextLimit,
		TokenLimit:    cfg.TokenLimit,
	})
	ledger := usage.NewLedger(gm, usage.Weights{
		Prompt:     cfg.Usage.PromptWeight,
		Completion: cfg.Usage.CompletionWeight,
	})
	return gm, ledger, stores, nil
}

func usageShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show [guild_id]",
		Short: "Show usage for every server, or one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			gm, ledger, stores, err := openLedger(cfg)
			if err != nil {
				return err
			}
			defer closeStores(stores)

			ctx := cmd.Context()
			ids := args
			if len(ids) == 0 {
				if ids, err = gm.List(ctx); err != nil {
					return err
				}
			}

			var rows [][]string
			for _, id := range ids {
				g, ok, err := gm.Get(ctx, id)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("guild %s has no stored settings", id)
				}
				limit := strconv.FormatInt(g.TokenLimit, 10)
				if g.BypassLimits {
					limit = "bypass"
				}
				rows = append(rows, []string{
					id,
					string(g.ChannelID),
					g.Model,
					strconv.FormatInt(g.Usage.Today, 10),
					limit,
					strconv.FormatInt(g.Usage.Total, 10),
				})
			}
			out := cmd.OutOrStdout()
			printTable(out, []string{"GUILD", "CHANNEL", "MODEL", "TODAY", "LIMIT", "TOTAL"}, rows)

			if len(args) == 0 {
				totals, err := ledger.Totals(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "\n%d servers, %d tokens today, %d total\n", len(rows), totals.Today, totals.Total)
			}
			return nil
		},
	}
}

func usageResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Zero today's usage for every server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			_, ledger, stores, err := openLedger(cfg)
			if err != nil {
				return err
			}
			defer closeStores(stores)

			n, err := ledger.ResetDaily(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset usage for %d servers.\n", n)
			return nil
		},
	}
}
