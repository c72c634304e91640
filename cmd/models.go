package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sadeshmukh/discord-ai/internal/config"
	"github.com/sadeshmukh/discord-ai/internal/providers"
)

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect the models catalog",
	}
	cmd.AddCommand(modelsListCmd())
	return cmd
}

func modelsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [provider]",
		Short: "List available models, optionally for one provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			catalog, err := providers.LoadCatalog(config.ExpandHome(cfg.ModelsFile))
			if err != nil {
				return err
			}
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			models := catalog.List(filter)
			if len(models) == 0 {
				return fmt.Errorf("no models for provider %q", filter)
			}
			out := cmd.OutOrStdout()
			for _, m := range models {
				marker := ""
				if m == cfg.DefaultModel {
					marker = " (default)"
				}
				fmt.Fprintf(out, "%s%s\n", m, marker)
			}
			return nil
		},
	}
}
