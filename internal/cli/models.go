package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/andreytim/dreamytin-ai/internal/config"
	"github.com/andreytim/dreamytin-ai/pkg/provider"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List available models",
	Long: `List the models in the catalog. Models whose provider has no
configured API key are marked unavailable.`,
	RunE: runModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}

func runModels(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	catalog, err := provider.NewCatalog(cfg.Models)
	if err != nil {
		return fmt.Errorf("invalid model catalog: %w", err)
	}
	configured := provider.NewFactory(cfg.Providers).Configured()

	out := cmd.OutOrStdout()
	for _, m := range catalog.List() {
		status := "unavailable"
		if configured[m.Provider] {
			status = "available"
		}
		tools := ""
		if m.SupportsTools {
			tools = " tools"
		}
		def := ""
		if m.ID == cfg.Agent.DefaultModel {
			def = " (default)"
		}
		fmt.Fprintf(out, "%-20s %-10s %-12s%s%s\n", m.ID, m.Provider, status, tools, def)
	}
	return nil
}
