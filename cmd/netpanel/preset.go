package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/netpanel/pkg/events"
	"github.com/cuemby/netpanel/pkg/preset"
)

// Presets have no write routes, they are provisioned here
var presetCmd = &cobra.Command{
	Use:   "preset",
	Short: "Provision formula presets",
}

var presetImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Replace all presets with the contents of a JSON file",
	Long: `Replace the preset collection with the presets in FILE.

FILE is either a JSON array of presets or an object with a "presets" array.
Entries without an id get one. Names must be valid and unique.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		presets, err := preset.ParseImport(data)
		if err != nil {
			return err
		}

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if dryRun {
			fmt.Fprintf(cmd.OutOrStdout(), "%d presets parsed, nothing written\n", len(presets))
			return nil
		}

		cfg, err := localConfig(cmd)
		if err != nil {
			return err
		}
		store, err := openLocalStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := events.WithActor(cmd.Context(), "cli")
		imported, err := preset.NewService(store, nil).Import(ctx, presets)
		if err != nil {
			return err
		}
		for _, p := range imported {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s  %s\n", p.ID, p.Name)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %d presets imported\n", len(imported))
		return nil
	},
}

func init() {
	presetCmd.PersistentFlags().String("data-dir", "", "Data directory (overrides the config file)")
	presetImportCmd.Flags().Bool("dry-run", false, "Only parse the file")

	presetCmd.AddCommand(presetImportCmd)
}
