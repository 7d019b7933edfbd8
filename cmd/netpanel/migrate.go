package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/netpanel/pkg/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate --from DRIVER --to DRIVER",
	Short: "Copy all documents between storage backends",
	Long: `Copy the layout, snapshots and presets from one storage backend to
another within the same data directory. Stop the server first: the bolt
database cannot be opened twice.

Examples:
  # Move a file-backed installation to bolt
  netpanel migrate --from file --to bolt

  # Show what would be copied
  netpanel migrate --from bolt --to file --dry-run`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("from", storage.DriverFile, "Source storage driver")
	migrateCmd.Flags().String("to", storage.DriverBolt, "Destination storage driver")
	migrateCmd.Flags().String("data-dir", "", "Data directory (overrides the config file)")
	migrateCmd.Flags().Bool("dry-run", false, "Show what would be migrated without making changes")
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	from, _ := cmd.Flags().GetString("from")
	to, _ := cmd.Flags().GetString("to")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	if from == to {
		return fmt.Errorf("--from and --to must differ")
	}

	cfg, err := localConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if to == storage.DriverBolt && !dryRun {
		dbPath := storage.BoltPath(cfg.DataDir)
		backed, err := storage.BackupFile(dbPath, dbPath+".backup")
		if err != nil {
			return fmt.Errorf("failed to back up %s: %w", dbPath, err)
		}
		if backed {
			fmt.Fprintf(out, "✓ Backup created: %s.backup\n", dbPath)
		}
	}

	cfg.Storage.Driver = from
	src, err := openLocalStore(cfg)
	if err != nil {
		return err
	}
	defer src.Close()

	cfg.Storage.Driver = to
	dst, err := openLocalStore(cfg)
	if err != nil {
		return err
	}
	defer dst.Close()

	copied, err := storage.Copy(src, dst, dryRun)
	for _, key := range copied {
		fmt.Fprintf(out, "  %s\n", key)
	}
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Fprintf(out, "%d documents would be copied from %s to %s\n", len(copied), from, to)
		return nil
	}
	fmt.Fprintf(out, "✓ %d documents copied from %s to %s\n", len(copied), from, to)
	return nil
}
