package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/netpanel/pkg/config"
	"github.com/cuemby/netpanel/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "netpanel",
	Short: "netpanel - backend for the VM intnet topology editor",
	Long: `netpanel serves the HTTP API behind the network topology editor:
the saved editor layout, named snapshots, formula presets and the
inventory of virtual machines with their internal networks.

Run "netpanel serve" to start the API. The remaining commands manage
users, presets and snapshots.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"netpanel version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the YAML config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(presetCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "netpanel version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}

// localConfig loads the configuration for commands that work on the data
// directory directly. The auth secret is not required.
func localConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Merge(path)
	if err != nil {
		return cfg, err
	}
	if dir, _ := cmd.Flags().GetString("data-dir"); dir != "" {
		cfg.DataDir = dir
	}
	return cfg, nil
}

// openLocalStore opens the document store named by the configuration. It
// fails while a server holds the bolt database.
func openLocalStore(cfg config.Config) (storage.DocumentStore, error) {
	store, err := storage.Open(cfg.Storage.Driver, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store in %s: %w", cfg.Storage.Driver, cfg.DataDir, err)
	}
	return store, nil
}

// readPassword returns the --password flag, or the first line of stdin
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	if pw, _ := cmd.Flags().GetString("password"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	pw := strings.TrimRight(line, "\r\n")
	if pw == "" {
		return "", errors.New("password must not be empty")
	}
	return pw, nil
}
