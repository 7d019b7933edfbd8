package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/netpanel/pkg/api"
	"github.com/cuemby/netpanel/pkg/config"
	"github.com/cuemby/netpanel/pkg/events"
	"github.com/cuemby/netpanel/pkg/inventory"
	"github.com/cuemby/netpanel/pkg/log"
	"github.com/cuemby/netpanel/pkg/metrics"
	"github.com/cuemby/netpanel/pkg/network"
	"github.com/cuemby/netpanel/pkg/preset"
	"github.com/cuemby/netpanel/pkg/security"
	"github.com/cuemby/netpanel/pkg/snapshot"
	"github.com/cuemby/netpanel/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the netpanel API server",
	Long: `Run the netpanel HTTP API until interrupted.

Settings come from the config file, overridden by the environment:
SECRET_KEY, ALGORITHM, ACCESS_TOKEN_EXPIRE_MINUTES, ACCESS_GROUP_GID,
NETPANEL_LISTEN, NETPANEL_DATA_DIR and NETPANEL_LOG_LEVEL.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("log-json", false, "Write logs as JSON")
}

func runServe(cmd *cobra.Command, _ []string) error {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	jsonLogs, _ := cmd.Flags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON || jsonLogs,
	})
	metrics.SetVersion(Version)
	logger := log.WithComponent("serve")

	store, err := storage.Open(cfg.Storage.Driver, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()
	metrics.UpdateComponent("storage", true, "")

	inv, closeInventory, err := openInventory(cfg)
	if err != nil {
		return err
	}
	defer closeInventory()

	users, err := security.NewUsersFile(cfg.UsersPath())
	if err != nil {
		return fmt.Errorf("failed to open users file: %w", err)
	}
	if len(users.List()) == 0 {
		logger.Warn().Str("path", users.Path()).Msg("No users configured, add one with 'netpanel user add'")
	}

	tokens, err := security.NewTokenIssuer(cfg.Auth.SecretKey, cfg.Auth.Algorithm, cfg.TokenTTL())
	if err != nil {
		return err
	}
	authorizer := security.NewGroupAuthorizer(cfg.Auth.AccessGroupGID)
	if authorizer.GID() == "" {
		logger.Warn().Msg("ACCESS_GROUP_GID is not set, every authenticated user may use the panel")
	}

	broker := events.NewBroker()

	var presetOpts []preset.Option
	if fs, ok := store.(*storage.FileStore); ok {
		// presets are provisioned by editing the file, serve them from cache
		presetOpts = append(presetOpts, preset.WithWatchPath(fs.Path(storage.KeyPresets)))
	}
	presets := preset.NewService(store, broker, presetOpts...)

	server, err := api.NewServer(api.Config{
		Listen:         cfg.Listen,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		LoginRate:      cfg.Auth.LoginRate,
		LoginBurst:     cfg.Auth.LoginBurst,
	}, api.Deps{
		Store:      store,
		Snapshots:  snapshot.NewService(store, broker),
		Presets:    presets,
		Network:    network.NewService(store, inv, network.NewLogApplier(), broker),
		Inventory:  inv,
		Identity:   users,
		Tokens:     tokens,
		Authorizer: authorizer,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info().
		Str("version", Version).
		Str("data_dir", cfg.DataDir).
		Str("storage", cfg.Storage.Driver).
		Str("inventory", cfg.Inventory.Driver).
		Str("access_group", authorizer.GID()).
		Dur("token_ttl", tokens.TTL()).
		Msg("Starting netpanel")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return broker.Run(ctx) })
	g.Go(func() error { return events.RunAuditLog(ctx, broker) })
	g.Go(func() error { return presets.Watch(ctx) })
	g.Go(func() error { return metrics.NewCollector(inv, cfg.Metrics.CollectInterval).Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}

// openInventory builds the configured VM inventory and a function releasing it
func openInventory(cfg config.Config) (inventory.Inventory, func(), error) {
	switch cfg.Inventory.Driver {
	case config.InventoryLibvirt:
		inv, err := inventory.NewLibvirtInventory(inventory.LibvirtConfig{
			SocketPath:   cfg.Inventory.LibvirtSocket,
			DomainSuffix: cfg.Inventory.DomainSuffix,
			Timeout:      cfg.Inventory.Timeout,
		})
		if err != nil {
			return nil, nil, err
		}
		return inv, func() { _ = inv.Close() }, nil

	default:
		if cfg.Inventory.File == "" {
			logger := log.WithComponent("serve")
			logger.Warn().Msg("No inventory file configured, serving the demo inventory")
			return inventory.NewDemoInventory(), func() {}, nil
		}
		inv, err := inventory.NewStaticInventory(cfg.Inventory.File)
		if err != nil {
			return nil, nil, err
		}
		return inv, func() {}, nil
	}
}
