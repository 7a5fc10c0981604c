package app

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"

	"github.com/arkeo-network/arkeo-cache-sync/internal/config"
	"github.com/arkeo-network/arkeo-cache-sync/internal/httpclient"
	"github.com/arkeo-network/arkeo-cache-sync/internal/metadata"
	"github.com/arkeo-network/arkeo-cache-sync/internal/sources"
	"github.com/arkeo-network/arkeo-cache-sync/internal/status"
	"github.com/arkeo-network/arkeo-cache-sync/internal/storage"
	internalsync "github.com/arkeo-network/arkeo-cache-sync/internal/sync"
	"github.com/arkeo-network/arkeo-cache-sync/internal/sync/coordinator"
	"github.com/arkeo-network/arkeo-cache-sync/internal/telemetry"
	"github.com/arkeo-network/arkeo-cache-sync/internal/views"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the cache synchronization loop",
	Long: `Run the cache synchronization loop against the configured Arkeo node.

Each cycle queries every configured source, resolves provider metadata, and
rewrites the derived view artifacts in the cache directory. With --once a
single cycle runs and the process exits.`,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().String("config", "", "Path to configuration file (YAML format)")
	syncCmd.Flags().Bool("once", false, "Run a single sync cycle and exit")

	if err := viper.BindPFlag("config", syncCmd.Flags().Lookup("config")); err != nil {
		slog.Error("Error binding config flag", "error", err)
	}
	if err := viper.BindPFlag("once", syncCmd.Flags().Lookup("once")); err != nil {
		slog.Error("Error binding once flag", "error", err)
	}
}

func runSync(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []config.Option
	if path := viper.GetString("config"); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}
	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	slog.Info("Loaded configuration",
		"cache_dir", cfg.CacheDir,
		"node", cfg.Node.Endpoint,
		"strategy", cfg.Views.Strategy,
		"interval", cfg.Sync.Interval)

	strategy, err := views.NewStrategy(cfg.Views.Strategy)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// The global meter provider is a no-op unless a deployment installs an
	// SDK; the instruments degrade to nothing either way.
	metrics, err := telemetry.NewSyncMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create sync metrics: %w", err)
	}

	store := storage.NewFileStore(cfg.CacheDir)
	client := httpclient.NewDefaultClient(cfg.Metadata.FetchTimeout)
	resolver := metadata.NewResolver(store, client)
	manager := internalsync.NewManager(
		cfg, store, sources.NewAdapter(), resolver, strategy, metrics)
	recorder := status.NewRecorder(store)

	coord := coordinator.New(cfg, manager, recorder, metrics)
	return coord.Run(ctx, viper.GetBool("once"))
}
