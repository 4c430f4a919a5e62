package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amoylab/chatterbox/internal/bus"
	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/common/config"
	"github.com/amoylab/chatterbox/internal/gateway"
	"github.com/amoylab/chatterbox/internal/identity"
	"github.com/amoylab/chatterbox/internal/message"
	"github.com/amoylab/chatterbox/internal/presence"
	"github.com/amoylab/chatterbox/internal/registry"
	"github.com/amoylab/chatterbox/internal/room"
	"github.com/amoylab/chatterbox/internal/server"
	"github.com/amoylab/chatterbox/internal/session"
	"github.com/amoylab/chatterbox/internal/storage"
	"github.com/amoylab/chatterbox/pkg/helper"
	"github.com/amoylab/chatterbox/pkg/logger"
	"github.com/amoylab/chatterbox/pkg/metrics"
	"github.com/amoylab/chatterbox/pkg/trace"
	"github.com/amoylab/chatterbox/pkg/version"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of chatserver",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chatserver version %s\n", version.Get())
		},
	}

	testCmd = &cobra.Command{
		Use:   "test",
		Short: "Test the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfgPath, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("configuration file %s is invalid: %w", cfgPath, err)
			}
			fmt.Printf("configuration file %s is valid\n", cfgPath)
			return nil
		},
	}

	stopCmd = &cobra.Command{
		Use:   "stop",
		Short: "Stop a running chatserver using its PID file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.LoadConfig(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := helper.NewPIDFile(cfg.PID).Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("failed to stop chatserver: %w", err)
			}
			fmt.Println("stop signal sent to chatserver")
			return nil
		},
	}

	rootCmd = &cobra.Command{
		Use:   "chatserver",
		Short: "Realtime chat server",
		Long:  "chatserver serves websocket chat clients with shared presence and cross-process fan-out",
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "conf", "c", cnst.ChatServerYaml, "path to configuration file, like /etc/chatterbox/chatserver.yaml")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(testCmd)
	rootCmd.AddCommand(stopCmd)
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("Loaded configuration", zap.String("path", cfgPath), zap.String("version", version.Get()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
	if err != nil {
		lg.Fatal("Failed to initialize tracing", zap.Error(err))
	}

	pidFile := helper.NewPIDFile(cfg.PID)
	if err := pidFile.Write(); err != nil {
		lg.Fatal("Failed to write PID file", zap.String("path", pidFile.Path()), zap.Error(err))
	}
	defer func() {
		if err := pidFile.Remove(); err != nil {
			lg.Warn("Failed to remove PID file", zap.Error(err))
		}
	}()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
	}

	backend, err := presence.NewBackend(ctx, lg, &cfg.Presence)
	if err != nil {
		lg.Fatal("Failed to initialize presence backend", zap.Error(err))
	}
	presenceOpts := []presence.Option{presence.WithBlockingCleanup(cfg.Presence.BlockingCleanup)}
	if m != nil {
		presenceOpts = append(presenceOpts, presence.WithExpireObserver(m.PresenceExpired))
	}
	pres := presence.NewStore(lg, backend, cfg.Presence.Window, presenceOpts...)
	defer pres.Close()

	eventBus, err := bus.NewBus(ctx, lg, &cfg.Bus)
	if err != nil {
		lg.Fatal("Failed to initialize event bus", zap.Error(err))
	}
	defer eventBus.Close()

	var storeOpts []storage.Option
	if m != nil {
		storeOpts = append(storeOpts, storage.WithRetryObserver(m.StoreRetried))
	}
	store, err := storage.Open(lg, &cfg.Database, cfg.Storage, storeOpts...)
	if err != nil {
		lg.Fatal("Failed to initialize database", zap.Error(err))
	}
	defer store.Close()

	reg := registry.New()
	events, err := eventBus.Subscribe(ctx)
	if err != nil {
		lg.Fatal("Failed to subscribe to event bus", zap.Error(err))
	}
	var routerOpts []room.RouterOption
	if m != nil {
		routerOpts = append(routerOpts, room.WithDeliverObserver(m.EventRouted))
	}
	go room.NewRouter(lg, reg, routerOpts...).Run(ctx, events)

	var gatewayOpts []gateway.Option
	if m != nil {
		gatewayOpts = append(gatewayOpts, gateway.WithObserver(m))
	}
	gw := gateway.New(lg, cfg.Socket, session.Deps{
		Presence: pres,
		Bus:      eventBus,
		Accounts: identity.NewService(lg, store, identity.DefaultCost),
		Messages: message.NewService(lg, store, cfg.Storage.PageSize),
	}, reg, gatewayOpts...)

	srv := server.NewServer(lg, cfg, gw, m)
	srv.RegisterRoutes()
	srv.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	lg.Info("Received shutdown signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("Failed to shutdown server", zap.Error(err))
	}
	cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		lg.Warn("Failed to shutdown tracing", zap.Error(err))
	}
	lg.Info("Server stopped")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
