package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/SimplyPrint/nfc-reader/internal/api"
	"github.com/SimplyPrint/nfc-reader/internal/config"
	"github.com/SimplyPrint/nfc-reader/internal/core"
	"github.com/SimplyPrint/nfc-reader/internal/events"
	"github.com/SimplyPrint/nfc-reader/internal/logging"
	"github.com/SimplyPrint/nfc-reader/internal/service"
)

const shutdownTimeout = 5 * time.Second

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "nfc-reader",
		Short:        "Local contactless card ID service",
		Long:         "nfc-reader serves the serial number of the next card presented to a PC/SC reader at GET /nfc-card-id.",
		Version:      api.Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (env "+config.EnvConfigPath+")")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("nfc-reader %s\n", api.Version)
			cmd.Printf("Build time: %s\n", api.BuildTime)
			cmd.Printf("Git commit: %s\n", api.GitCommit)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install auto-start service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := service.New(service.Options{ConfigPath: configPath}).Install(); err != nil {
				return fmt.Errorf("failed to install service: %w", err)
			}
			cmd.Println("Auto-start service installed successfully")
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Remove auto-start service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := service.New(service.Options{}).Uninstall(); err != nil {
				return fmt.Errorf("failed to uninstall service: %w", err)
			}
			cmd.Println("Auto-start service removed successfully")
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show auto-start service status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := service.New(service.Options{}).Status()
			if err != nil {
				return err
			}
			cmd.Println(status)
			return nil
		},
	})

	return root
}

// serve runs the HTTP service until SIGINT or SIGTERM.
func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logging.Init(cfg.Logging.Capacity, logging.ParseLevel(cfg.Logging.Level))
	logging.Info(logging.CatSystem, "NFC Reader starting", map[string]any{
		"version": api.Version,
	})

	// Initialize Sentry for crash reporting (opt-in)
	if logging.InitSentry(logging.SentryOptions{
		Enabled:     cfg.Sentry.Enabled,
		DSN:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     api.Version,
	}) {
		logging.Info(logging.CatSystem, "Crash reporting enabled", nil)
	}
	defer logging.FlushSentry(2 * time.Second)

	opts := api.Options{CancelOnDisconnect: cfg.Reader.CancelOnDisconnect}

	reader := core.NewReader(nil)
	opts.Reader = reader
	opts.Lister = reader

	if cfg.MQTT.Enabled {
		pub, err := events.ConnectMQTT(cfg.MQTT)
		if err != nil {
			// Card reads still work without the broker
			logging.Error(logging.CatEvents, "MQTT unavailable, card reads will not be published", map[string]any{
				"broker": cfg.MQTT.Broker,
				"error":  err.Error(),
			})
		} else {
			defer pub.Close()
			opts.Publisher = pub
		}
	}

	apiServer := api.NewServer(opts)
	defer apiServer.Close()

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      apiServer.Handler(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		IdleTimeout:  cfg.IdleTimeout(),
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Printf("nfc-reader %s listening on http://%s\n", api.Version, srv.Addr)
		log.Printf("WebSocket available at ws://%s/v1/ws\n", srv.Addr)
		logging.Info(logging.CatSystem, "Server started", map[string]any{
			"address": srv.Addr,
		})
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logging.Error(logging.CatSystem, "Server failed", map[string]any{"error": err.Error()})
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	logging.Info(logging.CatSystem, "Shutting down", nil)

	// A pending card read holds its connection open indefinitely; stop waiting
	// after shutdownTimeout and close what is left.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	return nil
}
