package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/newthinker/botdash/internal/api"
	"github.com/newthinker/botdash/internal/dashboard"
	"github.com/newthinker/botdash/internal/metrics"
	"github.com/newthinker/botdash/internal/router"
	"github.com/newthinker/botdash/internal/storage/history"
	"github.com/newthinker/botdash/internal/view"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dashboard server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := loadEnv(); err != nil {
		return err
	}

	// Load config
	cfg, fromFile, err := loadConfig(cfgFile)
	if err != nil {
		return err
	}

	// Initialize logger
	log, err := newLogger(cfg, debug)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer log.Sync()

	if !fromFile {
		log.Warn("no config file specified, using defaults")
	}

	log.Info("starting botdash server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("backend", cfg.Backend.BaseURL),
	)

	renderer, err := newRenderer(cfg)
	if err != nil {
		return err
	}
	client := newClient(cfg, renderer)
	reg := metrics.NewRegistry()

	// Notifiers and forwarding
	notifiers, err := buildNotifiers(cfg, log)
	if err != nil {
		return err
	}
	fwd := router.New(router.Config{
		ForwardSignals:   cfg.Router.ForwardSignals,
		NoticeLevels:     cfg.Router.NoticeLevels,
		CooldownDuration: cfg.Router.Cooldown,
		SendTimeout:      cfg.Router.SendTimeout,
	}, notifiers, log.Named("router"))
	fwd.SetRecorder(reg)

	opts := []dashboard.Option{
		dashboard.WithLogger(log.Named("dashboard")),
		dashboard.WithRecorder(reg),
		dashboard.WithForwarder(fwd),
	}

	var store *history.MemoryStore
	if cfg.History.Enabled {
		store = history.NewMemoryStore(cfg.History.MaxSize)
		opts = append(opts, dashboard.WithHistory(store))
	}

	// Alert rules raise notices on the controller created below.
	var ctrl *dashboard.Controller
	if evaluator := buildAlerts(cfg, log, func(level view.Level, msg string) {
		ctrl.Notify(level, msg)
	}); evaluator != nil {
		opts = append(opts, dashboard.WithWatcher(evaluator))
	}

	ctrl, err = dashboard.New(client, renderer, dashboard.Options{
		Interval:       cfg.Poll.Interval,
		RequestTimeout: cfg.Poll.RequestTimeout,
		DropStale:      cfg.Poll.DropStale,
		NoticeTTL:      cfg.Notices.TTL,
	}, opts...)
	if err != nil {
		return fmt.Errorf("creating dashboard: %w", err)
	}

	// Create API server
	server, err := api.NewServer(api.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		TemplatesDir:   cfg.Server.TemplatesDir,
		Title:          cfg.Server.Title,
		BackendURL:     cfg.Backend.BaseURL,
		PollInterval:   cfg.Poll.Interval,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPath:    cfg.Metrics.Path,
	}, api.Dependencies{Dashboard: ctrl, Metrics: reg, History: historyStore(store), Router: fwd}, log)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	fwd.StartCleanupRoutine(ctx, 10*time.Minute)

	pollDone := startPolling(ctx, ctrl, client, cfg.Backend.ReadyTimeout, log)

	// Wait for shutdown signal
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			log.Error("server error", zap.Error(err))
		}
		stop()
	}

	log.Info("shutting down botdash server")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ctrl.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := <-pollDone; err != nil {
		log.Warn("poller stopped with error", zap.Error(err))
	}
	return nil
}
