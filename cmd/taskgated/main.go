package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskgate/internal/api"
	"taskgate/internal/config"
	"taskgate/internal/logging"
	taskgatemcp "taskgate/internal/mcp"
	"taskgate/internal/notify"
	"taskgate/internal/scheduler"
	"taskgate/internal/statuslog"
	"taskgate/internal/task"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)

	baseCtx := context.Background()
	statusLog, closeLog, err := openStatusLog(baseCtx, cfg)
	if err != nil {
		logger.Error("open status log", "err", err)
		os.Exit(1)
	}
	defer closeLog()

	var notifier notify.Notifier = notify.NoOp{}
	if cfg.WebhookURL != "" {
		webhook, err := notify.NewWebhook(cfg.WebhookURL)
		if err != nil {
			logger.Error("configure webhook", "err", err)
			os.Exit(1)
		}
		notifier = webhook
	}

	reg := task.NewRegistry(statusLog, logger)

	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	schedOpts := scheduler.Options{
		Interval: cfg.Scheduler.PollInterval,
		Workers:  cfg.Scheduler.Workers,
	}
	var relay *statuslog.Relay
	if cfg.Scheduler.Workers > 0 {
		// Pooled workers must not write the physical log directly; one
		// relay listener owns it.
		relay = statuslog.NewRelay(statusLog)
		schedOpts.LogWriter = relay.Writer()
		go func() {
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("status log relay", "err", err)
			}
		}()
	}
	sched := scheduler.New(reg, logger, schedOpts)
	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("scheduler stopped", "err", err)
		}
	}()

	switch cfg.Mode {
	case "http":
		runHTTPMode(cfg, reg, sched, notifier, logger, cancel, relay)
	case "mcp":
		runMCPMode(reg, sched, logger, cancel)
	case "both":
		runBothMode(cfg, reg, sched, notifier, logger, cancel, relay)
	}
}

func openStatusLog(ctx context.Context, cfg *config.Config) (statuslog.Log, func(), error) {
	switch cfg.StatusLog.Backend {
	case "redis":
		backend, err := statuslog.OpenRedis(cfg.StatusLog.RedisAddr, cfg.StatusLog.RedisPassword, cfg.StatusLog.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { backend.Close() }, nil
	default:
		backend, err := statuslog.Open(ctx, cfg.StatusLog.Path)
		if err != nil {
			return nil, nil, err
		}
		return backend, func() { backend.Close() }, nil
	}
}

// runHTTPMode starts only the HTTP server.
func runHTTPMode(cfg *config.Config, reg *task.Registry, sched *scheduler.Scheduler, notifier notify.Notifier, logger *slog.Logger, cancel context.CancelFunc, relay *statuslog.Relay) {
	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, reg, sched, notifier, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	}

	shutdown(cfg, server, logger, cancel, relay)
}

// runMCPMode starts only the MCP server.
func runMCPMode(reg *task.Registry, sched *scheduler.Scheduler, logger *slog.Logger, cancel context.CancelFunc) {
	mcpServer := taskgatemcp.NewMCPServer(reg, sched, logger)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("received signal, shutting down")
		cancel()
	}()

	if err := mcpServer.Run(); err != nil {
		logger.Error("mcp server error", "err", err)
		os.Exit(1)
	}
}

// runBothMode starts both HTTP and MCP servers.
func runBothMode(cfg *config.Config, reg *task.Registry, sched *scheduler.Scheduler, notifier notify.Notifier, logger *slog.Logger, cancel context.CancelFunc, relay *statuslog.Relay) {
	mcpServer := taskgatemcp.NewMCPServer(reg, sched, logger)
	mcpErr := make(chan error, 1)
	go func() {
		if err := mcpServer.Run(); err != nil {
			mcpErr <- err
		}
	}()

	server := api.NewServer(cfg.Server.Addr, cfg.Server.AuthToken, reg, sched, notifier, logger)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info("received signal", "signal", sig.String())
	case err := <-serverErr:
		logger.Error("server error", "err", err)
	case err := <-mcpErr:
		logger.Error("mcp server error", "err", err)
	}

	shutdown(cfg, server, logger, cancel, relay)
}

func shutdown(cfg *config.Config, server *api.Server, logger *slog.Logger, cancel context.CancelFunc, relay *statuslog.Relay) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", "err", err)
	}

	cancel()
	if relay != nil {
		select {
		case <-relay.Done():
		case <-time.After(cfg.ShutdownGrace):
			logger.Warn("status log relay drain timed out")
		}
	}
	logger.Info("shutdown complete")
}
