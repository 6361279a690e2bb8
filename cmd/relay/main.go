package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ScottLogic/epace-sandbox/internal/archive"
	"github.com/ScottLogic/epace-sandbox/internal/backoff"
	"github.com/ScottLogic/epace-sandbox/internal/cache"
	"github.com/ScottLogic/epace-sandbox/internal/config"
	"github.com/ScottLogic/epace-sandbox/internal/conn"
	"github.com/ScottLogic/epace-sandbox/internal/database"
	"github.com/ScottLogic/epace-sandbox/internal/feed/ws"
	"github.com/ScottLogic/epace-sandbox/internal/retry"
	"github.com/ScottLogic/epace-sandbox/internal/server"
	"github.com/ScottLogic/epace-sandbox/internal/service"
	"github.com/ScottLogic/epace-sandbox/internal/subs"
	"github.com/ScottLogic/epace-sandbox/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"upstream_url", cfg.Upstream.URL,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Optional trade archiver
	var opts []service.Option
	opts = append(opts, service.WithLogger(logger))

	var archiver *archive.Writer
	if cfg.Archive.Enabled {
		logger.Info("connecting to archive database",
			"host", cfg.Archive.Database.Host,
			"port", cfg.Archive.Database.Port,
			"database", cfg.Archive.Database.Name,
		)

		pool, err := database.Connect(ctx, cfg.Archive.Database)
		if err != nil {
			logger.Error("failed to connect to archive database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		archiver = archive.NewWriter(archive.Config{
			BatchSize:     cfg.Archive.BatchSize,
			FlushInterval: cfg.Archive.FlushInterval,
			BufferSize:    cfg.Archive.BufferSize,
		}, pool, logger)

		if err := archiver.Start(ctx); err != nil {
			logger.Error("failed to start trade archiver", "error", err)
			os.Exit(1)
		}
		opts = append(opts, service.WithTradeSink(archiver))

		logger.Info("trade archiver connected")
	}

	// Upstream feed client
	client := ws.NewClient(ws.Config{
		URL:              cfg.Upstream.URL,
		Token:            cfg.Upstream.Token,
		HandshakeTimeout: cfg.Upstream.HandshakeTimeout,
		WriteTimeout:     cfg.Upstream.WriteTimeout,
		PingInterval:     cfg.Upstream.PingInterval,
		PingTimeout:      cfg.Upstream.PingTimeout,
	}, logger)

	// Connection manager with exponential reconnect backoff
	strategy := backoff.Exponential{
		Initial:    cfg.Backoff.InitialDelay,
		Max:        cfg.Backoff.MaxDelay,
		Multiplier: cfg.Backoff.Multiplier,
	}
	manager := conn.NewManager(client, retry.NewConnector(strategy, logger), logger)

	// Data service
	store := cache.NewStore(cache.Config{MaxTradesPerSymbol: cfg.Cache.MaxTradesPerSymbol}, logger)
	svc := service.NewService(client, manager, store, subs.NewTracker(), opts...)

	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start data service", "error", err)
		os.Exit(1)
	}

	// Query server
	srv := server.NewServer(server.Config{Port: cfg.Server.Port}, svc, logger)
	srv.Start()

	logger.Info("relay running",
		"instance_id", cfg.Instance.ID,
		"server_port", cfg.Server.Port,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("query server shutdown error", "error", err)
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		logger.Error("data service shutdown error", "error", err)
	}
	if archiver != nil {
		if err := archiver.Stop(shutdownCtx); err != nil {
			logger.Error("trade archiver shutdown error", "error", err)
		}
	}

	logger.Info("relay stopped")
}
