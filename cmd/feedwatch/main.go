// feedwatch connects to the upstream trade feed and streams parsed
// events to the console. Useful for eyeballing a feed before pointing a
// relay at it.
//
// Usage: go run ./cmd/feedwatch --config configs/relay.local.yaml --symbols BTC-USD,ETH-USD
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ScottLogic/epace-sandbox/internal/backoff"
	"github.com/ScottLogic/epace-sandbox/internal/cache"
	"github.com/ScottLogic/epace-sandbox/internal/config"
	"github.com/ScottLogic/epace-sandbox/internal/conn"
	"github.com/ScottLogic/epace-sandbox/internal/feed/ws"
	"github.com/ScottLogic/epace-sandbox/internal/model"
	"github.com/ScottLogic/epace-sandbox/internal/retry"
	"github.com/ScottLogic/epace-sandbox/internal/service"
	"github.com/ScottLogic/epace-sandbox/internal/subs"
)

func main() {
	configPath := flag.String("config", "configs/relay.local.yaml", "path to config file")
	symbolsFlag := flag.String("symbols", "BTC-USD", "comma-separated symbols to watch")
	verbose := flag.Bool("verbose", false, "print full trade JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	client := ws.NewClient(ws.Config{
		URL:              cfg.Upstream.URL,
		Token:            cfg.Upstream.Token,
		HandshakeTimeout: cfg.Upstream.HandshakeTimeout,
		WriteTimeout:     cfg.Upstream.WriteTimeout,
		PingInterval:     cfg.Upstream.PingInterval,
		PingTimeout:      cfg.Upstream.PingTimeout,
	}, logger)

	strategy := backoff.Exponential{
		Initial:    cfg.Backoff.InitialDelay,
		Max:        cfg.Backoff.MaxDelay,
		Multiplier: cfg.Backoff.Multiplier,
	}
	manager := conn.NewManager(client, retry.NewConnector(strategy, logger), logger)

	store := cache.NewStore(cache.Config{MaxTradesPerSymbol: cfg.Cache.MaxTradesPerSymbol}, logger)
	svc := service.NewService(client, manager, store, subs.NewTracker(), service.WithLogger(logger))

	// Console printers
	var received, dropped atomic.Int64
	svc.OnTrade(func(tr model.Trade) {
		received.Add(1)
		if *verbose {
			data, _ := json.MarshalIndent(tr, "", "  ")
			fmt.Printf("[TRADE] %s\n", data)
		} else {
			fmt.Printf("[TRADE] symbol=%s id=%s side=%s qty=%s price=%s seq=%d\n",
				tr.Symbol, tr.TradeID, tr.Side, tr.Quantity, tr.Price, tr.Sequence)
		}
	})
	svc.OnSubscriptionUpdate(func(u model.SubscriptionUpdate) {
		fmt.Printf("[SUBSCRIPTION] symbol=%s kind=%s reason=%q\n", u.Symbol, u.Kind, u.Reason)
	})
	svc.OnConnectionLost(func() {
		dropped.Add(1)
		fmt.Println("[CONNECTION] lost, reconnecting...")
	})
	svc.OnConnectionRestored(func() {
		fmt.Println("[CONNECTION] restored, subscriptions replayed")
	})

	logger.Info("connecting", "url", cfg.Upstream.URL)
	if err := svc.Start(ctx); err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}

	for _, raw := range strings.Split(*symbolsFlag, ",") {
		symbol := model.Symbol(strings.TrimSpace(raw))
		if symbol == "" {
			continue
		}
		if err := svc.SubscribeToTrades(ctx, symbol); err != nil {
			logger.Error("subscribe failed", "symbol", symbol, "error", err)
			continue
		}
		logger.Info("watching", "symbol", symbol)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logger.Info("stats",
					"connected", svc.IsConnected(),
					"trades_received", received.Load(),
					"disconnects", dropped.Load(),
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down...")
	svc.Stop(shutdownCtx)

	logger.Info("shutdown complete")
}
