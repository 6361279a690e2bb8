// Package server exposes the relay's cached trades and health over
// HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ScottLogic/epace-sandbox/internal/cache"
	"github.com/ScottLogic/epace-sandbox/internal/model"
)

// TradeQuerier is the slice of the data service the server reads from.
type TradeQuerier interface {
	IsConnected() bool
	RecentTrades(symbol model.Symbol, count int) ([]model.Trade, error)
	RecentTradesBefore(symbol model.Symbol, count int, before time.Time) ([]model.Trade, error)
	TradesSince(symbol model.Symbol, count int, after time.Time) ([]model.Trade, error)
}

// Config holds HTTP server settings.
type Config struct {
	Port int
}

// Server serves trade queries and health checks.
type Server struct {
	cfg    Config
	svc    TradeQuerier
	logger *slog.Logger
	http   *http.Server
}

// NewServer creates the query server.
func NewServer(cfg Config, svc TradeQuerier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		svc:    svc,
		logger: logger,
	}
	s.http = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the route mux, exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /trades", s.handleTrades)
	return mux
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.logger.Info("query server listening", "port", s.cfg.Port)
		if err := s.http.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("query server error", "error", err)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status   string `json:"status"`
		Upstream string `json:"upstream"`
	}{
		Status:   "healthy",
		Upstream: "connected",
	}
	if !s.svc.IsConnected() {
		health.Status = "degraded"
		health.Upstream = "disconnected"
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}

// handleTrades serves GET /trades?symbol=...&count=...[&before=...|&after=...]
// Timestamps are RFC 3339. before and after are mutually exclusive.
func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	symbol := model.Symbol(q.Get("symbol"))
	if symbol == "" {
		httpError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	count := 100
	if raw := q.Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpError(w, http.StatusBadRequest, "count must be an integer")
			return
		}
		count = n
	}

	beforeRaw, afterRaw := q.Get("before"), q.Get("after")
	if beforeRaw != "" && afterRaw != "" {
		httpError(w, http.StatusBadRequest, "before and after are mutually exclusive")
		return
	}

	var (
		trades []model.Trade
		err    error
	)
	switch {
	case beforeRaw != "":
		var before time.Time
		if before, err = time.Parse(time.RFC3339Nano, beforeRaw); err != nil {
			httpError(w, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		trades, err = s.svc.RecentTradesBefore(symbol, count, before)
	case afterRaw != "":
		var after time.Time
		if after, err = time.Parse(time.RFC3339Nano, afterRaw); err != nil {
			httpError(w, http.StatusBadRequest, "after must be an RFC 3339 timestamp")
			return
		}
		trades, err = s.svc.TradesSince(symbol, count, after)
	default:
		trades, err = s.svc.RecentTrades(symbol, count)
	}

	if err != nil {
		if errors.Is(err, cache.ErrInvalidCount) {
			httpError(w, http.StatusBadRequest, "count must be >= 0")
			return
		}
		s.logger.Error("trade query failed", "symbol", symbol, "error", err)
		httpError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(struct {
		Symbol model.Symbol  `json:"symbol"`
		Count  int           `json:"count"`
		Trades []model.Trade `json:"trades"`
	}{
		Symbol: symbol,
		Count:  len(trades),
		Trades: trades,
	})
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
