package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ScottLogic/epace-sandbox/internal/cache"
	"github.com/ScottLogic/epace-sandbox/internal/model"
)

// fakeQuerier scripts TradeQuerier responses for handler tests.
type fakeQuerier struct {
	connected bool
	trades    []model.Trade
	err       error

	lastSymbol model.Symbol
	lastCount  int
	lastBefore time.Time
	lastAfter  time.Time
}

func (f *fakeQuerier) IsConnected() bool { return f.connected }

func (f *fakeQuerier) RecentTrades(symbol model.Symbol, count int) ([]model.Trade, error) {
	f.lastSymbol, f.lastCount = symbol, count
	return f.trades, f.err
}

func (f *fakeQuerier) RecentTradesBefore(symbol model.Symbol, count int, before time.Time) ([]model.Trade, error) {
	f.lastSymbol, f.lastCount, f.lastBefore = symbol, count, before
	return f.trades, f.err
}

func (f *fakeQuerier) TradesSince(symbol model.Symbol, count int, after time.Time) ([]model.Trade, error) {
	f.lastSymbol, f.lastCount, f.lastAfter = symbol, count, after
	return f.trades, f.err
}

func newTestServer(q TradeQuerier) *httptest.Server {
	s := NewServer(Config{Port: 0}, q, nil)
	return httptest.NewServer(s.Handler())
}

func TestHealth_Connected(t *testing.T) {
	srv := newTestServer(&fakeQuerier{connected: true})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body struct {
		Status   string `json:"status"`
		Upstream string `json:"upstream"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "healthy" {
		t.Errorf("status = %q, want healthy", body.Status)
	}
	if body.Upstream != "connected" {
		t.Errorf("upstream = %q, want connected", body.Upstream)
	}
}

func TestHealth_Disconnected(t *testing.T) {
	srv := newTestServer(&fakeQuerier{connected: false})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "degraded" {
		t.Errorf("status = %q, want degraded", body.Status)
	}
}

func TestTrades_Recent(t *testing.T) {
	q := &fakeQuerier{
		connected: true,
		trades: []model.Trade{
			{
				TradeID:   "t-1",
				Symbol:    model.SymbolBTCUSD,
				Side:      model.SideBuy,
				Price:     decimal.RequireFromString("64250.10"),
				Quantity:  decimal.RequireFromString("0.5"),
				Timestamp: time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC),
			},
		},
	}
	srv := newTestServer(q)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/trades?symbol=BTC-USD&count=50")
	if err != nil {
		t.Fatalf("GET /trades: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if q.lastSymbol != model.SymbolBTCUSD {
		t.Errorf("queried symbol = %q, want BTC-USD", q.lastSymbol)
	}
	if q.lastCount != 50 {
		t.Errorf("queried count = %d, want 50", q.lastCount)
	}

	var body struct {
		Symbol string        `json:"symbol"`
		Count  int           `json:"count"`
		Trades []model.Trade `json:"trades"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Count != 1 || len(body.Trades) != 1 {
		t.Fatalf("count = %d, trades = %d, want 1 each", body.Count, len(body.Trades))
	}
	if body.Trades[0].TradeID != "t-1" {
		t.Errorf("TradeID = %q, want t-1", body.Trades[0].TradeID)
	}
}

func TestTrades_DefaultCount(t *testing.T) {
	q := &fakeQuerier{connected: true}
	srv := newTestServer(q)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/trades?symbol=ETH-USD")
	if err != nil {
		t.Fatalf("GET /trades: %v", err)
	}
	resp.Body.Close()

	if q.lastCount != 100 {
		t.Errorf("default count = %d, want 100", q.lastCount)
	}
}

func TestTrades_Before(t *testing.T) {
	q := &fakeQuerier{connected: true}
	srv := newTestServer(q)
	defer srv.Close()

	cutoff := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	resp, err := http.Get(srv.URL + "/trades?symbol=BTC-USD&before=" + cutoff.Format(time.RFC3339))
	if err != nil {
		t.Fatalf("GET /trades: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !q.lastBefore.Equal(cutoff) {
		t.Errorf("before = %v, want %v", q.lastBefore, cutoff)
	}
}

func TestTrades_After(t *testing.T) {
	q := &fakeQuerier{connected: true}
	srv := newTestServer(q)
	defer srv.Close()

	cutoff := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	resp, err := http.Get(srv.URL + "/trades?symbol=BTC-USD&after=" + cutoff.Format(time.RFC3339))
	if err != nil {
		t.Fatalf("GET /trades: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if !q.lastAfter.Equal(cutoff) {
		t.Errorf("after = %v, want %v", q.lastAfter, cutoff)
	}
}

func TestTrades_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"missing symbol", "/trades"},
		{"non-integer count", "/trades?symbol=BTC-USD&count=abc"},
		{"bad before timestamp", "/trades?symbol=BTC-USD&before=yesterday"},
		{"bad after timestamp", "/trades?symbol=BTC-USD&after=yesterday"},
		{"before and after together", "/trades?symbol=BTC-USD&before=2026-03-14T12:00:00Z&after=2026-03-14T11:00:00Z"},
	}

	srv := newTestServer(&fakeQuerier{connected: true})
	defer srv.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.url)
			if err != nil {
				t.Fatalf("GET %s: %v", tt.url, err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
			}
		})
	}
}

func TestTrades_NegativeCountRejected(t *testing.T) {
	srv := newTestServer(&fakeQuerier{connected: true, err: cache.ErrInvalidCount})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/trades?symbol=BTC-USD&count=-1")
	if err != nil {
		t.Fatalf("GET /trades: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}
