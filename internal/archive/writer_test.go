package archive

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ScottLogic/epace-sandbox/internal/model"
)

func TestWriter_Transform(t *testing.T) {
	executedAt := time.Date(2026, 3, 14, 9, 30, 0, 123456000, time.UTC)
	tr := model.Trade{
		Sequence:  42,
		Kind:      model.EventUpdated,
		Symbol:    model.SymbolBTCUSD,
		Timestamp: executedAt,
		Side:      model.SideBuy,
		Quantity:  decimal.RequireFromString("0.5"),
		Price:     decimal.RequireFromString("64250.10"),
		TradeID:   "trade-123",
	}

	row := transform(tr)

	if row.TradeID != "trade-123" {
		t.Errorf("TradeID = %s, want trade-123", row.TradeID)
	}
	if row.Symbol != "BTC-USD" {
		t.Errorf("Symbol = %s, want BTC-USD", row.Symbol)
	}
	if row.ExecutedAt != executedAt.UnixMicro() {
		t.Errorf("ExecutedAt = %d, want %d", row.ExecutedAt, executedAt.UnixMicro())
	}
	if row.Side != "buy" {
		t.Errorf("Side = %s, want buy", row.Side)
	}
	if row.Quantity != "0.5" {
		t.Errorf("Quantity = %s, want 0.5", row.Quantity)
	}
	if row.Price != "64250.1" {
		t.Errorf("Price = %s, want 64250.1", row.Price)
	}
	if row.Sequence != 42 {
		t.Errorf("Sequence = %d, want 42", row.Sequence)
	}
}

func TestWriter_Lifecycle(t *testing.T) {
	cfg := Config{
		BatchSize:     10,
		FlushInterval: 100 * time.Millisecond,
		BufferSize:    10,
	}

	// No database: exercises only the goroutine lifecycle.
	w := NewWriter(cfg, nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}

func TestWriter_HandleTradeAddsToBatch(t *testing.T) {
	cfg := Config{
		BatchSize:     100, // large so no auto-flush
		FlushInterval: time.Hour,
		BufferSize:    10,
	}
	w := NewWriter(cfg, nil, nil)

	w.handleTrade(model.Trade{
		TradeID:   "trade-1",
		Symbol:    model.SymbolETHUSD,
		Timestamp: time.Now(),
	})

	w.batchMu.Lock()
	batchLen := len(w.batch)
	w.batchMu.Unlock()

	if batchLen != 1 {
		t.Errorf("batch length = %d, want 1", batchLen)
	}
}

func TestWriter_EnqueueAfterStopReturnsFalse(t *testing.T) {
	w := NewWriter(DefaultConfig(), nil, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if w.Enqueue(model.Trade{TradeID: "late"}) {
		t.Error("Enqueue after Stop = true, want false")
	}
}

func TestWriter_Stats(t *testing.T) {
	w := NewWriter(DefaultConfig(), nil, nil)

	stats := w.Stats()

	if stats.Inserts != 0 {
		t.Errorf("initial Inserts = %d, want 0", stats.Inserts)
	}
	if stats.Errors != 0 {
		t.Errorf("initial Errors = %d, want 0", stats.Errors)
	}
}
