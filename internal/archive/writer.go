// Package archive persists relayed trades to TimescaleDB in batches.
//
// The archiver is an optional sink: the relay core never waits on it.
// Enqueue feeds a growable buffer; a consumer goroutine accumulates
// batches and flushes them by size or interval. Duplicate trade IDs are
// absorbed by the insert's conflict clause.
package archive

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ScottLogic/epace-sandbox/internal/model"
)

// Config holds archiver settings.
type Config struct {
	BatchSize     int           // Rows per insert batch
	FlushInterval time.Duration // Max time a row waits before flushing
	BufferSize    int           // Initial input buffer capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		BufferSize:    10000,
	}
}

// Metrics counts archiver activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
}

// tradeRow is the database shape of a trade.
type tradeRow struct {
	TradeID    string
	Symbol     string
	ExecutedAt int64 // µs since epoch
	Side       string
	Quantity   string // numeric, exact
	Price      string // numeric, exact
	Sequence   int64
}

// Writer consumes trades from its buffer and writes them to the trades
// table.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	input *Buffer[model.Trade]
	db    *pgxpool.Pool

	batchMu     sync.Mutex
	batch       []tradeRow
	metrics     Metrics
	flushTicker *time.Ticker

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a trade archiver.
func NewWriter(cfg Config, db *pgxpool.Pool, logger *slog.Logger) *Writer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.BufferSize < 1 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:    cfg,
		logger: logger,
		input:  NewBuffer[model.Trade](cfg.BufferSize),
		db:     db,
		batch:  make([]tradeRow, 0, cfg.BatchSize),
	}
}

// Enqueue accepts a trade for archival without blocking the caller.
// Returns false after Stop.
func (w *Writer) Enqueue(tr model.Trade) bool {
	return w.input.Send(tr)
}

// Start begins consuming and flushing.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("trade archiver started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains goroutines and performs a final flush.
func (w *Writer) Stop(ctx context.Context) error {
	w.input.Close()

	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("trade archiver stopped")
	case <-ctx.Done():
		w.logger.Warn("trade archiver stop timed out")
	}

	w.flush(context.Background())
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop drains the input buffer into batches.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		tr, ok := w.input.TryReceive()
		if !ok {
			select {
			case <-w.ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				continue
			}
		}
		w.handleTrade(tr)
	}
}

// flushLoop flushes on the interval.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleTrade adds a trade to the batch, flushing when full.
func (w *Writer) handleTrade(tr model.Trade) {
	row := transform(tr)

	w.batchMu.Lock()
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flush(w.ctx)
	}
}

// transform converts a trade to its row shape.
func transform(tr model.Trade) tradeRow {
	return tradeRow{
		TradeID:    tr.TradeID,
		Symbol:     string(tr.Symbol),
		ExecutedAt: tr.Timestamp.UnixMicro(),
		Side:       string(tr.Side),
		Quantity:   tr.Quantity.String(),
		Price:      tr.Price.String(),
		Sequence:   tr.Sequence,
	}
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]tradeRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed trades",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []tradeRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO trades (trade_id, symbol, executed_at, side, quantity, price, sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (symbol, trade_id) DO NOTHING
		`, r.TradeID, r.Symbol, r.ExecutedAt, r.Side, r.Quantity, r.Price, r.Sequence)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
