// Package service mediates between the in-memory processing core, the
// persistence layer, and the Redis mirror that feeds server-mode processes.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/bahbah94/Orbex/internal/candle"
	"github.com/bahbah94/Orbex/internal/domain"
)

// TradeService handles trade persistence and chart history queries.
type TradeService struct {
	trades domain.TradeStore
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewTradeService creates a TradeService. bus may be nil, in which case
// ingested trades are not announced on the signal bus.
func NewTradeService(trades domain.TradeStore, bus domain.SignalBus, logger *slog.Logger) *TradeService {
	return &TradeService{
		trades: trades,
		bus:    bus,
		logger: logger,
	}
}

// IngestTrades inserts a batch of trades into the store and announces each
// one on the signal bus. Replayed chain positions dedupe inside the store, so
// callers can feed this from an at-least-once event stream.
func (s *TradeService) IngestTrades(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	if err := s.trades.InsertBatch(ctx, trades); err != nil {
		return fmt.Errorf("trade_service: insert batch: %w", err)
	}

	if s.bus != nil {
		for _, t := range trades {
			evt, _ := json.Marshal(map[string]any{
				"event":        "trade_ingested",
				"symbol":       t.Symbol,
				"price":        t.Price,
				"quantity":     t.Quantity,
				"block_number": t.BlockNumber,
				"executed_at":  t.ExecutedAt.Format(time.RFC3339),
			})
			if pubErr := s.bus.Publish(ctx, ChannelTrades, evt); pubErr != nil {
				s.logger.WarnContext(ctx, "trade_service: publish event failed",
					slog.Uint64("block_number", t.BlockNumber),
					slog.String("error", pubErr.Error()),
				)
			}
		}
	}

	s.logger.InfoContext(ctx, "trade_service: ingested trades",
		slog.Int("count", len(trades)),
	)

	return nil
}

// ListTrades returns persisted trades for a symbol, newest first.
func (s *TradeService) ListTrades(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Trade, error) {
	trades, err := s.trades.ListBySymbol(ctx, symbol, opts)
	if err != nil {
		return nil, fmt.Errorf("trade_service: list trades: %w", err)
	}
	return trades, nil
}

// History returns OHLCV bars for a chart resolution over [from, to], oldest
// first. When the range holds no trades, the second return value carries the
// unix time of the last trade before the range, so chart clients can jump
// their next request past the empty stretch; it is nil when no earlier trade
// exists.
func (s *TradeService) History(ctx context.Context, symbol, resolution string, from, to time.Time) ([]domain.TvBar, *int64, error) {
	tf, ok := candle.FromResolution(resolution)
	if !ok {
		return nil, nil, fmt.Errorf("trade_service: unsupported resolution %q", resolution)
	}

	bars, err := s.trades.ListBars(ctx, symbol, tf.Width, from, to)
	if err != nil {
		return nil, nil, fmt.Errorf("trade_service: list bars: %w", err)
	}
	if len(bars) > 0 {
		return bars, nil, nil
	}

	last, err := s.trades.LastTradeTimeBefore(ctx, symbol, from)
	if err != nil {
		return nil, nil, fmt.Errorf("trade_service: last trade before: %w", err)
	}
	if last.IsZero() {
		return nil, nil, nil
	}
	next := last.Unix()
	return nil, &next, nil
}
