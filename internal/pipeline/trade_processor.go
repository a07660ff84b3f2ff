package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bahbah94/Orbex/internal/domain"
)

// TradeIngester persists executed trades.
type TradeIngester interface {
	IngestTrades(ctx context.Context, trades []domain.Trade) error
}

// BarAggregator folds executed trades into OHLCV bars.
type BarAggregator interface {
	ProcessTrade(symbol string, price, quantity decimal.Decimal, ts int64)
}

// TradeProcessor is the envelope around one decoded TradeExecuted event: it
// converts the scaled integer amounts into decimals, hands the trade to
// persistence, and feeds the aggregator. The two effects are independent;
// a persistence failure is logged and the trade still reaches the bars.
// Replayed events are deduplicated by the store, not here.
type TradeProcessor struct {
	trades  TradeIngester
	candles BarAggregator
	logger  *slog.Logger
}

// NewTradeProcessor creates a TradeProcessor. Either collaborator may be nil,
// in which case its side effect is skipped.
func NewTradeProcessor(trades TradeIngester, candles BarAggregator, logger *slog.Logger) *TradeProcessor {
	return &TradeProcessor{
		trades:  trades,
		candles: candles,
		logger:  logger,
	}
}

// Process handles one executed trade decoded from block blockNumber at event
// position eventIndex within that block.
func (p *TradeProcessor) Process(ctx context.Context, ev domain.TradeExecuted, blockNumber uint64, eventIndex int) {
	price := domain.FromScaled(ev.Price)
	quantity := domain.FromScaled(ev.Quantity)

	if p.trades != nil {
		trade := domain.Trade{
			Symbol:      ev.Symbol,
			Price:       price,
			Quantity:    quantity,
			BlockNumber: blockNumber,
			EventIndex:  eventIndex,
			ExecutedAt:  time.Unix(ev.Timestamp, 0).UTC(),
		}
		if err := p.trades.IngestTrades(ctx, []domain.Trade{trade}); err != nil {
			p.logger.WarnContext(ctx, "trade persist failed, continuing",
				slog.String("symbol", ev.Symbol),
				slog.Uint64("block", blockNumber),
				slog.Int("event_index", eventIndex),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.candles != nil {
		p.candles.ProcessTrade(ev.Symbol, price, quantity, ev.Timestamp)
	}
}
