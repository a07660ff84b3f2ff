package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bahbah94/Orbex/internal/domain"
	"github.com/bahbah94/Orbex/internal/orderbook"
)

// BookSource hands out orderbook snapshots regardless of whether this
// process owns the live book or follows a mirror.
type BookSource interface {
	BookSnapshot(ctx context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error)
}

// LiveBook serves snapshots straight from the in-process reducer.
type LiveBook struct {
	book   *orderbook.Book
	symbol string
}

// NewLiveBook wraps the reducer for the one symbol it tracks.
func NewLiveBook(book *orderbook.Book, symbol string) *LiveBook {
	return &LiveBook{book: book, symbol: symbol}
}

// BookSnapshot returns a snapshot of the live book.
func (lb *LiveBook) BookSnapshot(_ context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error) {
	if symbol != lb.symbol {
		return domain.OrderbookSnapshot{}, fmt.Errorf("book_source: %q: %w", symbol, domain.ErrUnknownSymbol)
	}
	return lb.book.Snapshot(depth), nil
}

// CachedBook serves snapshots from the Redis mirror. Server-mode processes
// use it so they never need a chain connection.
type CachedBook struct {
	cache domain.BookCache
}

// NewCachedBook wraps the mirror cache.
func NewCachedBook(cache domain.BookCache) *CachedBook {
	return &CachedBook{cache: cache}
}

// BookSnapshot returns the most recently mirrored snapshot, truncated to
// depth levels per side.
func (cb *CachedBook) BookSnapshot(ctx context.Context, symbol string, depth int) (domain.OrderbookSnapshot, error) {
	snap, err := cb.cache.GetSnapshot(ctx, symbol)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("book_source: cached snapshot %s: %w", symbol, err)
	}
	return truncateSnapshot(snap, depth), nil
}

func truncateSnapshot(snap domain.OrderbookSnapshot, depth int) domain.OrderbookSnapshot {
	if depth <= 0 {
		return snap
	}
	if len(snap.Bids) > depth {
		snap.Bids = snap.Bids[:depth]
	}
	if len(snap.Asks) > depth {
		snap.Asks = snap.Asks[:depth]
	}
	return snap
}

// CandleSource hands out recent closed bars and the current open bar so
// websocket subscribers start with context instead of an empty chart.
type CandleSource interface {
	RecentClosed(ctx context.Context, symbol, timeframe string, limit int) ([]domain.TvBar, error)

	// CurrentBar returns the still-open bar for (symbol, timeframe). ok is
	// false when no bar is open or the source cannot know open bars.
	CurrentBar(ctx context.Context, symbol, timeframe string) (bar domain.TvBar, ok bool, err error)
}

// BarReader is the aggregator query surface LiveCandles needs.
type BarReader interface {
	RecentBars(symbol, label string, limit int) []domain.TvBar
	CurrentBar(symbol, label string) (domain.TvBar, bool)
}

// LiveCandles serves bars from the in-process aggregator.
type LiveCandles struct {
	agg BarReader
}

// NewLiveCandles wraps the aggregator.
func NewLiveCandles(agg BarReader) *LiveCandles {
	return &LiveCandles{agg: agg}
}

// RecentClosed returns up to limit closed bars, oldest first.
func (lc *LiveCandles) RecentClosed(_ context.Context, symbol, timeframe string, limit int) ([]domain.TvBar, error) {
	return lc.agg.RecentBars(symbol, timeframe, limit), nil
}

// CurrentBar returns the open bar straight from the aggregator.
func (lc *LiveCandles) CurrentBar(_ context.Context, symbol, timeframe string) (domain.TvBar, bool, error) {
	bar, ok := lc.agg.CurrentBar(symbol, timeframe)
	return bar, ok, nil
}

// streamReadBatch bounds one catch-up read from the closed-candle stream.
const streamReadBatch = 1000

// StreamCandles serves recent closed bars from the durable Redis stream that
// the mirror appends to on every bucket rollover.
type StreamCandles struct {
	bus domain.SignalBus
}

// NewStreamCandles wraps the signal bus.
func NewStreamCandles(bus domain.SignalBus) *StreamCandles {
	return &StreamCandles{bus: bus}
}

// RecentClosed reads the closed-candle stream and returns the last limit bars
// matching (symbol, timeframe), oldest first.
func (sc *StreamCandles) RecentClosed(ctx context.Context, symbol, timeframe string, limit int) ([]domain.TvBar, error) {
	msgs, err := sc.bus.StreamRead(ctx, StreamCandlesClosed, "0", streamReadBatch)
	if err != nil {
		return nil, fmt.Errorf("book_source: read candle stream: %w", err)
	}

	var bars []domain.TvBar
	for _, msg := range msgs {
		var update domain.CandleUpdate
		if err := json.Unmarshal(msg.Payload, &update); err != nil {
			continue
		}
		if update.Symbol != symbol || update.Timeframe != timeframe {
			continue
		}
		bars = append(bars, update.Bar)
	}

	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

// CurrentBar always reports no open bar: only bucket rollovers reach the
// durable stream, so a follower cannot see the open bucket.
func (sc *StreamCandles) CurrentBar(context.Context, string, string) (domain.TvBar, bool, error) {
	return domain.TvBar{}, false, nil
}
