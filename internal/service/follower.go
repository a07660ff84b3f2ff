package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bahbah94/Orbex/internal/broadcast"
	"github.com/bahbah94/Orbex/internal/domain"
)

// Follower is the mirror's counterpart in a server-mode process: it
// subscribes to the Redis channels the mirror publishes on and republishes
// every update into local broadcast channels, so websocket fan-out works the
// same whether the process owns the live book or follows from Redis.
type Follower struct {
	bus     domain.SignalBus
	books   *broadcast.Channel[domain.OrderbookSnapshot]
	candles *broadcast.Channel[domain.CandleUpdate]
	logger  *slog.Logger
}

// NewFollower creates a Follower feeding the given local channels.
func NewFollower(
	bus domain.SignalBus,
	books *broadcast.Channel[domain.OrderbookSnapshot],
	candles *broadcast.Channel[domain.CandleUpdate],
	logger *slog.Logger,
) *Follower {
	return &Follower{
		bus:     bus,
		books:   books,
		candles: candles,
		logger:  logger.With("component", "follower"),
	}
}

// Run follows the Redis channels until the context is cancelled.
func (f *Follower) Run(ctx context.Context) error {
	bookCh, err := f.bus.Subscribe(ctx, ChannelBook)
	if err != nil {
		return err
	}
	candleCh, err := f.bus.Subscribe(ctx, ChannelCandles)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return f.followBooks(ctx, bookCh) })
	g.Go(func() error { return f.followCandles(ctx, candleCh) })
	return g.Wait()
}

func (f *Follower) followBooks(ctx context.Context, ch <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var snap domain.OrderbookSnapshot
			if err := json.Unmarshal(payload, &snap); err != nil {
				f.logger.WarnContext(ctx, "undecodable mirrored book snapshot",
					slog.String("error", err.Error()))
				continue
			}
			f.books.Publish(snap)
		}
	}
}

func (f *Follower) followCandles(ctx context.Context, ch <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			var update domain.CandleUpdate
			if err := json.Unmarshal(payload, &update); err != nil {
				f.logger.WarnContext(ctx, "undecodable mirrored candle update",
					slog.String("error", err.Error()))
				continue
			}
			f.candles.Publish(update)
		}
	}
}
