package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/bahbah94/Orbex/internal/broadcast"
	"github.com/bahbah94/Orbex/internal/domain"
)

// Redis channel and stream names shared between the mirroring writer and
// server-mode followers.
const (
	ChannelBook         = "orbex:events:book"
	ChannelCandles      = "orbex:events:candles"
	ChannelTrades       = "orbex:events:trades"
	StreamCandlesClosed = "orbex:stream:candles:closed"
)

// Mirror copies live broadcast output into Redis: the latest book snapshot
// into the cache, every update onto a pub/sub channel, and closed candles
// additionally onto a durable stream. Detached server processes serve reads
// and follow updates from that mirror alone.
//
// The mirror is a plain subscriber; when Redis is slow enough that it lags
// the broadcast ring it skips ahead to the oldest retained update rather
// than slowing the event path down.
type Mirror struct {
	books   *broadcast.Subscriber[domain.OrderbookSnapshot]
	candles *broadcast.Subscriber[domain.CandleUpdate]
	cache   domain.BookCache
	bus     domain.SignalBus
	logger  *slog.Logger
}

// NewMirror creates a Mirror over the given subscriptions.
func NewMirror(
	books *broadcast.Subscriber[domain.OrderbookSnapshot],
	candles *broadcast.Subscriber[domain.CandleUpdate],
	cache domain.BookCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *Mirror {
	return &Mirror{
		books:   books,
		candles: candles,
		cache:   cache,
		bus:     bus,
		logger:  logger.With("component", "mirror"),
	}
}

// Run mirrors until the context is cancelled or the broadcast channels
// close. A closed channel is a clean shutdown, not an error.
func (m *Mirror) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return m.mirrorBooks(ctx) })
	g.Go(func() error { return m.mirrorCandles(ctx) })
	return g.Wait()
}

func (m *Mirror) mirrorBooks(ctx context.Context) error {
	for {
		snap, err := m.books.Recv(ctx)
		if err != nil {
			if cont, err := m.recvErr(ctx, err, "book"); !cont {
				return err
			}
			continue
		}

		payload, err := json.Marshal(snap)
		if err != nil {
			m.logger.WarnContext(ctx, "marshal book snapshot failed", slog.String("error", err.Error()))
			continue
		}

		if err := m.cache.SetSnapshot(ctx, snap); err != nil {
			m.logger.WarnContext(ctx, "mirror book cache write failed",
				slog.String("symbol", snap.Symbol),
				slog.String("error", err.Error()),
			)
		}
		if err := m.bus.Publish(ctx, ChannelBook, payload); err != nil {
			m.logger.WarnContext(ctx, "mirror book publish failed",
				slog.String("symbol", snap.Symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (m *Mirror) mirrorCandles(ctx context.Context) error {
	for {
		update, err := m.candles.Recv(ctx)
		if err != nil {
			if cont, err := m.recvErr(ctx, err, "candle"); !cont {
				return err
			}
			continue
		}

		payload, err := json.Marshal(update)
		if err != nil {
			m.logger.WarnContext(ctx, "marshal candle update failed", slog.String("error", err.Error()))
			continue
		}

		if err := m.bus.Publish(ctx, ChannelCandles, payload); err != nil {
			m.logger.WarnContext(ctx, "mirror candle publish failed",
				slog.String("symbol", update.Symbol),
				slog.String("error", err.Error()),
			)
		}
		if update.IsClosed {
			if err := m.bus.StreamAppend(ctx, StreamCandlesClosed, payload); err != nil {
				m.logger.WarnContext(ctx, "mirror candle stream append failed",
					slog.String("symbol", update.Symbol),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// recvErr classifies a Recv error: lag is logged and survivable, a closed
// channel ends the loop cleanly, anything else (context cancellation)
// propagates.
func (m *Mirror) recvErr(ctx context.Context, err error, kind string) (cont bool, _ error) {
	var lagged *broadcast.LaggedError
	if errors.As(err, &lagged) {
		m.logger.WarnContext(ctx, "mirror lagged behind broadcast",
			slog.String("updates", kind),
			slog.Uint64("skipped", lagged.Skipped),
		)
		return true, nil
	}
	if errors.Is(err, broadcast.ErrClosed) {
		return false, nil
	}
	return false, err
}
