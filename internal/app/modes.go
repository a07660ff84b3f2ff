package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bahbah94/Orbex/internal/broadcast"
	"github.com/bahbah94/Orbex/internal/candle"
	"github.com/bahbah94/Orbex/internal/domain"
	"github.com/bahbah94/Orbex/internal/ingest"
	"github.com/bahbah94/Orbex/internal/orderbook"
	"github.com/bahbah94/Orbex/internal/pipeline"
	"github.com/bahbah94/Orbex/internal/platform/node"
	"github.com/bahbah94/Orbex/internal/server"
	"github.com/bahbah94/Orbex/internal/server/handler"
	"github.com/bahbah94/Orbex/internal/server/ws"
	"github.com/bahbah94/Orbex/internal/service"
)

// FullMode runs ingestion and serving in one process: the chain feed drives
// the live book and candle aggregator, every update fans out to websocket
// clients and into the Redis mirror, and the HTTP API serves from in-process
// state.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	books := broadcast.New[domain.OrderbookSnapshot](a.cfg.Broadcast.Capacity)
	candles := broadcast.New[domain.CandleUpdate](a.cfg.Broadcast.Capacity)
	defer books.Close()
	defer candles.Close()

	symbol := a.cfg.Market.Symbol
	book := orderbook.New(symbol, 0, func(snap domain.OrderbookSnapshot) {
		_ = books.Publish(snap)
	})
	agg := candle.New(a.cfg.Candles.HistoryLimit, func(update domain.CandleUpdate) {
		_ = candles.Publish(update)
	})

	tradeSvc := service.NewTradeService(deps.TradeStore, deps.SignalBus, a.logger)
	processor := pipeline.NewTradeProcessor(tradeSvc, agg, a.logger)
	collector := ingest.NewCollector(book, processor, a.logger)

	feed := a.startChainFeed(ctx, g, collector)

	// The mirror keeps Redis current so detached server processes can follow.
	mirror := service.NewMirror(books.Subscribe(), candles.Subscribe(), deps.BookCache, deps.SignalBus, a.logger)
	g.Go(func() error {
		return mirror.Run(ctx)
	})

	a.startArchiver(ctx, g, deps)

	marketSvc := service.NewMarketService(a.markets())
	bookSource := service.NewLiveBook(book, symbol)
	candleSource := service.NewLiveCandles(agg)

	hub := ws.NewHub(books, candles, bookSource, candleSource, marketSvc, symbol, a.logger)
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, symbol, time.Now().UTC(), collector.Stats, feed.Connected, hub.ClientCount),
		Orderbook: handler.NewOrderbookHandler(bookSource, symbol, a.logger),
		Orders:    handler.NewOrderHandler(book),
		Trades:    handler.NewTradesHandler(tradeSvc, symbol, a.logger),
		UDF:       handler.NewUDFHandler(marketSvc, tradeSvc, bookSource, a.logger),
	}
	a.startServer(ctx, g, deps, hub, handlers)

	return g.Wait()
}

// IngestMode runs the chain feed, live book, candle aggregation, persistence,
// and the Redis mirror without any HTTP surface. Detached server-mode
// processes serve reads from the mirror.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")

	g, ctx := errgroup.WithContext(ctx)

	books := broadcast.New[domain.OrderbookSnapshot](a.cfg.Broadcast.Capacity)
	candles := broadcast.New[domain.CandleUpdate](a.cfg.Broadcast.Capacity)
	defer books.Close()
	defer candles.Close()

	symbol := a.cfg.Market.Symbol
	book := orderbook.New(symbol, 0, func(snap domain.OrderbookSnapshot) {
		_ = books.Publish(snap)
	})
	agg := candle.New(a.cfg.Candles.HistoryLimit, func(update domain.CandleUpdate) {
		_ = candles.Publish(update)
	})

	tradeSvc := service.NewTradeService(deps.TradeStore, deps.SignalBus, a.logger)
	processor := pipeline.NewTradeProcessor(tradeSvc, agg, a.logger)
	collector := ingest.NewCollector(book, processor, a.logger)

	a.startChainFeed(ctx, g, collector)

	mirror := service.NewMirror(books.Subscribe(), candles.Subscribe(), deps.BookCache, deps.SignalBus, a.logger)
	g.Go(func() error {
		return mirror.Run(ctx)
	})

	a.startArchiver(ctx, g, deps)

	return g.Wait()
}

// ServerMode serves the HTTP and websocket API from the Redis mirror alone;
// the process never connects to the chain. Live updates arrive through the
// follower, history through Postgres, snapshots through the book cache.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	books := broadcast.New[domain.OrderbookSnapshot](a.cfg.Broadcast.Capacity)
	candles := broadcast.New[domain.CandleUpdate](a.cfg.Broadcast.Capacity)
	defer books.Close()
	defer candles.Close()

	follower := service.NewFollower(deps.SignalBus, books, candles, a.logger)
	g.Go(func() error {
		return follower.Run(ctx)
	})

	symbol := a.cfg.Market.Symbol
	tradeSvc := service.NewTradeService(deps.TradeStore, deps.SignalBus, a.logger)
	marketSvc := service.NewMarketService(a.markets())
	bookSource := service.NewCachedBook(deps.BookCache)
	candleSource := service.NewStreamCandles(deps.SignalBus)

	hub := ws.NewHub(books, candles, bookSource, candleSource, marketSvc, symbol, a.logger)
	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, symbol, time.Now().UTC(), nil, nil, hub.ClientCount),
		Orderbook: handler.NewOrderbookHandler(bookSource, symbol, a.logger),
		Trades:    handler.NewTradesHandler(tradeSvc, symbol, a.logger),
		UDF:       handler.NewUDFHandler(marketSvc, tradeSvc, bookSource, a.logger),
	}
	a.startServer(ctx, g, deps, hub, handlers)

	return g.Wait()
}

// markets returns the market catalogue this deployment serves.
func (a *App) markets() []domain.Market {
	return []domain.Market{{
		Symbol:        a.cfg.Market.Symbol,
		Description:   a.cfg.Market.Description,
		BaseCurrency:  a.cfg.Market.BaseCurrency,
		QuoteCurrency: a.cfg.Market.QuoteCurrency,
		PriceScale:    a.cfg.Market.PriceScale,
	}}
}

// startChainFeed connects the node websocket client and routes finalized
// blocks into the collector. The initial connection must succeed; drops
// after that are reconnected inside the client, resuming from the last seen
// block.
func (a *App) startChainFeed(ctx context.Context, g *errgroup.Group, collector *ingest.Collector) *node.WSClient {
	client := node.NewWSClientWith(a.cfg.Chain.WSURL, node.WSOptions{
		Stream:            a.cfg.Chain.Stream,
		ReconnectDelay:    a.cfg.Chain.ReconnectDelay.Duration,
		MaxReconnectDelay: a.cfg.Chain.MaxReconnectDelay.Duration,
	})
	client.OnBlockEvents(func(block node.BlockEvents) {
		collector.HandleBlock(ctx, block)
	})

	g.Go(func() error {
		if err := client.Connect(ctx); err != nil {
			return fmt.Errorf("chain feed: %w", err)
		}
		if err := client.Subscribe(ctx); err != nil {
			return fmt.Errorf("chain feed: %w", err)
		}
		a.logger.InfoContext(ctx, "chain feed subscribed",
			slog.String("url", a.cfg.Chain.WSURL),
			slog.String("stream", a.cfg.Chain.Stream),
		)
		<-ctx.Done()
		_ = client.Close()
		return nil
	})

	return client
}

// startArchiver schedules the trade archiver when cold storage is wired.
func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	arch := pipeline.NewArchiver(deps.Archiver, a.cfg.Archive.RetentionDays, deps.Locker, deps.Notifier, a.logger)
	cronExpr := a.cfg.Archive.Cron
	g.Go(func() error {
		return arch.RunCron(ctx, cronExpr)
	})
}

// startServer adds the HTTP server and its shutdown watcher to the group.
func (a *App) startServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub, handlers server.Handlers) {
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimitPerMin,
		RateWindow:  time.Minute,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
