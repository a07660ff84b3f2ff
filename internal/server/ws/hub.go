// Package ws streams orderbook snapshots and candle updates to WebSocket
// clients.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bahbah94/Orbex/internal/broadcast"
	"github.com/bahbah94/Orbex/internal/candle"
	"github.com/bahbah94/Orbex/internal/domain"
	"github.com/bahbah94/Orbex/internal/service"
)

// historyPreload is how many closed bars per timeframe a fresh candle
// subscriber receives before live updates start.
const historyPreload = 50

// bookFrameInterval paces the orderbook stream: updates arriving faster are
// coalesced, latest wins, one frame per interval per connection.
const bookFrameInterval = time.Second

// upgrader configures the WebSocket upgrade parameters. Origin checking is
// delegated to the CORS layer; the data here is public market data.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Outbound frames are flat type-tagged JSON objects: the payload fields sit
// beside the "type" key rather than nested under it.
const (
	frameOrderbook = "orderbook"
	frameOHLCV     = "ohlcv"
	frameStatus    = "status"
)

type bookFrame struct {
	Type string `json:"type"`
	domain.OrderbookSnapshot
}

type candleFrame struct {
	Type string `json:"type"`
	domain.CandleUpdate
}

// statusFrame reports stream conditions in-band, currently only consumer
// lag.
type statusFrame struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Skipped uint64 `json:"skipped,omitempty"`
}

// Hub serves the streaming endpoints. Every connection gets its own
// subscription into the process-local broadcast channels, so one slow client
// never stalls another.
type Hub struct {
	books         *broadcast.Channel[domain.OrderbookSnapshot]
	candles       *broadcast.Channel[domain.CandleUpdate]
	bookSource    service.BookSource
	candleSource  service.CandleSource
	markets       *service.MarketService
	defaultSymbol string
	logger        *slog.Logger

	mu      sync.RWMutex
	clients map[*client]bool
}

// NewHub creates a Hub over the given broadcast channels and read sources.
func NewHub(
	books *broadcast.Channel[domain.OrderbookSnapshot],
	candles *broadcast.Channel[domain.CandleUpdate],
	bookSource service.BookSource,
	candleSource service.CandleSource,
	markets *service.MarketService,
	defaultSymbol string,
	logger *slog.Logger,
) *Hub {
	return &Hub{
		books:         books,
		candles:       candles,
		bookSource:    bookSource,
		candleSource:  candleSource,
		markets:       markets,
		defaultSymbol: defaultSymbol,
		logger:        logger.With("component", "ws"),
		clients:       make(map[*client]bool),
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client connected", slog.Int("total_clients", total))
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("ws: client disconnected", slog.Int("total_clients", total))
}

func (h *Hub) symbolFromQuery(r *http.Request) (string, error) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = h.defaultSymbol
	}
	if _, err := h.markets.Get(symbol); err != nil {
		return "", err
	}
	return symbol, nil
}

// recvItem carries one subscriber message, or its error, to a select loop.
type recvItem[T any] struct {
	val T
	err error
}

// pumpSub forwards subscriber messages into a channel so a connection loop
// can select over updates and a ticker together. Lag errors are forwarded
// and pumping continues; any other error is forwarded and the channel
// closes.
func pumpSub[T any](ctx context.Context, sub *broadcast.Subscriber[T]) <-chan recvItem[T] {
	out := make(chan recvItem[T], 1)
	go func() {
		defer close(out)
		for {
			v, err := sub.Recv(ctx)
			select {
			case out <- recvItem[T]{val: v, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				var lagged *broadcast.LaggedError
				if !errors.As(err, &lagged) {
					return
				}
			}
		}
	}()
	return out
}

// HandleOrderbook upgrades the connection and streams book snapshots for one
// symbol: the current state immediately, then at most one frame per
// interval, always the latest snapshot seen.
// GET /ws/orderbook?symbol=ETH/USDC
func (h *Hub) HandleOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol, err := h.symbolFromQuery(r)
	if err != nil {
		http.Error(w, `{"error":"unknown symbol"}`, http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(conn, h.logger)
	h.add(c)
	defer h.remove(c)
	defer c.close()

	// The request context dies when this handler hijacks the connection, so
	// connection lifetime is tracked by the read pump instead.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.writePump()
	go c.readPump(cancel)

	sub := h.books.Subscribe()

	if snap, err := h.bookSource.BookSnapshot(ctx, symbol, 0); err == nil {
		h.send(c, bookFrame{Type: frameOrderbook, OrderbookSnapshot: snap})
	} else if !errors.Is(err, domain.ErrNotFound) {
		h.logger.Warn("ws: initial book snapshot failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
	}

	updates := pumpSub(ctx, sub)
	ticker := time.NewTicker(bookFrameInterval)
	defer ticker.Stop()

	var pending *domain.OrderbookSnapshot
	for {
		select {
		case <-ctx.Done():
			return

		case item, ok := <-updates:
			if !ok {
				return
			}
			if item.err != nil {
				if h.streamErr(c, item.err) {
					continue
				}
				return
			}
			if item.val.Symbol != symbol {
				continue
			}
			snap := item.val
			pending = &snap

		case <-ticker.C:
			if pending == nil {
				continue
			}
			h.send(c, bookFrame{Type: frameOrderbook, OrderbookSnapshot: *pending})
			pending = nil
		}
	}
}

// HandleOHLCV upgrades the connection and streams candle updates for one
// symbol, filtered to the requested timeframes. Recent closed bars and the
// open bar are sent first so charts render without a separate history
// round-trip. Unlike the orderbook stream, updates are never coalesced; a
// close-then-open rollover pair must arrive whole.
// GET /ws/ohlcv?symbol=ETH/USDC&timeframes=1m,5m
func (h *Hub) HandleOHLCV(w http.ResponseWriter, r *http.Request) {
	symbol, err := h.symbolFromQuery(r)
	if err != nil {
		http.Error(w, `{"error":"unknown symbol"}`, http.StatusNotFound)
		return
	}

	labels, err := parseTimeframes(r.URL.Query().Get("timeframes"))
	if err != nil {
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := newClient(conn, h.logger)
	h.add(c)
	defer h.remove(c)
	defer c.close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.writePump()
	go c.readPump(cancel)

	sub := h.candles.Subscribe()

	wanted := make(map[string]bool, len(labels))
	for _, label := range labels {
		wanted[label] = true
		h.preloadCandles(ctx, c, symbol, label)
	}

	for {
		update, err := sub.Recv(ctx)
		if err != nil {
			if h.streamErr(c, err) {
				continue
			}
			return
		}
		if update.Symbol != symbol || !wanted[update.Timeframe] {
			continue
		}
		h.send(c, candleFrame{Type: frameOHLCV, CandleUpdate: update})
	}
}

// preloadCandles sends the recent closed bars followed by the current open
// bar for one (symbol, timeframe). Either part may be unavailable; the
// stream continues regardless.
func (h *Hub) preloadCandles(ctx context.Context, c *client, symbol, label string) {
	bars, err := h.candleSource.RecentClosed(ctx, symbol, label, historyPreload)
	if err != nil {
		h.logger.Warn("ws: candle preload failed",
			slog.String("symbol", symbol),
			slog.String("timeframe", label),
			slog.String("error", err.Error()),
		)
	}
	for _, bar := range bars {
		h.send(c, candleFrame{Type: frameOHLCV, CandleUpdate: domain.CandleUpdate{
			Symbol:    symbol,
			Timeframe: label,
			Bar:       bar,
			IsClosed:  true,
		}})
	}

	bar, ok, err := h.candleSource.CurrentBar(ctx, symbol, label)
	if err != nil {
		h.logger.Warn("ws: open bar read failed",
			slog.String("symbol", symbol),
			slog.String("timeframe", label),
			slog.String("error", err.Error()),
		)
		return
	}
	if ok {
		h.send(c, candleFrame{Type: frameOHLCV, CandleUpdate: domain.CandleUpdate{
			Symbol:    symbol,
			Timeframe: label,
			Bar:       bar,
		}})
	}
}

// streamErr handles one subscriber error. Lag is reported to the client
// in-band and the stream continues from the oldest retained update; any
// other error ends the stream.
func (h *Hub) streamErr(c *client, err error) (cont bool) {
	var lagged *broadcast.LaggedError
	if errors.As(err, &lagged) {
		h.send(c, statusFrame{Type: frameStatus, Status: "lagged", Skipped: lagged.Skipped})
		return true
	}
	return false
}

func (h *Hub) send(c *client, frame any) {
	msg, err := json.Marshal(frame)
	if err != nil {
		h.logger.Error("ws: marshal frame failed", slog.String("error", err.Error()))
		return
	}
	c.enqueue(msg)
}

// parseTimeframes validates a comma-separated timeframe list; an empty list
// selects every timeframe.
func parseTimeframes(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		labels := make([]string, len(candle.Timeframes))
		for i, tf := range candle.Timeframes {
			labels[i] = tf.Label
		}
		return labels, nil
	}

	var labels []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, ok := candle.FromLabel(part); !ok {
			return nil, errors.New("unknown timeframe " + part)
		}
		labels = append(labels, part)
	}
	if len(labels) == 0 {
		return nil, errors.New("no timeframes requested")
	}
	return labels, nil
}
