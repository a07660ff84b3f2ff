// Package node speaks the exchange chain node's WebSocket streaming
// protocol: subscribing to finalized block events and decoding the raw
// records of the orderbook pallet into typed settlement events.
package node

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bahbah94/Orbex/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second

	handshakeTimeout = 15 * time.Second
)

// BlockEventsHandler is called once per finalized block, in stream order,
// from the client's single read loop.
type BlockEventsHandler func(BlockEvents)

// WSClient is a WebSocket client for the chain node's finalized event
// stream. It manages the connection lifecycle, resubscribes after
// reconnects resuming from the last seen block, and dispatches each block
// to registered handlers.
type WSClient struct {
	wsURL     string
	stream    string
	baseDelay time.Duration
	maxDelay  time.Duration

	mu         sync.RWMutex
	conn       *websocket.Conn
	closed     bool
	subscribed bool
	lastBlock  uint64

	handlerMu sync.RWMutex
	handlers  []BlockEventsHandler

	// done is closed when the client is shut down.
	done chan struct{}
}

// WSOptions tune the client beyond its defaults. Zero values fall back to
// the package defaults.
type WSOptions struct {
	// Stream is the node stream to subscribe to.
	Stream string

	// ReconnectDelay and MaxReconnectDelay bound the exponential backoff
	// after a dropped connection.
	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
}

// NewWSClient creates a client for the given node WebSocket endpoint, e.g.
// "ws://127.0.0.1:9944/stream".
func NewWSClient(wsURL string) *WSClient {
	return NewWSClientWith(wsURL, WSOptions{})
}

// NewWSClientWith creates a client with explicit options.
func NewWSClientWith(wsURL string, opts WSOptions) *WSClient {
	if opts.Stream == "" {
		opts.Stream = "finalized_events"
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = reconnectDelay
	}
	if opts.MaxReconnectDelay <= 0 {
		opts.MaxReconnectDelay = maxReconnectDelay
	}
	return &WSClient{
		wsURL:     wsURL,
		stream:    opts.Stream,
		baseDelay: opts.ReconnectDelay,
		maxDelay:  opts.MaxReconnectDelay,
		done:      make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection and starts the read and ping
// loops. If the client had an active subscription it is restored, resuming
// from the block after the last one seen.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("node/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("node/ws: connect: %w", err)
	}

	w.conn = conn

	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	if w.subscribed {
		if err := w.sendCommand(w.subscribeCommandLocked()); err != nil {
			return fmt.Errorf("node/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe asks the node to stream finalized block events. The
// subscription survives reconnects.
func (w *WSClient) Subscribe(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("node/ws: not connected")
	}

	w.subscribed = true
	if err := w.sendCommand(w.subscribeCommandLocked()); err != nil {
		return fmt.Errorf("node/ws: subscribe to %s: %w", w.stream, err)
	}
	return nil
}

// Close shuts down the connection and stops the read and ping loops.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}

	return nil
}

// OnBlockEvents registers a handler invoked for every finalized block.
// Handlers run sequentially on the read loop, so they observe blocks in
// stream order.
func (w *WSClient) OnBlockEvents(handler BlockEventsHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, handler)
}

// Connected reports whether the client currently holds an open connection.
func (w *WSClient) Connected() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.conn != nil && !w.closed
}

// LastBlock returns the number of the most recent finalized block received.
func (w *WSClient) LastBlock() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastBlock
}

// subscribeCommandLocked builds the subscribe command, resuming after the
// last seen block when there is one. Caller must hold w.mu.
func (w *WSClient) subscribeCommandLocked() subscribeCommand {
	cmd := subscribeCommand{
		Op:      "subscribe",
		Streams: []string{w.stream},
	}
	if w.lastBlock > 0 {
		cmd.FromBlock = w.lastBlock + 1
	}
	return cmd
}

// sendCommand sends a JSON command to the node. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd subscribeCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop reads frames from the node and dispatches finalized blocks to the
// registered handlers. On disconnect it hands off to reconnect.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return // a fresh readLoop starts from reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop keeps the connection alive until shutdown or write failure.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw frame and dispatches it when it carries a
// finalized block. Other frame types and unparseable frames are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	var block BlockEvents
	if err := json.Unmarshal(raw, &block); err != nil {
		return
	}
	if block.Type != messageTypeFinalizedBlock {
		return
	}

	w.mu.Lock()
	w.lastBlock = block.Number
	w.mu.Unlock()

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(block)
	}
}

// reconnect re-establishes the connection with exponential backoff. It
// blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := w.baseDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > w.maxDelay {
			delay = w.maxDelay
		}
	}
}
