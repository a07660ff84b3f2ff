// Package server exposes the read-only HTTP and WebSocket API over the
// indexed market data.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bahbah94/Orbex/internal/domain"
	"github.com/bahbah94/Orbex/internal/server/handler"
	"github.com/bahbah94/Orbex/internal/server/middleware"
	"github.com/bahbah94/Orbex/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// RateLimit is the maximum number of requests a single client may make
	// per RateWindow. Zero disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Orders is nil when the process has no live book to look orders up in.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Orderbook *handler.OrderbookHandler
	Orders    *handler.OrderHandler
	Trades    *handler.TradesHandler
	UDF       *handler.UDFHandler
}

// Server is the HTTP + WebSocket API server for the indexer.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (CORS, request IDs, logging, rate limiting) and
// attaches the WebSocket hub.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check.
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Market data endpoints.
	mux.HandleFunc("GET /api/orderbook", handlers.Orderbook.GetOrderbook)
	mux.HandleFunc("GET /api/trades", handlers.Trades.ListTrades)

	// Order lookup is only available when this process maintains the live
	// book.
	if handlers.Orders != nil {
		mux.HandleFunc("GET /api/orders/{id}", handlers.Orders.GetOrder)
	}

	// TradingView UDF datafeed endpoints.
	mux.HandleFunc("GET /udf/config", handlers.UDF.Config)
	mux.HandleFunc("GET /udf/time", handlers.UDF.Time)
	mux.HandleFunc("GET /udf/symbols", handlers.UDF.Symbols)
	mux.HandleFunc("GET /udf/search", handlers.UDF.Search)
	mux.HandleFunc("GET /udf/history", handlers.UDF.History)
	mux.HandleFunc("GET /udf/quotes", handlers.UDF.Quotes)
	mux.HandleFunc("GET /udf/depth", handlers.UDF.Depth)

	// WebSocket endpoints.
	if wsHub != nil {
		mux.HandleFunc("GET /ws/orderbook", wsHub.HandleOrderbook)
		mux.HandleFunc("GET /ws/ohlcv", wsHub.HandleOHLCV)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply rate limiting (skips if no limiter or limit configured).
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply request ID middleware so log lines carry a correlation ID.
	h = middleware.RequestID()(h)

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
