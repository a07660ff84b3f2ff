package handler

import (
	"log/slog"
	"net/http"

	"github.com/bahbah94/Orbex/internal/service"
)

// TradesHandler serves persisted trade history.
type TradesHandler struct {
	trades        *service.TradeService
	defaultSymbol string
	logger        *slog.Logger
}

// NewTradesHandler creates a TradesHandler.
func NewTradesHandler(trades *service.TradeService, defaultSymbol string, logger *slog.Logger) *TradesHandler {
	return &TradesHandler{
		trades:        trades,
		defaultSymbol: defaultSymbol,
		logger:        logger,
	}
}

// ListTrades responds with recent trades for a symbol, newest first.
// GET /api/trades?symbol=ETH/USDC&limit=50&offset=0&since=...&until=...
func (h *TradesHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = h.defaultSymbol
	}

	trades, err := h.trades.ListTrades(r.Context(), symbol, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list trades failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol": symbol,
		"trades": trades,
		"count":  len(trades),
	})
}
