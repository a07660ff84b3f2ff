package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/bahbah94/Orbex/internal/domain"
	"github.com/bahbah94/Orbex/internal/service"
)

// maxDepth caps the per-side levels any depth query can request.
const maxDepth = 100

// OrderbookHandler serves orderbook snapshots.
type OrderbookHandler struct {
	books         service.BookSource
	defaultSymbol string
	logger        *slog.Logger
}

// NewOrderbookHandler creates an OrderbookHandler.
func NewOrderbookHandler(books service.BookSource, defaultSymbol string, logger *slog.Logger) *OrderbookHandler {
	return &OrderbookHandler{
		books:         books,
		defaultSymbol: defaultSymbol,
		logger:        logger,
	}
}

// GetOrderbook responds with the current snapshot, optionally truncated to
// ?depth levels per side (default 20, capped at 100).
// GET /api/orderbook?symbol=ETH/USDC&depth=20
func (h *OrderbookHandler) GetOrderbook(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		symbol = h.defaultSymbol
	}
	depth := queryInt(r, "depth", 0)
	if depth > maxDepth {
		depth = maxDepth
	}

	snap, err := h.books.BookSnapshot(r.Context(), symbol, depth)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownSymbol) || errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown symbol")
			return
		}
		h.logger.ErrorContext(r.Context(), "orderbook snapshot failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, snap)
}
