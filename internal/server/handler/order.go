package handler

import (
	"net/http"
	"strconv"

	"github.com/bahbah94/Orbex/internal/domain"
)

// OrderGetter is the book query surface the order endpoint needs.
type OrderGetter interface {
	GetOrder(id uint64) (domain.Order, error)
}

// OrderHandler serves single-order lookups against the live book. Terminal
// orders stay queryable, so fills and cancels remain visible here.
type OrderHandler struct {
	book OrderGetter
}

// NewOrderHandler creates an OrderHandler.
func NewOrderHandler(book OrderGetter) *OrderHandler {
	return &OrderHandler{book: book}
}

// GetOrder responds with the order's current state including its remaining
// quantity.
// GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	order, err := h.book.GetOrder(id)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":    "Order not found",
			"order_id": id,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"order_id":           order.ID,
		"side":               order.Side,
		"price":              order.Price,
		"quantity":           order.Quantity,
		"filled_quantity":    order.FilledQuantity,
		"remaining_quantity": order.RemainingQuantity(),
		"status":             order.Status,
	})
}
