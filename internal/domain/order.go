package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderSide indicates which side of the book an order rests on.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// ParseOrderSide normalizes a wire-encoded side ("Buy", "SELL", ...) into an
// OrderSide.
func ParseOrderSide(s string) (OrderSide, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy", "bid":
		return OrderSideBuy, nil
	case "sell", "ask":
		return OrderSideSell, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSide, s)
	}
}

// OrderStatus tracks the settled lifecycle of an order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// Resting reports whether an order with this status still occupies a spot in
// a price level.
func (s OrderStatus) Resting() bool {
	return s == OrderStatusOpen || s == OrderStatusPartiallyFilled
}

// Order is one exchange order mirrored from the chain. The id is assigned by
// the chain and never generated locally. Terminal orders are retained and stay
// queryable by id.
type Order struct {
	ID             uint64          `json:"order_id"`
	Side           OrderSide       `json:"side"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	Status         OrderStatus     `json:"status"`
}

// RemainingQuantity returns quantity minus filled quantity, clamped at zero.
func (o Order) RemainingQuantity() decimal.Decimal {
	return SaturatingSub(o.Quantity, o.FilledQuantity)
}
