package domain

import "github.com/shopspring/decimal"

// PriceLevel aggregates the orders resting at one price on one side of the
// book. Quantity is the total remaining (unfilled) quantity at the level.
type PriceLevel struct {
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	OrderCount int             `json:"order_count"`
}

// OrderbookSnapshot is a point-in-time projection of the book: best-first
// price levels per side up to a depth cap, plus derived top-of-book figures.
// Snapshots are recomputed from live state on every request, never cached by
// the book itself. Best bid/ask, spread and mid price are nil when the
// corresponding side is empty.
type OrderbookSnapshot struct {
	Symbol    string           `json:"symbol"`
	Bids      []PriceLevel     `json:"bids"`
	Asks      []PriceLevel     `json:"asks"`
	BestBid   *decimal.Decimal `json:"best_bid"`
	BestAsk   *decimal.Decimal `json:"best_ask"`
	Spread    *decimal.Decimal `json:"spread"`
	MidPrice  *decimal.Decimal `json:"mid_price"`
	Timestamp int64            `json:"timestamp"` // unix milliseconds
}
