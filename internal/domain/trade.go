package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade is one executed trade mirrored from the chain, persisted for chart
// history and archival. BlockNumber plus EventIndex uniquely identify the
// originating chain event, which keeps replay-driven inserts idempotent.
type Trade struct {
	ID          int64           `json:"id"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	BlockNumber uint64          `json:"block_number"`
	EventIndex  int             `json:"event_index"`
	ExecutedAt  time.Time       `json:"executed_at"`
	CreatedAt   time.Time       `json:"created_at"`
}
