package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists executed trades.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	GetLastTimestamp(ctx context.Context) (time.Time, error)
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]Trade, error)

	// ListBars buckets persisted trades into OHLCV bars of bucketSeconds
	// width over [from, to], oldest first.
	ListBars(ctx context.Context, symbol string, bucketSeconds int64, from, to time.Time) ([]TvBar, error)

	// LastTradeTimeBefore returns the executed-at time of the most recent
	// trade strictly before the given instant, or the zero time if none
	// exists. Chart clients use it to skip empty history ranges.
	LastTradeTimeBefore(ctx context.Context, symbol string, before time.Time) (time.Time, error)

	// ListBefore and DeleteBefore support archival of aged-out trades.
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
