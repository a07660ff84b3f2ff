package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bahbah94/Orbex/internal/domain"
	"github.com/bahbah94/Orbex/internal/platform/node"
)

// Book is the slice of the orderbook reducer the collector drives.
type Book interface {
	AddOrder(order domain.Order) error
	CancelOrder(id uint64) error
	UpdateOrder(id uint64, filled decimal.Decimal, status domain.OrderStatus) error
	GetOrder(id uint64) (domain.Order, error)
}

// TradeSink receives decoded trades together with their chain position. It
// absorbs its own downstream failures; a trade handed over counts as applied.
type TradeSink interface {
	Process(ctx context.Context, ev domain.TradeExecuted, blockNumber uint64, eventIndex int)
}

// Stats is a point-in-time view of collector progress, served by the
// status endpoint.
type Stats struct {
	LastBlock     uint64    `json:"last_block"`
	BlocksSeen    uint64    `json:"blocks_seen"`
	EventsApplied uint64    `json:"events_applied"`
	EventsSkipped uint64    `json:"events_skipped"`
	LastEventAt   time.Time `json:"last_event_at"`
}

// Collector applies finalized chain events to the in-memory book and routes
// trades into persistence and candle aggregation. Events within a block are
// applied strictly in record order; a record that fails to decode or apply is
// logged and skipped without stopping the block.
type Collector struct {
	book   Book
	trades TradeSink
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewCollector wires the collector to its downstream consumers.
func NewCollector(book Book, trades TradeSink, logger *slog.Logger) *Collector {
	return &Collector{
		book:   book,
		trades: trades,
		logger: logger.With("component", "collector"),
	}
}

// HandleBlock consumes one finalized block worth of events.
func (c *Collector) HandleBlock(ctx context.Context, block node.BlockEvents) {
	applied, skipped := 0, 0
	for i, rec := range block.Events {
		ev, err := node.DecodeEvent(rec)
		if err != nil {
			if errors.Is(err, node.ErrUnknownEvent) {
				c.logger.DebugContext(ctx, "skipping event",
					"pallet", rec.Pallet, "name", rec.Name, "block", block.Number)
			} else {
				c.logger.WarnContext(ctx, "undecodable event",
					"pallet", rec.Pallet, "name", rec.Name, "block", block.Number, "error", err)
			}
			skipped++
			continue
		}

		if err := c.apply(ctx, ev, block.Number, i); err != nil {
			c.logger.WarnContext(ctx, "event not applied",
				"event", ev.Name(), "block", block.Number, "index", i, "error", err)
			skipped++
			continue
		}
		applied++
	}

	c.mu.Lock()
	c.stats.LastBlock = block.Number
	c.stats.BlocksSeen++
	c.stats.EventsApplied += uint64(applied)
	c.stats.EventsSkipped += uint64(skipped)
	if applied > 0 {
		c.stats.LastEventAt = time.Now().UTC()
	}
	c.mu.Unlock()
}

func (c *Collector) apply(ctx context.Context, ev domain.Event, blockNumber uint64, eventIndex int) error {
	switch e := ev.(type) {
	case domain.OrderPlaced:
		return c.book.AddOrder(domain.Order{
			ID:       e.OrderID,
			Side:     e.Side,
			Price:    domain.FromScaled(e.Price),
			Quantity: domain.FromScaled(e.Quantity),
			Status:   domain.OrderStatusOpen,
		})
	case domain.OrderCancelled:
		return c.book.CancelOrder(e.OrderID)
	case domain.OrderFilled:
		// The chain reports only the order id on a full fill; the filled
		// amount is the order's own size.
		order, err := c.book.GetOrder(e.OrderID)
		if err != nil {
			return fmt.Errorf("ingest: fill order %d: %w", e.OrderID, err)
		}
		return c.book.UpdateOrder(e.OrderID, order.Quantity, domain.OrderStatusFilled)
	case domain.OrderPartiallyFilled:
		return c.book.UpdateOrder(e.OrderID, domain.FromScaled(e.FilledQuantity), domain.OrderStatusPartiallyFilled)
	case domain.TradeExecuted:
		c.trades.Process(ctx, e, blockNumber, eventIndex)
		return nil
	default:
		return fmt.Errorf("ingest: unhandled event %s", ev.Name())
	}
}

// Stats returns a copy of the running counters.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
