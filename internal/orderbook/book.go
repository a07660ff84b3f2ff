// Package orderbook maintains a live limit order book reconstructed from the
// chain's settlement event stream. The book mirrors settled outcomes only; it
// performs no matching of its own.
package orderbook

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/bahbah94/Orbex/internal/domain"
)

// defaultDepth caps how many price levels a snapshot carries per side when
// the caller does not ask for a specific depth.
const defaultDepth = 20

// PublishFunc receives a fresh snapshot after every successful mutation. The
// book treats it as a fire-and-forget handle: messages are copied by value
// and the book never knows who, if anyone, is listening.
type PublishFunc func(domain.OrderbookSnapshot)

// priceLevel is the resting queue at one price: order ids in arrival order,
// which preserves time priority within the level.
type priceLevel struct {
	price  decimal.Decimal
	orders []uint64
}

// Book owns the order map and the per-side price-level indexes. One instance
// is shared by the single ingesting writer and all read-serving paths; every
// method takes the book's lock for a short critical section that performs no
// I/O, so readers always observe a prefix of applied events.
//
// Orders are never deleted: terminal orders leave their price level but stay
// queryable by id.
type Book struct {
	mu      sync.Mutex
	symbol  string
	orders  map[uint64]*domain.Order
	bids    *btree.BTreeG[*priceLevel]
	asks    *btree.BTreeG[*priceLevel]
	depth   int
	publish PublishFunc
}

// New creates an empty book for symbol. depth bounds the levels per side in
// emitted snapshots; zero or negative selects the default. publish may be
// nil, in which case mutations emit nothing.
func New(symbol string, depth int, publish PublishFunc) *Book {
	if depth <= 0 {
		depth = defaultDepth
	}
	less := func(a, b *priceLevel) bool { return a.price.LessThan(b.price) }
	return &Book{
		symbol:  symbol,
		orders:  make(map[uint64]*domain.Order),
		bids:    btree.NewG(32, less),
		asks:    btree.NewG(32, less),
		depth:   depth,
		publish: publish,
	}
}

// Symbol returns the market symbol this book mirrors.
func (b *Book) Symbol() string { return b.symbol }

// AddOrder inserts a freshly placed order into the order map and appends its
// id to the tail of the side/price bucket, preserving time priority. An id
// already present is rejected with domain.ErrDuplicateOrder and the book is
// left unchanged.
func (b *Book) AddOrder(o domain.Order) error {
	b.mu.Lock()
	if _, exists := b.orders[o.ID]; exists {
		b.mu.Unlock()
		return fmt.Errorf("orderbook: add order %d: %w", o.ID, domain.ErrDuplicateOrder)
	}
	if o.Status == "" {
		o.Status = domain.OrderStatusOpen
	}
	b.orders[o.ID] = &o
	b.addToLevel(o.Side, o.Price, o.ID)
	snap := b.snapshotLocked(b.depth)
	b.mu.Unlock()

	b.emit(snap)
	return nil
}

// CancelOrder removes the order's id from its price bucket (a no-op if it
// already left) and marks the order Cancelled. The record is retained. An
// unknown id returns domain.ErrOrderNotFound.
func (b *Book) CancelOrder(id uint64) error {
	b.mu.Lock()
	o, ok := b.orders[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("orderbook: cancel order %d: %w", id, domain.ErrOrderNotFound)
	}
	b.removeFromLevel(o.Side, o.Price, id)
	o.Status = domain.OrderStatusCancelled
	snap := b.snapshotLocked(b.depth)
	b.mu.Unlock()

	b.emit(snap)
	return nil
}

// UpdateOrder sets the order's cumulative filled quantity and status. A
// terminal status removes the id from its price bucket; a partial fill
// leaves the order resting at its original time-priority position. An
// unknown id returns domain.ErrOrderNotFound.
func (b *Book) UpdateOrder(id uint64, filled decimal.Decimal, status domain.OrderStatus) error {
	b.mu.Lock()
	o, ok := b.orders[id]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("orderbook: update order %d: %w", id, domain.ErrOrderNotFound)
	}
	o.FilledQuantity = filled
	o.Status = status
	if !status.Resting() {
		b.removeFromLevel(o.Side, o.Price, id)
	}
	snap := b.snapshotLocked(b.depth)
	b.mu.Unlock()

	b.emit(snap)
	return nil
}

// GetOrder returns any order ever placed, including terminal ones.
func (b *Book) GetOrder(id uint64) (domain.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.orders[id]
	if !ok {
		return domain.Order{}, fmt.Errorf("orderbook: get order %d: %w", id, domain.ErrOrderNotFound)
	}
	return *o, nil
}

// Spread returns the best bid (highest) and best ask (lowest) prices. ok is
// false when either side has no resting orders.
func (b *Book) Spread() (bestBid, bestAsk decimal.Decimal, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	bid, haveBid := b.bids.Max()
	ask, haveAsk := b.asks.Min()
	if !haveBid || !haveAsk {
		return decimal.Decimal{}, decimal.Decimal{}, false
	}
	return bid.price, ask.price, true
}

// DepthLevel is one (price, resting order count) pair from a depth query.
type DepthLevel struct {
	Price decimal.Decimal
	Count int
}

// BidDepth returns up to n bid levels, best (highest price) first.
func (b *Book) BidDepth(n int) []DepthLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	levels := make([]DepthLevel, 0, n)
	b.bids.Descend(func(lv *priceLevel) bool {
		levels = append(levels, DepthLevel{Price: lv.price, Count: len(lv.orders)})
		return len(levels) < n
	})
	return levels
}

// AskDepth returns up to n ask levels, best (lowest price) first.
func (b *Book) AskDepth(n int) []DepthLevel {
	b.mu.Lock()
	defer b.mu.Unlock()
	levels := make([]DepthLevel, 0, n)
	b.asks.Ascend(func(lv *priceLevel) bool {
		levels = append(levels, DepthLevel{Price: lv.price, Count: len(lv.orders)})
		return len(levels) < n
	})
	return levels
}

// SideOrderCounts returns how many orders rest on each side of the book.
func (b *Book) SideOrderCounts() (bidOrders, askOrders int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids.Ascend(func(lv *priceLevel) bool {
		bidOrders += len(lv.orders)
		return true
	})
	b.asks.Ascend(func(lv *priceLevel) bool {
		askOrders += len(lv.orders)
		return true
	})
	return bidOrders, askOrders
}

// Snapshot builds a point-in-time projection of the book with up to depth
// levels per side. Zero or negative depth selects the book's default cap.
func (b *Book) Snapshot(depth int) domain.OrderbookSnapshot {
	if depth <= 0 {
		depth = b.depth
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snapshotLocked(depth)
}

func (b *Book) snapshotLocked(depth int) domain.OrderbookSnapshot {
	bids := make([]domain.PriceLevel, 0, depth)
	b.bids.Descend(func(lv *priceLevel) bool {
		bids = append(bids, b.levelViewLocked(lv))
		return len(bids) < depth
	})
	asks := make([]domain.PriceLevel, 0, depth)
	b.asks.Ascend(func(lv *priceLevel) bool {
		asks = append(asks, b.levelViewLocked(lv))
		return len(asks) < depth
	})

	snap := domain.OrderbookSnapshot{
		Symbol:    b.symbol,
		Bids:      bids,
		Asks:      asks,
		Timestamp: time.Now().UnixMilli(),
	}
	if bid, ok := b.bids.Max(); ok {
		p := bid.price
		snap.BestBid = &p
	}
	if ask, ok := b.asks.Min(); ok {
		p := ask.price
		snap.BestAsk = &p
	}
	if snap.BestBid != nil && snap.BestAsk != nil {
		spread := snap.BestAsk.Sub(*snap.BestBid)
		mid := snap.BestAsk.Add(*snap.BestBid).Div(decimal.NewFromInt(2))
		snap.Spread = &spread
		snap.MidPrice = &mid
	}
	return snap
}

// levelViewLocked sums the remaining quantity of every order resting at the
// level. Remaining quantities saturate at zero, so a level never reports a
// negative total.
func (b *Book) levelViewLocked(lv *priceLevel) domain.PriceLevel {
	total := decimal.Zero
	count := 0
	for _, id := range lv.orders {
		o, ok := b.orders[id]
		if !ok {
			continue
		}
		total = total.Add(o.RemainingQuantity())
		count++
	}
	return domain.PriceLevel{Price: lv.price, Quantity: total, OrderCount: count}
}

func (b *Book) sideTree(side domain.OrderSide) *btree.BTreeG[*priceLevel] {
	if side == domain.OrderSideBuy {
		return b.bids
	}
	return b.asks
}

func (b *Book) addToLevel(side domain.OrderSide, price decimal.Decimal, id uint64) {
	tree := b.sideTree(side)
	lv, ok := tree.Get(&priceLevel{price: price})
	if !ok {
		lv = &priceLevel{price: price}
		tree.ReplaceOrInsert(lv)
	}
	lv.orders = append(lv.orders, id)
}

func (b *Book) removeFromLevel(side domain.OrderSide, price decimal.Decimal, id uint64) {
	tree := b.sideTree(side)
	lv, ok := tree.Get(&priceLevel{price: price})
	if !ok {
		return
	}
	for i, oid := range lv.orders {
		if oid == id {
			lv.orders = append(lv.orders[:i], lv.orders[i+1:]...)
			break
		}
	}
	if len(lv.orders) == 0 {
		tree.Delete(lv)
	}
}

func (b *Book) emit(snap domain.OrderbookSnapshot) {
	if b.publish != nil {
		b.publish(snap)
	}
}
