package domain

// Event is one decoded settlement event from the chain's orderbook pallet.
// The variant set is closed: wire records that do not map onto one of these
// types are dropped by the collector before they reach the core.
//
// Scaled amounts are fixed-point integers (see ScaleFactor) and are converted
// to decimals at the boundary where they enter the book or the aggregator.
type Event interface {
	Name() string
	isEvent()
}

// OrderPlaced records a new order accepted by the chain's matching engine.
type OrderPlaced struct {
	OrderID  uint64
	Side     OrderSide
	Price    uint64 // scaled
	Quantity uint64 // scaled
}

// OrderCancelled records an order removed by its owner.
type OrderCancelled struct {
	OrderID uint64
	Trader  string
}

// OrderFilled records an order filled to completion.
type OrderFilled struct {
	OrderID uint64
	Trader  string
}

// OrderPartiallyFilled records a partial execution against a resting order.
type OrderPartiallyFilled struct {
	OrderID           uint64
	FilledQuantity    uint64 // scaled, cumulative
	RemainingQuantity uint64 // scaled
}

// TradeExecuted records one match between two orders.
type TradeExecuted struct {
	Symbol    string
	Price     uint64 // scaled
	Quantity  uint64 // scaled
	Timestamp int64  // unix seconds
}

func (OrderPlaced) Name() string          { return "OrderPlaced" }
func (OrderCancelled) Name() string       { return "OrderCancelled" }
func (OrderFilled) Name() string          { return "OrderFilled" }
func (OrderPartiallyFilled) Name() string { return "OrderPartiallyFilled" }
func (TradeExecuted) Name() string        { return "TradeExecuted" }

func (OrderPlaced) isEvent()          {}
func (OrderCancelled) isEvent()       {}
func (OrderFilled) isEvent()          {}
func (OrderPartiallyFilled) isEvent() {}
func (TradeExecuted) isEvent()        {}
