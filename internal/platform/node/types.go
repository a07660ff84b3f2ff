package node

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bahbah94/Orbex/internal/domain"
)

// messageTypeFinalizedBlock tags the frames carrying finalized block events.
const messageTypeFinalizedBlock = "finalized_block"

// PalletOrderbook is the runtime pallet whose events the indexer consumes.
const PalletOrderbook = "Orderbook"

// ErrUnknownEvent marks a record that maps onto no known settlement event.
// Such records are expected in the stream and are skipped by callers.
var ErrUnknownEvent = errors.New("node: unknown event")

// subscribeCommand asks the node to start streaming. FromBlock, when set,
// resumes the stream from that block number.
type subscribeCommand struct {
	Op        string   `json:"op"`
	Streams   []string `json:"streams"`
	FromBlock uint64   `json:"from_block,omitempty"`
}

// BlockEvents is one finalized block and the runtime events it emitted.
type BlockEvents struct {
	Type      string        `json:"type"`
	Number    uint64        `json:"number"`
	Hash      string        `json:"hash"`
	Timestamp int64         `json:"timestamp"` // unix seconds
	Events    []EventRecord `json:"events"`
}

// EventRecord is one raw runtime event within a block.
type EventRecord struct {
	Pallet string          `json:"pallet"`
	Name   string          `json:"name"`
	Data   json.RawMessage `json:"data"`
}

type orderPlacedData struct {
	OrderID  uint64 `json:"order_id"`
	Side     string `json:"side"`
	Price    uint64 `json:"price"`
	Quantity uint64 `json:"quantity"`
}

type orderCancelledData struct {
	OrderID uint64 `json:"order_id"`
	Trader  string `json:"trader"`
}

type orderFilledData struct {
	OrderID uint64 `json:"order_id"`
	Trader  string `json:"trader"`
}

type orderPartiallyFilledData struct {
	OrderID           uint64 `json:"order_id"`
	FilledQuantity    uint64 `json:"filled_quantity"`
	RemainingQuantity uint64 `json:"remaining_quantity"`
}

type tradeExecutedData struct {
	Symbol    string `json:"symbol"`
	Price     uint64 `json:"price"`
	Quantity  uint64 `json:"quantity"`
	Timestamp int64  `json:"timestamp"`
}

// DecodeEvent maps one raw event record onto a typed settlement event.
// Records from other pallets or with unrecognized names return
// ErrUnknownEvent; malformed payloads return a decode error. Callers skip
// both, at different log levels.
func DecodeEvent(rec EventRecord) (domain.Event, error) {
	if rec.Pallet != PalletOrderbook {
		return nil, fmt.Errorf("%w: pallet %q", ErrUnknownEvent, rec.Pallet)
	}

	switch rec.Name {
	case "OrderPlaced":
		var d orderPlacedData
		if err := json.Unmarshal(rec.Data, &d); err != nil {
			return nil, fmt.Errorf("node: decode OrderPlaced: %w", err)
		}
		side, err := domain.ParseOrderSide(d.Side)
		if err != nil {
			return nil, fmt.Errorf("node: decode OrderPlaced: %w", err)
		}
		return domain.OrderPlaced{
			OrderID:  d.OrderID,
			Side:     side,
			Price:    d.Price,
			Quantity: d.Quantity,
		}, nil

	case "OrderCancelled":
		var d orderCancelledData
		if err := json.Unmarshal(rec.Data, &d); err != nil {
			return nil, fmt.Errorf("node: decode OrderCancelled: %w", err)
		}
		return domain.OrderCancelled{OrderID: d.OrderID, Trader: d.Trader}, nil

	case "OrderFilled":
		var d orderFilledData
		if err := json.Unmarshal(rec.Data, &d); err != nil {
			return nil, fmt.Errorf("node: decode OrderFilled: %w", err)
		}
		return domain.OrderFilled{OrderID: d.OrderID, Trader: d.Trader}, nil

	case "OrderPartiallyFilled":
		var d orderPartiallyFilledData
		if err := json.Unmarshal(rec.Data, &d); err != nil {
			return nil, fmt.Errorf("node: decode OrderPartiallyFilled: %w", err)
		}
		return domain.OrderPartiallyFilled{
			OrderID:           d.OrderID,
			FilledQuantity:    d.FilledQuantity,
			RemainingQuantity: d.RemainingQuantity,
		}, nil

	case "TradeExecuted":
		var d tradeExecutedData
		if err := json.Unmarshal(rec.Data, &d); err != nil {
			return nil, fmt.Errorf("node: decode TradeExecuted: %w", err)
		}
		return domain.TradeExecuted{
			Symbol:    d.Symbol,
			Price:     d.Price,
			Quantity:  d.Quantity,
			Timestamp: d.Timestamp,
		}, nil

	default:
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownEvent, rec.Pallet, rec.Name)
	}
}
