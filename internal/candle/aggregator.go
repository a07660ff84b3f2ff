// Package candle aggregates executed trades into OHLCV bars across a fixed
// set of timeframes, keeping one open bar plus a bounded closed-bar history
// per (symbol, timeframe).
package candle

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/bahbah94/Orbex/internal/domain"
)

// defaultHistoryCap bounds the closed bars retained per (symbol, timeframe).
const defaultHistoryCap = 1000

// PublishFunc receives every bar update the aggregator emits. Like the
// orderbook's publish handle it is fire-and-forget: updates are copied by
// value and the aggregator never tracks its consumers.
type PublishFunc func(domain.CandleUpdate)

// bar is an open bucket, aggregated in decimals for exactness. The float
// projection happens only when a TvBar leaves the aggregator.
type bar struct {
	bucket  int64 // bucket start, unix seconds
	open    decimal.Decimal
	high    decimal.Decimal
	low     decimal.Decimal
	close   decimal.Decimal
	volume  decimal.Decimal
}

func newBar(bucket int64, price, quantity decimal.Decimal) *bar {
	return &bar{
		bucket: bucket,
		open:   price,
		high:   price,
		low:    price,
		close:  price,
		volume: quantity,
	}
}

func (b *bar) tv() domain.TvBar {
	return domain.TvBar{
		Time:   b.bucket,
		Open:   b.open.InexactFloat64(),
		High:   b.high.InexactFloat64(),
		Low:    b.low.InexactFloat64(),
		Close:  b.close.InexactFloat64(),
		Volume: b.volume.InexactFloat64(),
	}
}

type key struct {
	symbol string
	label  string
}

// Aggregator owns the per-(symbol, timeframe) open bars and closed-bar
// history. One instance is shared by the single trade-ingesting writer and
// any read paths; the lock is held only for the duration of a ProcessTrade
// call or a short read, never across I/O.
type Aggregator struct {
	mu         sync.Mutex
	timeframes []Timeframe
	open       map[key]*bar
	closed     map[key][]domain.TvBar // oldest first, bounded by historyCap
	historyCap int
	publish    PublishFunc
}

// New creates an aggregator covering the full fixed timeframe set.
// historyCap bounds closed bars kept per (symbol, timeframe); zero or
// negative selects the default. publish may be nil.
func New(historyCap int, publish PublishFunc) *Aggregator {
	if historyCap <= 0 {
		historyCap = defaultHistoryCap
	}
	return &Aggregator{
		timeframes: Timeframes,
		open:       make(map[key]*bar),
		closed:     make(map[key][]domain.TvBar),
		historyCap: historyCap,
		publish:    publish,
	}
}

// ProcessTrade folds one executed trade into every configured timeframe.
//
// Per timeframe, the trade either updates the open bar in place (one emitted
// update) or rolls the bucket over (two updates: the old bar closes, a new
// one opens). Trade timestamps are assumed non-decreasing, matching the
// order of the finalized stream; a timestamp landing outside the open bucket
// simply closes it, with no attempt at reordering.
func (a *Aggregator) ProcessTrade(symbol string, price, quantity decimal.Decimal, ts int64) {
	a.mu.Lock()
	updates := make([]domain.CandleUpdate, 0, len(a.timeframes)+1)
	for _, tf := range a.timeframes {
		bucket := (ts / tf.Width) * tf.Width
		k := key{symbol: symbol, label: tf.Label}

		cur := a.open[k]
		switch {
		case cur == nil:
			fresh := newBar(bucket, price, quantity)
			a.open[k] = fresh
			updates = append(updates, domain.CandleUpdate{
				Symbol: symbol, Timeframe: tf.Label, Bar: fresh.tv(),
			})

		case bucket != cur.bucket:
			closed := cur.tv()
			a.retainClosedLocked(k, closed)
			updates = append(updates, domain.CandleUpdate{
				Symbol: symbol, Timeframe: tf.Label, Bar: closed, IsClosed: true,
			})

			fresh := newBar(bucket, price, quantity)
			a.open[k] = fresh
			updates = append(updates, domain.CandleUpdate{
				Symbol: symbol, Timeframe: tf.Label, Bar: fresh.tv(),
			})

		default:
			if price.GreaterThan(cur.high) {
				cur.high = price
			}
			if price.LessThan(cur.low) {
				cur.low = price
			}
			cur.close = price
			cur.volume = cur.volume.Add(quantity)
			updates = append(updates, domain.CandleUpdate{
				Symbol: symbol, Timeframe: tf.Label, Bar: cur.tv(),
			})
		}
	}
	a.mu.Unlock()

	if a.publish != nil {
		for _, u := range updates {
			a.publish(u)
		}
	}
}

// CurrentBar returns the open bar for (symbol, timeframe label), if any.
func (a *Aggregator) CurrentBar(symbol, label string) (domain.TvBar, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.open[key{symbol: symbol, label: label}]
	if !ok {
		return domain.TvBar{}, false
	}
	return b.tv(), true
}

// RecentBars returns up to limit closed bars for (symbol, timeframe label),
// oldest first. limit <= 0 returns everything retained.
func (a *Aggregator) RecentBars(symbol, label string, limit int) []domain.TvBar {
	a.mu.Lock()
	defer a.mu.Unlock()
	bars := a.closed[key{symbol: symbol, label: label}]
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	out := make([]domain.TvBar, len(bars))
	copy(out, bars)
	return out
}

func (a *Aggregator) retainClosedLocked(k key, b domain.TvBar) {
	bars := a.closed[k]
	if len(bars) >= a.historyCap {
		copy(bars, bars[1:])
		bars[len(bars)-1] = b
	} else {
		bars = append(bars, b)
	}
	a.closed[k] = bars
}
