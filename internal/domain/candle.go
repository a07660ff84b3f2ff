package domain

// TvBar is one OHLCV bar in the shape TradingView-style chart clients
// consume. Time is the bucket start in unix seconds. A bar is mutable while
// its bucket is open and immutable once it has closed.
type TvBar struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// CandleUpdate is emitted by the aggregator for every trade it absorbs, once
// or twice per configured timeframe: the affected bar plus whether that bar
// just closed. A bucket rollover produces a closing update for the old bar
// followed by an opening update for the new one.
type CandleUpdate struct {
	Symbol    string `json:"symbol"`
	Timeframe string `json:"timeframe"`
	Bar       TvBar  `json:"bar"`
	IsClosed  bool   `json:"is_closed"`
}
