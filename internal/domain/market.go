package domain

// Market is the static metadata for a listed trading pair. Markets are
// configured, not discovered: the indexer mirrors one chain orderbook for its
// configured symbol, and chart clients resolve symbols against this metadata.
type Market struct {
	Symbol        string `json:"symbol"`
	Description   string `json:"description"`
	BaseCurrency  string `json:"base_currency"`
	QuoteCurrency string `json:"quote_currency"`
	PriceScale    int    `json:"pricescale"`
}
