package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bahbah94/Orbex/internal/candle"
	"github.com/bahbah94/Orbex/internal/domain"
	"github.com/bahbah94/Orbex/internal/service"
)

// exchangeName is reported in UDF symbol metadata.
const exchangeName = "Orbex"

// UDFHandler implements the TradingView UDF datafeed protocol: config, symbol
// resolution, search, history bars, quotes, and book depth. Chart libraries
// poll these endpoints; live bar updates flow over the websocket instead.
type UDFHandler struct {
	markets *service.MarketService
	trades  *service.TradeService
	books   service.BookSource
	logger  *slog.Logger
}

// NewUDFHandler creates a UDFHandler.
func NewUDFHandler(
	markets *service.MarketService,
	trades *service.TradeService,
	books service.BookSource,
	logger *slog.Logger,
) *UDFHandler {
	return &UDFHandler{
		markets: markets,
		trades:  trades,
		books:   books,
		logger:  logger,
	}
}

// Config describes datafeed capabilities.
// GET /udf/config
func (h *UDFHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"supported_resolutions":    candle.Resolutions(),
		"supports_search":          true,
		"supports_group_request":   false,
		"supports_marks":           false,
		"supports_timescale_marks": false,
		"supports_time":            true,
	})
}

// Time responds with the server time as plain-text unix seconds, which the
// chart library uses to align its clock.
// GET /udf/time
func (h *UDFHandler) Time(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "%d", time.Now().Unix())
}

// symbolInfo is the UDF symbol metadata shape.
type symbolInfo struct {
	Name                 string   `json:"name"`
	Ticker               string   `json:"ticker"`
	Description          string   `json:"description"`
	Type                 string   `json:"type"`
	Session              string   `json:"session"`
	Exchange             string   `json:"exchange"`
	ListedExchange       string   `json:"listed_exchange"`
	Timezone             string   `json:"timezone"`
	Format               string   `json:"format"`
	MinMov               int      `json:"minmov"`
	PriceScale           int      `json:"pricescale"`
	HasIntraday          bool     `json:"has_intraday"`
	HasDaily             bool     `json:"has_daily"`
	HasWeeklyAndMonthly  bool     `json:"has_weekly_and_monthly"`
	SupportedResolutions []string `json:"supported_resolutions"`
	CurrencyCode         string   `json:"currency_code,omitempty"`
	DataStatus           string   `json:"data_status"`
}

func toSymbolInfo(m domain.Market) symbolInfo {
	priceScale := m.PriceScale
	if priceScale <= 0 {
		priceScale = 100
	}
	return symbolInfo{
		Name:                 m.Symbol,
		Ticker:               m.Symbol,
		Description:          m.Description,
		Type:                 "crypto",
		Session:              "24x7",
		Exchange:             exchangeName,
		ListedExchange:       exchangeName,
		Timezone:             "Etc/UTC",
		Format:               "price",
		MinMov:               1,
		PriceScale:           priceScale,
		HasIntraday:          true,
		HasDaily:             true,
		HasWeeklyAndMonthly:  false,
		SupportedResolutions: candle.Resolutions(),
		CurrencyCode:         m.QuoteCurrency,
		DataStatus:           "streaming",
	}
}

// Symbols resolves one symbol to its metadata.
// GET /udf/symbols?symbol=ETH/USDC
func (h *UDFHandler) Symbols(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	m, err := h.markets.Get(symbol)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"s":      "error",
			"errmsg": "unknown_symbol " + symbol,
		})
		return
	}
	writeJSON(w, http.StatusOK, toSymbolInfo(m))
}

// searchResult is one UDF search entry.
type searchResult struct {
	Symbol      string `json:"symbol"`
	FullName    string `json:"full_name"`
	Description string `json:"description"`
	Exchange    string `json:"exchange"`
	Ticker      string `json:"ticker"`
	Type        string `json:"type"`
}

// Search returns markets matching the query.
// GET /udf/search?query=eth&limit=30
func (h *UDFHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	limit := queryInt(r, "limit", 30)

	matches := h.markets.Search(query, limit)
	results := make([]searchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, searchResult{
			Symbol:      m.Symbol,
			FullName:    exchangeName + ":" + m.Symbol,
			Description: m.Description,
			Exchange:    exchangeName,
			Ticker:      m.Symbol,
			Type:        "crypto",
		})
	}
	writeJSON(w, http.StatusOK, results)
}

// historyResponse is the UDF column-oriented bar payload.
type historyResponse struct {
	Status   string    `json:"s"`
	ErrMsg   string    `json:"errmsg,omitempty"`
	NextTime *int64    `json:"nextTime,omitempty"`
	Time     []int64   `json:"t,omitempty"`
	Open     []float64 `json:"o,omitempty"`
	High     []float64 `json:"h,omitempty"`
	Low      []float64 `json:"l,omitempty"`
	Close    []float64 `json:"c,omitempty"`
	Volume   []float64 `json:"v,omitempty"`
}

// History serves OHLCV bars for a chart range. Per UDF convention errors are
// reported in-band with HTTP 200.
// GET /udf/history?symbol=ETH/USDC&resolution=60&from=...&to=...
func (h *UDFHandler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	resolution := q.Get("resolution")

	from, errFrom := strconv.ParseInt(q.Get("from"), 10, 64)
	to, errTo := strconv.ParseInt(q.Get("to"), 10, 64)
	if errFrom != nil || errTo != nil || to < from {
		writeJSON(w, http.StatusOK, historyResponse{Status: "error", ErrMsg: "invalid time range"})
		return
	}

	if _, err := h.markets.Get(symbol); err != nil {
		writeJSON(w, http.StatusOK, historyResponse{Status: "error", ErrMsg: "unknown_symbol " + symbol})
		return
	}

	if _, ok := candle.FromResolution(resolution); !ok {
		writeJSON(w, http.StatusOK, historyResponse{Status: "error", ErrMsg: "invalid_resolution"})
		return
	}

	bars, nextTime, err := h.trades.History(r.Context(), symbol, resolution,
		time.Unix(from, 0).UTC(), time.Unix(to, 0).UTC())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "udf history failed",
			slog.String("symbol", symbol),
			slog.String("resolution", resolution),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusOK, historyResponse{Status: "error", ErrMsg: "history unavailable"})
		return
	}

	if len(bars) == 0 {
		writeJSON(w, http.StatusOK, historyResponse{Status: "no_data", NextTime: nextTime})
		return
	}

	resp := historyResponse{
		Status: "ok",
		Time:   make([]int64, len(bars)),
		Open:   make([]float64, len(bars)),
		High:   make([]float64, len(bars)),
		Low:    make([]float64, len(bars)),
		Close:  make([]float64, len(bars)),
		Volume: make([]float64, len(bars)),
	}
	for i, b := range bars {
		resp.Time[i] = b.Time
		resp.Open[i] = b.Open
		resp.High[i] = b.High
		resp.Low[i] = b.Low
		resp.Close[i] = b.Close
		resp.Volume[i] = b.Volume
	}
	writeJSON(w, http.StatusOK, resp)
}

// quoteValues carries the book-derived fields of one quote. Prices keep
// their exact decimal representation.
type quoteValues struct {
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Spread    decimal.Decimal `json:"spread"`
	MidPrice  decimal.Decimal `json:"mid_price"`
	BidOrders int             `json:"bid_orders"`
	AskOrders int             `json:"ask_orders"`
	Timestamp int64           `json:"timestamp"`
}

// quoteEntry is one symbol's quote, or an in-band error for that symbol.
type quoteEntry struct {
	Status string       `json:"s"`
	Symbol string       `json:"n"`
	ErrMsg string       `json:"errmsg,omitempty"`
	Values *quoteValues `json:"v,omitempty"`
}

// Quotes serves snapshot quotes for a comma-separated symbol list.
// GET /udf/quotes?symbols=ETH/USDC,DOT/USDC
func (h *UDFHandler) Quotes(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("symbols")
	if raw == "" {
		writeJSON(w, http.StatusOK, map[string]any{"s": "error", "errmsg": "no symbols requested"})
		return
	}

	entries := make([]quoteEntry, 0, 4)
	for _, symbol := range strings.Split(raw, ",") {
		symbol = strings.TrimSpace(symbol)
		if symbol == "" {
			continue
		}
		entries = append(entries, h.quoteFor(r, symbol))
	}

	writeJSON(w, http.StatusOK, map[string]any{"s": "ok", "d": entries})
}

// quoteFor builds one symbol's quote from the top of its book. A book with
// either side empty has no two-sided market, which UDF reports in-band.
func (h *UDFHandler) quoteFor(r *http.Request, symbol string) quoteEntry {
	ctx := r.Context()

	if _, err := h.markets.Get(symbol); err != nil {
		return quoteEntry{Status: "error", Symbol: symbol, ErrMsg: "unknown_symbol"}
	}

	snap, err := h.books.BookSnapshot(ctx, symbol, 1)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.WarnContext(ctx, "udf quote snapshot failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
		return quoteEntry{Status: "error", Symbol: symbol, ErrMsg: "No liquidity available"}
	}
	if snap.BestBid == nil || snap.BestAsk == nil {
		return quoteEntry{Status: "error", Symbol: symbol, ErrMsg: "No liquidity available"}
	}

	v := quoteValues{
		Bid:       *snap.BestBid,
		Ask:       *snap.BestAsk,
		Timestamp: snap.Timestamp,
	}
	if snap.Spread != nil {
		v.Spread = *snap.Spread
	}
	if snap.MidPrice != nil {
		v.MidPrice = *snap.MidPrice
	}
	if len(snap.Bids) > 0 {
		v.BidOrders = snap.Bids[0].OrderCount
	}
	if len(snap.Asks) > 0 {
		v.AskOrders = snap.Asks[0].OrderCount
	}
	return quoteEntry{Status: "ok", Symbol: symbol, Values: &v}
}

// depthResponse is the depth payload. Each level is a
// [price, order_count, total_quantity] triple.
type depthResponse struct {
	Status    string  `json:"s"`
	Symbol    string  `json:"symbol"`
	Bids      [][]any `json:"bids"`
	Asks      [][]any `json:"asks"`
	Timestamp int64   `json:"timestamp"`
}

// Depth serves aggregated book depth. Not part of the UDF standard, but
// depth-panel clients consume it alongside the chart feed.
// GET /udf/depth?symbol=ETH/USDC&levels=20
func (h *UDFHandler) Depth(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	levels := queryInt(r, "levels", 20)
	if levels > maxDepth {
		levels = maxDepth
	}

	if _, err := h.markets.Get(symbol); err != nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"s":      "error",
			"errmsg": "unknown_symbol " + symbol,
		})
		return
	}

	snap, err := h.books.BookSnapshot(r.Context(), symbol, levels)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			h.logger.ErrorContext(r.Context(), "udf depth snapshot failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
			writeJSON(w, http.StatusOK, map[string]string{"s": "error", "errmsg": "depth unavailable"})
			return
		}
		// No snapshot published yet reads as an empty book.
		snap = domain.OrderbookSnapshot{Symbol: symbol, Timestamp: time.Now().UnixMilli()}
	}

	writeJSON(w, http.StatusOK, depthResponse{
		Status:    "ok",
		Symbol:    symbol,
		Bids:      depthLevels(snap.Bids),
		Asks:      depthLevels(snap.Asks),
		Timestamp: snap.Timestamp,
	})
}

func depthLevels(levels []domain.PriceLevel) [][]any {
	out := make([][]any, 0, len(levels))
	for _, level := range levels {
		out = append(out, []any{level.Price, level.OrderCount, level.Quantity})
	}
	return out
}
