package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bahbah94/Orbex/internal/domain"
	"github.com/bahbah94/Orbex/internal/service"
)

func newUDFHandler(store *fakeTradeStore, books *fakeBookSource) *UDFHandler {
	markets := service.NewMarketService(testMarkets())
	trades := service.NewTradeService(store, nil, discardLogger())
	return NewUDFHandler(markets, trades, books, discardLogger())
}

func TestUDFConfig(t *testing.T) {
	h := newUDFHandler(&fakeTradeStore{}, &fakeBookSource{})

	rec := httptest.NewRecorder()
	h.Config(rec, httptest.NewRequest(http.MethodGet, "/udf/config", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["supports_search"])
	require.Equal(t, true, body["supports_time"])
	require.Equal(t, false, body["supports_group_request"])
	require.Contains(t, body["supported_resolutions"], "1")
	require.Contains(t, body["supported_resolutions"], "1D")
}

func TestUDFTimeIsPlainUnixSeconds(t *testing.T) {
	h := newUDFHandler(&fakeTradeStore{}, &fakeBookSource{})

	rec := httptest.NewRecorder()
	h.Time(rec, httptest.NewRequest(http.MethodGet, "/udf/time", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/plain")

	sec, err := strconv.ParseInt(rec.Body.String(), 10, 64)
	require.NoError(t, err)
	require.InDelta(t, time.Now().Unix(), sec, 5)
}

func TestUDFSymbolsKnown(t *testing.T) {
	h := newUDFHandler(&fakeTradeStore{}, &fakeBookSource{})

	rec := httptest.NewRecorder()
	h.Symbols(rec, httptest.NewRequest(http.MethodGet, "/udf/symbols?symbol=ETH/USDC", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, testSymbol, body["name"])
	require.Equal(t, testSymbol, body["ticker"])
	require.Equal(t, "24x7", body["session"])
	require.Equal(t, "Orbex", body["exchange"])
	require.Equal(t, float64(100), body["pricescale"])
	require.Equal(t, "USDC", body["currency_code"])
	require.Equal(t, true, body["has_intraday"])
}

func TestUDFSymbolsUnknown(t *testing.T) {
	h := newUDFHandler(&fakeTradeStore{}, &fakeBookSource{})

	rec := httptest.NewRecorder()
	h.Symbols(rec, httptest.NewRequest(http.MethodGet, "/udf/symbols?symbol=NOPE", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "error", body["s"])
	require.Equal(t, "unknown_symbol NOPE", body["errmsg"])
}

func TestUDFSearch(t *testing.T) {
	h := newUDFHandler(&fakeTradeStore{}, &fakeBookSource{})

	rec := httptest.NewRecorder()
	h.Search(rec, httptest.NewRequest(http.MethodGet, "/udf/search?query=eth", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var results []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	require.Equal(t, testSymbol, results[0]["symbol"])
	require.Equal(t, "Orbex:ETH/USDC", results[0]["full_name"])
}

func TestUDFHistoryOK(t *testing.T) {
	store := &fakeTradeStore{bars: []domain.TvBar{
		{Time: 3600, Open: 10, High: 12, Low: 9, Close: 11, Volume: 5},
		{Time: 7200, Open: 11, High: 14, Low: 11, Close: 13, Volume: 8},
	}}
	h := newUDFHandler(store, &fakeBookSource{})

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet,
		"/udf/history?symbol=ETH/USDC&resolution=60&from=0&to=10000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 3600, store.barsWidth)

	body := decodeBody(t, rec)
	require.Equal(t, "ok", body["s"])
	require.Equal(t, []any{float64(3600), float64(7200)}, body["t"])
	require.Equal(t, []any{float64(11), float64(13)}, body["c"])
	require.Equal(t, []any{float64(5), float64(8)}, body["v"])
}

func TestUDFHistoryNoData(t *testing.T) {
	store := &fakeTradeStore{lastBefore: time.Unix(900, 0).UTC()}
	h := newUDFHandler(store, &fakeBookSource{})

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet,
		"/udf/history?symbol=ETH/USDC&resolution=1&from=1000&to=2000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "no_data", body["s"])
	require.Equal(t, float64(900), body["nextTime"])
	require.NotContains(t, body, "t")
}

func TestUDFHistoryInvalidRange(t *testing.T) {
	h := newUDFHandler(&fakeTradeStore{}, &fakeBookSource{})

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet,
		"/udf/history?symbol=ETH/USDC&resolution=60&from=2000&to=1000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "error", body["s"])
	require.Equal(t, "invalid time range", body["errmsg"])
}

func TestUDFHistoryInvalidResolution(t *testing.T) {
	h := newUDFHandler(&fakeTradeStore{}, &fakeBookSource{})

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet,
		"/udf/history?symbol=ETH/USDC&resolution=7h&from=0&to=1000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "error", body["s"])
	require.Equal(t, "invalid_resolution", body["errmsg"])
}

func TestUDFHistoryUnknownSymbol(t *testing.T) {
	h := newUDFHandler(&fakeTradeStore{}, &fakeBookSource{})

	rec := httptest.NewRecorder()
	h.History(rec, httptest.NewRequest(http.MethodGet,
		"/udf/history?symbol=NOPE&resolution=60&from=0&to=1000", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "error", body["s"])
	require.Equal(t, "unknown_symbol NOPE", body["errmsg"])
}

func TestUDFQuotes(t *testing.T) {
	bid := decimal.NewFromFloat(1850.5)
	ask := decimal.NewFromFloat(1851.5)
	spread := decimal.NewFromInt(1)
	mid := decimal.NewFromInt(1851)
	books := &fakeBookSource{snap: domain.OrderbookSnapshot{
		Symbol: testSymbol,
		Bids: []domain.PriceLevel{
			{Price: bid, Quantity: decimal.NewFromInt(3), OrderCount: 2},
		},
		Asks: []domain.PriceLevel{
			{Price: ask, Quantity: decimal.NewFromInt(5), OrderCount: 4},
		},
		BestBid:   &bid,
		BestAsk:   &ask,
		Spread:    &spread,
		MidPrice:  &mid,
		Timestamp: 1717243200000,
	}}
	h := newUDFHandler(&fakeTradeStore{}, books)

	rec := httptest.NewRecorder()
	h.Quotes(rec, httptest.NewRequest(http.MethodGet, "/udf/quotes?symbols=ETH/USDC,NOPE", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "ok", body["s"])

	entries, ok := body["d"].([]any)
	require.True(t, ok)
	require.Len(t, entries, 2)

	first := entries[0].(map[string]any)
	require.Equal(t, "ok", first["s"])
	require.Equal(t, testSymbol, first["n"])
	values := first["v"].(map[string]any)
	require.Equal(t, "1850.5", values["bid"])
	require.Equal(t, "1851.5", values["ask"])
	require.Equal(t, "1", values["spread"])
	require.Equal(t, "1851", values["mid_price"])
	require.Equal(t, float64(2), values["bid_orders"])
	require.Equal(t, float64(4), values["ask_orders"])
	require.Equal(t, float64(1717243200000), values["timestamp"])

	second := entries[1].(map[string]any)
	require.Equal(t, "error", second["s"])
	require.Equal(t, "NOPE", second["n"])
	require.Equal(t, "unknown_symbol", second["errmsg"])
}

func TestUDFQuotesNoLiquidity(t *testing.T) {
	books := &fakeBookSource{err: domain.ErrNotFound}
	h := newUDFHandler(&fakeTradeStore{}, books)

	rec := httptest.NewRecorder()
	h.Quotes(rec, httptest.NewRequest(http.MethodGet, "/udf/quotes?symbols=ETH/USDC", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	entries := body["d"].([]any)
	require.Len(t, entries, 1)

	entry := entries[0].(map[string]any)
	require.Equal(t, "error", entry["s"])
	require.Equal(t, "No liquidity available", entry["errmsg"])
}

func TestUDFQuotesOneSidedBook(t *testing.T) {
	bid := decimal.NewFromFloat(1850.5)
	books := &fakeBookSource{snap: domain.OrderbookSnapshot{
		Symbol:  testSymbol,
		Bids:    []domain.PriceLevel{{Price: bid, Quantity: decimal.NewFromInt(1), OrderCount: 1}},
		BestBid: &bid,
	}}
	h := newUDFHandler(&fakeTradeStore{}, books)

	rec := httptest.NewRecorder()
	h.Quotes(rec, httptest.NewRequest(http.MethodGet, "/udf/quotes?symbols=ETH/USDC", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeBody(t, rec)["d"].([]any)
	entry := entries[0].(map[string]any)
	require.Equal(t, "error", entry["s"])
	require.Equal(t, "No liquidity available", entry["errmsg"])
}

func TestUDFDepth(t *testing.T) {
	b1 := decimal.NewFromFloat(1850.5)
	b2 := decimal.NewFromInt(1849)
	a1 := decimal.NewFromFloat(1851.5)
	books := &fakeBookSource{snap: domain.OrderbookSnapshot{
		Symbol: testSymbol,
		Bids: []domain.PriceLevel{
			{Price: b1, Quantity: decimal.NewFromInt(3), OrderCount: 2},
			{Price: b2, Quantity: decimal.NewFromInt(10), OrderCount: 1},
		},
		Asks: []domain.PriceLevel{
			{Price: a1, Quantity: decimal.NewFromFloat(0.5), OrderCount: 1},
		},
		Timestamp: 1717243200000,
	}}
	h := newUDFHandler(&fakeTradeStore{}, books)

	rec := httptest.NewRecorder()
	h.Depth(rec, httptest.NewRequest(http.MethodGet, "/udf/depth?symbol=ETH/USDC&levels=5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 5, books.depth)

	body := decodeBody(t, rec)
	require.Equal(t, "ok", body["s"])
	require.Equal(t, testSymbol, body["symbol"])
	require.Equal(t, float64(1717243200000), body["timestamp"])

	bids := body["bids"].([]any)
	require.Len(t, bids, 2)
	require.Equal(t, []any{"1850.5", float64(2), "3"}, bids[0])
	require.Equal(t, []any{"1849", float64(1), "10"}, bids[1])

	asks := body["asks"].([]any)
	require.Len(t, asks, 1)
	require.Equal(t, []any{"1851.5", float64(1), "0.5"}, asks[0])
}

func TestUDFDepthDefaultsAndClamp(t *testing.T) {
	books := &fakeBookSource{}
	h := newUDFHandler(&fakeTradeStore{}, books)

	rec := httptest.NewRecorder()
	h.Depth(rec, httptest.NewRequest(http.MethodGet, "/udf/depth?symbol=ETH/USDC", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 20, books.depth)

	rec = httptest.NewRecorder()
	h.Depth(rec, httptest.NewRequest(http.MethodGet, "/udf/depth?symbol=ETH/USDC&levels=9999", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, maxDepth, books.depth)
}

func TestUDFDepthEmptyBook(t *testing.T) {
	books := &fakeBookSource{err: domain.ErrNotFound}
	h := newUDFHandler(&fakeTradeStore{}, books)

	rec := httptest.NewRecorder()
	h.Depth(rec, httptest.NewRequest(http.MethodGet, "/udf/depth?symbol=ETH/USDC", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "ok", body["s"])
	require.Empty(t, body["bids"])
	require.Empty(t, body["asks"])
	require.Greater(t, body["timestamp"], float64(0))
}

func TestUDFDepthUnknownSymbol(t *testing.T) {
	h := newUDFHandler(&fakeTradeStore{}, &fakeBookSource{})

	rec := httptest.NewRecorder()
	h.Depth(rec, httptest.NewRequest(http.MethodGet, "/udf/depth?symbol=NOPE", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, "error", body["s"])
	require.Equal(t, "unknown_symbol NOPE", body["errmsg"])
}
